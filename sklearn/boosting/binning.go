// Package boosting holds the histogram machinery shared by the gradient
// boosted families: quantile binning, gradient histograms, split search and
// the multiclass boosting loop. The families differ only in how a single
// regression tree is grown from the histograms.
package boosting

import (
	"sort"

	"github.com/agricure/oofstack/core/parallel"
)

// MaxBins is the upper bound on bins per feature (bin ids fit in a byte).
const MaxBins = 256

// QuantileBorders returns the split thresholds for one feature. A value v
// falls into bin i where i is the number of borders strictly below v, so
// "bin <= b" is the same test as "v <= borders[b]".
func QuantileBorders(values []float64, maxBin int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if maxBin < 2 {
		maxBin = 2
	}
	if maxBin > MaxBins {
		maxBin = MaxBins
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	unique := make([]float64, 1, len(sorted))
	unique[0] = sorted[0]
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != unique[len(unique)-1] {
			unique = append(unique, sorted[i])
		}
	}

	// 値の種類が少なければ隣接値の中点で区切る
	if len(unique) <= maxBin {
		borders := make([]float64, len(unique)-1)
		for i := range borders {
			borders[i] = (unique[i] + unique[i+1]) / 2
		}
		return borders
	}

	borders := make([]float64, 0, maxBin-1)
	for i := 1; i < maxBin; i++ {
		v := sorted[(len(sorted)-1)*i/maxBin]
		if len(borders) == 0 || v > borders[len(borders)-1] {
			borders = append(borders, v)
		}
	}
	// the largest value must stay in the last bin
	if last := sorted[len(sorted)-1]; len(borders) > 0 && borders[len(borders)-1] >= last {
		borders = borders[:len(borders)-1]
	}
	return borders
}

// BinIndex maps v to its bin for the given borders.
func BinIndex(v float64, borders []float64) int {
	return sort.SearchFloat64s(borders, v)
}

// Dataset is a feature matrix quantized column by column.
type Dataset struct {
	Rows    int
	Cols    int
	Borders [][]float64
	// Bins is column-major: Bins[f*Rows+i] is the bin of row i, feature f.
	Bins []uint8
}

// NewDataset bins a row-major matrix with at most maxBin bins per feature.
func NewDataset(data []float64, rows, cols, maxBin int) *Dataset {
	ds := &Dataset{
		Rows:    rows,
		Cols:    cols,
		Borders: make([][]float64, cols),
		Bins:    make([]uint8, rows*cols),
	}
	parallel.ParallelizeWithThreshold(cols, 2, func(start, end int) {
		column := make([]float64, rows)
		for f := start; f < end; f++ {
			for i := 0; i < rows; i++ {
				column[i] = data[i*cols+f]
			}
			borders := QuantileBorders(column, maxBin)
			ds.Borders[f] = borders
			dst := ds.Bins[f*rows : (f+1)*rows]
			for i, v := range column {
				dst[i] = uint8(BinIndex(v, borders))
			}
		}
	})
	return ds
}

// NumBins returns the number of bins of feature f.
func (ds *Dataset) NumBins(f int) int { return len(ds.Borders[f]) + 1 }

// Threshold returns the raw-value threshold for the split "bin <= b".
func (ds *Dataset) Threshold(f, b int) float64 { return ds.Borders[f][b] }

// Column returns the bins of feature f.
func (ds *Dataset) Column(f int) []uint8 { return ds.Bins[f*ds.Rows : (f+1)*ds.Rows] }
