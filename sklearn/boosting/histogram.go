package boosting

import (
	"github.com/agricure/oofstack/core/parallel"
)

// Bin accumulates gradient statistics of the rows falling into one bin.
type Bin struct {
	Grad  float64
	Hess  float64
	Count int
}

// Histogram holds one []Bin per feature; features not being considered
// stay nil.
type Histogram [][]Bin

// NewHistogram allocates bins for the given features.
func (ds *Dataset) NewHistogram(features []int) Histogram {
	h := make(Histogram, ds.Cols)
	for _, f := range features {
		h[f] = make([]Bin, ds.NumBins(f))
	}
	return h
}

// Build fills h with the statistics of rows. grad and hess are indexed by
// row id.
func (ds *Dataset) Build(h Histogram, rows []int, features []int, grad, hess []float64) {
	parallel.ParallelizeWithThreshold(len(features), 4, func(start, end int) {
		for _, f := range features[start:end] {
			bins := h[f]
			for b := range bins {
				bins[b] = Bin{}
			}
			col := ds.Column(f)
			for _, i := range rows {
				b := &bins[col[i]]
				b.Grad += grad[i]
				b.Hess += hess[i]
				b.Count++
			}
		}
	})
}

// Subtract stores parent - child into dst (the sibling histogram).
func Subtract(dst, parent, child Histogram, features []int) {
	for _, f := range features {
		for b := range dst[f] {
			dst[f][b] = Bin{
				Grad:  parent[f][b].Grad - child[f][b].Grad,
				Hess:  parent[f][b].Hess - child[f][b].Hess,
				Count: parent[f][b].Count - child[f][b].Count,
			}
		}
	}
}

// Totals sums the bins of any one feature.
func (h Histogram) Totals(features []int) (grad, hess float64, count int) {
	if len(features) == 0 {
		return 0, 0, 0
	}
	for _, b := range h[features[0]] {
		grad += b.Grad
		hess += b.Hess
		count += b.Count
	}
	return grad, hess, count
}

// SplitParams are the regularization knobs of the second-order split gain.
type SplitParams struct {
	Lambda         float64 // L2 on leaf values
	Gamma          float64 // minimum loss reduction (xgboost gamma / lightgbm min_gain_to_split)
	MinChildWeight float64 // minimum hessian sum per child
	MinDataInLeaf  int
}

// LeafValue is the Newton step -G/(H+λ).
func (p SplitParams) LeafValue(grad, hess float64) float64 {
	return -grad / (hess + p.Lambda + 1e-10)
}

func (p SplitParams) score(grad, hess float64) float64 {
	return grad * grad / (hess + p.Lambda + 1e-10)
}

// Gain is the loss reduction of splitting (G, H) into (GL, HL) and (GR, HR).
func (p SplitParams) Gain(gl, hl, gr, hr float64) float64 {
	return 0.5*(p.score(gl, hl)+p.score(gr, hr)-p.score(gl+gr, hl+hr)) - p.Gamma
}

// Split describes the best threshold found for one node.
type Split struct {
	Feature int
	Bin     int
	Gain    float64

	LeftGrad, LeftHess   float64
	RightGrad, RightHess float64
	LeftCount            int
	RightCount           int
}

// Valid reports whether a usable split was found.
func (s Split) Valid() bool { return s.Feature >= 0 && s.Gain > 0 }

// BestSplit scans the cumulative bins of every feature; ties keep the
// lowest feature and bin so the search is deterministic.
func BestSplit(h Histogram, features []int, p SplitParams) Split {
	best := Split{Feature: -1}
	g, hs, n := h.Totals(features)
	for _, f := range features {
		bins := h[f]
		var gl, hl float64
		nl := 0
		for b := 0; b < len(bins)-1; b++ {
			gl += bins[b].Grad
			hl += bins[b].Hess
			nl += bins[b].Count
			nr := n - nl
			if nl < p.MinDataInLeaf || nr < p.MinDataInLeaf || nl == 0 || nr == 0 {
				continue
			}
			hr := hs - hl
			if hl < p.MinChildWeight || hr < p.MinChildWeight {
				continue
			}
			gain := p.Gain(gl, hl, g-gl, hr)
			if gain > best.Gain {
				best = Split{
					Feature:    f,
					Bin:        b,
					Gain:       gain,
					LeftGrad:   gl,
					LeftHess:   hl,
					RightGrad:  g - gl,
					RightHess:  hr,
					LeftCount:  nl,
					RightCount: nr,
				}
			}
		}
	}
	return best
}

// Partition splits rows by "bin <= b" on feature f and returns the
// left and right halves (row order within each half is preserved).
func (ds *Dataset) Partition(rows []int, f, b int) (left, right []int) {
	col := ds.Column(f)
	left = make([]int, 0, len(rows))
	right = make([]int, 0, len(rows)/2)
	for _, i := range rows {
		if int(col[i]) <= b {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}
