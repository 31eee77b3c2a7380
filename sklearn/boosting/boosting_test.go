package boosting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agricure/oofstack/sklearn/tree"
)

func TestQuantileBorders(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		maxBin int
		want   []float64
	}{
		{"few unique values use midpoints", []float64{3, 1, 2, 2, 1}, 255, []float64{1.5, 2.5}},
		{"constant column has no borders", []float64{4, 4, 4}, 255, []float64{}},
		{"empty", nil, 255, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuantileBorders(tt.values, tt.maxBin)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("quantiles are capped and increasing", func(t *testing.T) {
		values := make([]float64, 1000)
		for i := range values {
			values[i] = float64(i)
		}
		borders := QuantileBorders(values, 16)
		assert.LessOrEqual(t, len(borders), 15)
		for i := 1; i < len(borders); i++ {
			assert.Greater(t, borders[i], borders[i-1])
		}
		assert.Equal(t, len(borders), BinIndex(999, borders), "max value lands in last bin")
		assert.Equal(t, 0, BinIndex(0, borders))
	})
}

func TestDatasetSplitMatchesThreshold(t *testing.T) {
	data := []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	}
	ds := NewDataset(data, 4, 2, 255)
	require.Equal(t, 4, ds.NumBins(0))

	left, right := ds.Partition([]int{0, 1, 2, 3}, 0, 1)
	assert.Equal(t, []int{0, 1}, left)
	assert.Equal(t, []int{2, 3}, right)

	thr := ds.Threshold(0, 1)
	assert.True(t, data[1*2] <= thr && data[2*2] > thr)
}

func TestBestSplitAndSubtract(t *testing.T) {
	// rows 0,1 have negative gradients, rows 2,3 positive: the split sits between them
	data := []float64{0, 1, 2, 3}
	grad := []float64{-1, -1, 1, 1}
	hess := []float64{1, 1, 1, 1}
	ds := NewDataset(data, 4, 1, 255)
	features := []int{0}

	h := ds.NewHistogram(features)
	ds.Build(h, []int{0, 1, 2, 3}, features, grad, hess)

	s := BestSplit(h, features, SplitParams{Lambda: 1})
	require.True(t, s.Valid())
	assert.Equal(t, 1, s.Bin)
	assert.Equal(t, 2, s.LeftCount)
	assert.InDelta(t, -2.0, s.LeftGrad, 1e-12)

	child := ds.NewHistogram(features)
	ds.Build(child, []int{0, 1}, features, grad, hess)
	sib := ds.NewHistogram(features)
	Subtract(sib, h, child, features)
	g, hs, n := sib.Totals(features)
	assert.InDelta(t, 2.0, g, 1e-12)
	assert.InDelta(t, 2.0, hs, 1e-12)
	assert.Equal(t, 2, n)

	none := BestSplit(h, features, SplitParams{Lambda: 1, MinDataInLeaf: 3})
	assert.False(t, none.Valid())
}

func stumpGrower(ds *Dataset, rows, features []int, grad, hess []float64) *tree.RegressionTree {
	p := SplitParams{Lambda: 1}
	h := ds.NewHistogram(features)
	ds.Build(h, rows, features, grad, hess)
	g, hs, _ := h.Totals(features)
	t := &tree.RegressionTree{}
	root := t.AddLeaf(p.LeafValue(g, hs))
	if s := BestSplit(h, features, p); s.Valid() {
		t.Split(root, s.Feature, ds.Threshold(s.Feature, s.Bin), s.Gain,
			p.LeafValue(s.LeftGrad, s.LeftHess), p.LeafValue(s.RightGrad, s.RightHess))
	}
	return t
}

func TestFitReducesLoss(t *testing.T) {
	n := 60
	data := make([]float64, n)
	y := make([]int, n)
	for i := range data {
		data[i] = float64(i)
		y[i] = i * 3 / n
	}

	m, err := Fit[*tree.RegressionTree]("test", data, n, 1, y, nil, Params{
		NumRounds: 20, LearningRate: 0.3, Subsample: 1, ColSample: 1, NumClass: 3,
	}, stumpGrower)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, 20, m.NumRounds())

	proba, err := m.PredictProba(data, n, 1)
	require.NoError(t, err)
	correct := 0
	for i := 0; i < n; i++ {
		best, bestP := 0, proba.At(i, 0)
		for k := 1; k < 3; k++ {
			if proba.At(i, k) > bestP {
				best, bestP = k, proba.At(i, k)
			}
		}
		if best == y[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 50)

	_, err = m.PredictProba(data, n/2, 2)
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	ok := Params{NumRounds: 1, LearningRate: 0.1, Subsample: 1, ColSample: 1}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Subsample = 0
	assert.Error(t, bad.Validate())

	bad = ok
	bad.NumRounds = 0
	assert.Error(t, bad.Validate())
}
