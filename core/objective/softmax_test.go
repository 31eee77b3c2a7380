package objective

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax(t *testing.T) {
	dst := make([]float64, 3)
	Softmax(dst, []float64{1000, 1000, 1000})
	for _, p := range dst {
		assert.InDelta(t, 1.0/3.0, p, 1e-12)
	}

	Softmax(dst, []float64{0, math.Log(2), math.Log(5)})
	assert.InDelta(t, 0.125, dst[0], 1e-12)
	assert.InDelta(t, 0.25, dst[1], 1e-12)
	assert.InDelta(t, 0.625, dst[2], 1e-12)
}

func TestGradientsAndHessians(t *testing.T) {
	obj := NewMulticlassLogLoss(2)
	y := []int{0, 1}
	scores := []float64{0, 0, 0, 0}
	grad := make([]float64, 4)
	hess := make([]float64, 4)

	obj.GradientsAndHessians(y, scores, nil, grad, hess)

	assert.Equal(t, []float64{-0.5, 0.5, 0.5, -0.5}, grad)
	for _, h := range hess {
		assert.InDelta(t, 0.25, h, 1e-12)
	}

	weights := []float64{2, 1}
	obj.GradientsAndHessians(y, scores, weights, grad, hess)
	assert.InDelta(t, -1.0, grad[0], 1e-12)
	assert.InDelta(t, 0.5, hess[0], 1e-12)
}

func TestInitScoresKeepAbsentClassFinite(t *testing.T) {
	obj := NewMulticlassLogLoss(3)
	init := obj.InitScores([]int{0, 0, 1}, nil)
	require.Len(t, init, 3)
	assert.False(t, math.IsInf(init[2], 0))
	assert.Greater(t, init[0], init[1])
	assert.Greater(t, init[1], init[2])
}

func TestLoss(t *testing.T) {
	obj := NewMulticlassLogLoss(2)
	loss := obj.Loss([]int{0, 1}, []float64{0, 0, 0, 0})
	assert.InDelta(t, math.Log(2), loss, 1e-12)
	assert.Equal(t, 0.0, obj.Loss(nil, nil))

	probs := obj.Probabilities([]float64{0, 0, 5, 5})
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 0.5, 0.5}, probs, 1e-12)
}
