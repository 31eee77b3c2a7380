// Package objective implements the multiclass softmax log-loss shared by the
// gradient-boosted learners (lightgbm, xgboost and catboost families).
//
// Raw scores are stored row-major: score[i*numClass+k] is the logit of class
// k for sample i.
package objective

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/agricure/oofstack/core/parallel"
)

// hessianFloor keeps leaf values finite when a class is almost certain.
const hessianFloor = 1e-16

// Softmax computes softmax with numerical stability, writing into dst.
func Softmax(dst, logits []float64) {
	maxLogit := logits[0]
	for _, logit := range logits[1:] {
		if logit > maxLogit {
			maxLogit = logit
		}
	}

	expSum := 0.0
	for i, logit := range logits {
		dst[i] = math.Exp(logit - maxLogit)
		expSum += dst[i]
	}
	if expSum > 0 {
		for i := range dst {
			dst[i] /= expSum
		}
	}
}

// MulticlassLogLoss is the multiclass cross-entropy objective.
type MulticlassLogLoss struct {
	NumClass int
}

// NewMulticlassLogLoss creates the objective for numClass classes.
func NewMulticlassLogLoss(numClass int) *MulticlassLogLoss {
	return &MulticlassLogLoss{NumClass: numClass}
}

// InitScores returns log class priors, smoothed so that classes absent from
// the training rows keep a finite logit. weights may be nil.
func (m *MulticlassLogLoss) InitScores(y []int, weights []float64) []float64 {
	counts := make([]float64, m.NumClass)
	total := 0.0
	for i, c := range y {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		counts[c] += w
		total += w
	}
	init := make([]float64, m.NumClass)
	for k := range init {
		init[k] = math.Log((counts[k] + 1) / (total + float64(m.NumClass)))
	}
	return init
}

// GradientsAndHessians fills grad and hess (both len(y)*NumClass) for the
// current raw scores: grad = p_k - y_k, hess = p_k(1-p_k) (diagonal).
func (m *MulticlassLogLoss) GradientsAndHessians(y []int, scores, weights, grad, hess []float64) {
	k := m.NumClass
	parallel.ParallelizeWithThreshold(len(y), 256, func(start, end int) {
		prob := make([]float64, k)
		for i := start; i < end; i++ {
			Softmax(prob, scores[i*k:(i+1)*k])
			w := 1.0
			if weights != nil {
				w = weights[i]
			}
			for c := 0; c < k; c++ {
				p := prob[c]
				g := p
				if c == y[i] {
					g = p - 1.0
				}
				h := p * (1.0 - p)
				if h < hessianFloor {
					h = hessianFloor
				}
				grad[i*k+c] = g * w
				hess[i*k+c] = h * w
			}
		}
	})
}

// Loss returns the mean cross-entropy of the raw scores.
func (m *MulticlassLogLoss) Loss(y []int, scores []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	k := m.NumClass
	total := 0.0
	for i, c := range y {
		row := scores[i*k : (i+1)*k]
		total += floats.LogSumExp(row) - row[c]
	}
	return total / float64(len(y))
}

// Probabilities converts raw scores for n samples into a row-major
// probability slice of the same shape.
func (m *MulticlassLogLoss) Probabilities(scores []float64) []float64 {
	k := m.NumClass
	out := make([]float64, len(scores))
	for i := 0; i+k <= len(scores); i += k {
		Softmax(out[i:i+k], scores[i:i+k])
	}
	return out
}
