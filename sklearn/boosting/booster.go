package boosting

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/objective"
	"github.com/agricure/oofstack/core/parallel"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
)

// Params controls the boosting loop shared by all boosted families.
type Params struct {
	NumRounds    int
	LearningRate float64
	Subsample    float64 // row fraction drawn per round
	ColSample    float64 // feature fraction drawn per round
	MaxBin       int
	Seed         uint64
	NumClass     int
}

// Validate checks the loop parameters.
func (p Params) Validate() error {
	switch {
	case p.NumRounds < 1:
		return errors.NewValidationError("num_rounds", "must be at least 1", p.NumRounds)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColSample <= 0 || p.ColSample > 1:
		return errors.NewValidationError("colsample", "must be in (0, 1]", p.ColSample)
	}
	return nil
}

// Tree is the weak learner produced by a Grower. *tree.RegressionTree and
// *tree.ObliviousTree both satisfy it.
type Tree interface {
	Predict(row []float64) float64
	Shrink(rate float64)
	Valid(nFeatures int) bool
	SumGain(dst []float64)
}

// Grower grows one tree for one class from the sampled rows. grad and hess
// are indexed by row id; leaf values are unshrunk Newton steps.
type Grower[T Tree] func(ds *Dataset, rows, features []int, grad, hess []float64) T

// Model is a fitted multiclass booster. Trees are round-major:
// Trees[r*NumClass+k] is the tree of class k in round r.
type Model[T Tree] struct {
	NumClass    int       `msgpack:"num_class"`
	NumFeatures int       `msgpack:"num_features"`
	InitScores  []float64 `msgpack:"init_scores"`
	Trees       []T       `msgpack:"trees"`
}

// Fit runs the softmax boosting loop on a row-major matrix. weights may be nil.
func Fit[T Tree](name string, data []float64, rows, cols int, y []int, weights []float64, p Params, grow Grower[T]) (*Model[T], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.NumClass < 1 {
		return nil, errors.NewValidationError("num_class", "must be at least 1", p.NumClass)
	}
	if p.MaxBin == 0 {
		p.MaxBin = MaxBins - 1
	}
	K := p.NumClass
	logger := log.GetLoggerWithName("boosting").With(log.ModelNameKey, name)

	ds := NewDataset(data, rows, cols, p.MaxBin)
	obj := objective.NewMulticlassLogLoss(K)

	m := &Model[T]{
		NumClass:    K,
		NumFeatures: cols,
		InitScores:  obj.InitScores(y, weights),
		Trees:       make([]T, 0, p.NumRounds*K),
	}

	scores := make([]float64, rows*K)
	for i := 0; i < rows; i++ {
		copy(scores[i*K:(i+1)*K], m.InitScores)
	}
	grad := make([]float64, rows*K)
	hess := make([]float64, rows*K)
	gk := make([]float64, rows)
	hk := make([]float64, rows)

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	all := make([]int, rows)
	for i := range all {
		all[i] = i
	}
	allFeatures := make([]int, cols)
	for f := range allFeatures {
		allFeatures[f] = f
	}

	for r := 0; r < p.NumRounds; r++ {
		obj.GradientsAndHessians(y, scores, weights, grad, hess)

		sampled := sampleRows(rng, all, p.Subsample)
		features := sampleFeatures(rng, allFeatures, p.ColSample)

		for k := 0; k < K; k++ {
			for i := 0; i < rows; i++ {
				gk[i] = grad[i*K+k]
				hk[i] = hess[i*K+k]
			}
			t := grow(ds, sampled, features, gk, hk)
			t.Shrink(p.LearningRate)
			parallel.ParallelizeWithThreshold(rows, 512, func(start, end int) {
				for i := start; i < end; i++ {
					scores[i*K+k] += t.Predict(data[i*cols : (i+1)*cols])
				}
			})
			m.Trees = append(m.Trees, t)
		}

		if r == p.NumRounds-1 || (r+1)%50 == 0 {
			logger.Debug("Boosting round",
				log.IterationKey, r+1,
				log.LossKey, obj.Loss(y, scores),
			)
		}
	}
	return m, nil
}

func sampleRows(rng *rand.Rand, all []int, fraction float64) []int {
	if fraction >= 1 {
		return all
	}
	out := make([]int, 0, int(float64(len(all))*fraction)+1)
	for _, i := range all {
		if rng.Float64() < fraction {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		out = append(out, all[rng.IntN(len(all))])
	}
	return out
}

func sampleFeatures(rng *rand.Rand, all []int, fraction float64) []int {
	if fraction >= 1 {
		return all
	}
	m := int(float64(len(all))*fraction + 0.5)
	if m < 1 {
		m = 1
	}
	perm := rng.Perm(len(all))[:m]
	out := make([]int, m)
	for i, j := range perm {
		out[i] = all[j]
	}
	// keep ascending order so split ties resolve the same way
	sort.Ints(out)
	return out
}

// RawScores writes the logits of one row into dst (len NumClass).
func (m *Model[T]) RawScores(dst, row []float64) {
	copy(dst, m.InitScores)
	K := m.NumClass
	for i := range m.Trees {
		dst[i%K] += m.Trees[i].Predict(row)
	}
}

// PredictProba returns softmax probabilities for a row-major matrix.
func (m *Model[T]) PredictProba(data []float64, rows, cols int) (*mat.Dense, error) {
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("boosting.PredictProba", m.NumFeatures, cols, 1)
	}
	K := m.NumClass
	out := mat.NewDense(rows, K, nil)
	raw := out.RawMatrix()
	parallel.ParallelizeWithThreshold(rows, 64, func(start, end int) {
		logits := make([]float64, K)
		for i := start; i < end; i++ {
			m.RawScores(logits, data[i*cols:(i+1)*cols])
			objective.Softmax(raw.Data[i*raw.Stride:i*raw.Stride+K], logits)
		}
	})
	return out, nil
}

// FeatureImportances returns total split gain per feature, normalized to 1.
func (m *Model[T]) FeatureImportances() []float64 {
	imp := make([]float64, m.NumFeatures)
	for i := range m.Trees {
		m.Trees[i].SumGain(imp)
	}
	total := 0.0
	for _, v := range imp {
		total += v
	}
	if total > 0 {
		for j := range imp {
			imp[j] /= total
		}
	}
	return imp
}

// NumRounds returns the number of completed rounds.
func (m *Model[T]) NumRounds() int {
	if m.NumClass == 0 {
		return 0
	}
	return len(m.Trees) / m.NumClass
}

// Validate checks a decoded model for structural consistency.
func (m *Model[T]) Validate() error {
	if m.NumClass < 1 || len(m.InitScores) != m.NumClass {
		return errors.NewValidationError("init_scores", "length must equal num_class", len(m.InitScores))
	}
	if len(m.Trees)%m.NumClass != 0 {
		return errors.NewValidationError("trees", "tree count is not a multiple of num_class", len(m.Trees))
	}
	for i, t := range m.Trees {
		if !t.Valid(m.NumFeatures) {
			return errors.NewValidationError("trees", "malformed tree", i)
		}
	}
	return nil
}
