// Package catboost implements a CatBoost-style multiclass classifier built
// from oblivious (symmetric) trees over quantile borders.
package catboost

import (
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/sklearn/boosting"
	"github.com/agricure/oofstack/sklearn/tree"
)

// KindCatBoost is the registry name of CatBoostClassifier.
const KindCatBoost = "catboost"

func init() {
	model.Register(KindCatBoost, func() model.Classifier { return NewCatBoostClassifier() })
}

// CatBoostClassifier boosts oblivious trees with the softmax objective.
type CatBoostClassifier struct {
	state *model.StateManager

	Iterations   int     `msgpack:"iterations"`
	Depth        int     `msgpack:"depth"`
	LearningRate float64 `msgpack:"learning_rate"`
	L2LeafReg    float64 `msgpack:"l2_leaf_reg"`
	BorderCount  int     `msgpack:"border_count"`
	RSM          float64 `msgpack:"rsm"` // feature fraction per iteration
	RandomSeed   uint64  `msgpack:"random_seed"`
	NumClass     int     `msgpack:"num_class"`

	Booster *boosting.Model[*tree.ObliviousTree] `msgpack:"booster"`
}

// Option configures a CatBoostClassifier.
type Option func(*CatBoostClassifier)

// WithIterations sets the number of boosting iterations.
func WithIterations(n int) Option { return func(c *CatBoostClassifier) { c.Iterations = n } }

// WithDepth sets the depth of every oblivious tree.
func WithDepth(d int) Option { return func(c *CatBoostClassifier) { c.Depth = d } }

// WithLearningRate sets the shrinkage.
func WithLearningRate(lr float64) Option { return func(c *CatBoostClassifier) { c.LearningRate = lr } }

// WithL2LeafReg sets the L2 penalty on leaf values.
func WithL2LeafReg(l float64) Option { return func(c *CatBoostClassifier) { c.L2LeafReg = l } }

// WithBorderCount sets the number of quantile borders per feature.
func WithBorderCount(n int) Option { return func(c *CatBoostClassifier) { c.BorderCount = n } }

// WithRSM sets the fraction of features considered per iteration.
func WithRSM(f float64) Option { return func(c *CatBoostClassifier) { c.RSM = f } }

// WithRandomSeed seeds feature sampling.
func WithRandomSeed(seed uint64) Option { return func(c *CatBoostClassifier) { c.RandomSeed = seed } }

// WithNumClass fixes the number of output columns.
func WithNumClass(n int) Option { return func(c *CatBoostClassifier) { c.NumClass = n } }

// NewCatBoostClassifier creates a classifier with CatBoost defaults.
func NewCatBoostClassifier(opts ...Option) *CatBoostClassifier {
	c := &CatBoostClassifier{
		state:        model.NewStateManager(),
		Iterations:   500,
		Depth:        6,
		LearningRate: 0.03,
		L2LeafReg:    3,
		BorderCount:  254,
		RSM:          1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// obliviousGrower picks, level by level, the single (feature, border)
// maximizing the summed gain over all current leaves.
func obliviousGrower(depth int, params boosting.SplitParams) boosting.Grower[*tree.ObliviousTree] {
	return func(ds *boosting.Dataset, rows, features []int, grad, hess []float64) *tree.ObliviousTree {
		t := &tree.ObliviousTree{}
		leaves := [][]int{rows}
		hists := make([]boosting.Histogram, 0, 1<<depth)

		for d := 0; d < depth; d++ {
			hists = hists[:0]
			for _, lr := range leaves {
				h := ds.NewHistogram(features)
				ds.Build(h, lr, features, grad, hess)
				hists = append(hists, h)
			}

			bestF, bestB, bestGain := -1, 0, 0.0
			for _, f := range features {
				nb := ds.NumBins(f)
				gains := make([]float64, nb-1)
				for _, h := range hists {
					accumulateLevelGain(gains, h[f], params)
				}
				for b, gain := range gains {
					if gain > bestGain {
						bestF, bestB, bestGain = f, b, gain
					}
				}
			}
			if bestF < 0 {
				break
			}

			t.Features = append(t.Features, bestF)
			t.Thresholds = append(t.Thresholds, ds.Threshold(bestF, bestB))
			t.Gains = append(t.Gains, bestGain)

			// bit d = 右側. 既存の葉 i は i と i|1<<d に分かれる
			next := make([][]int, 2*len(leaves))
			for i, lr := range leaves {
				left, right := ds.Partition(lr, bestF, bestB)
				next[i] = left
				next[i|1<<d] = right
			}
			leaves = next
		}

		t.Leaves = make([]float64, len(leaves))
		for i, lr := range leaves {
			var g, h float64
			for _, r := range lr {
				g += grad[r]
				h += hess[r]
			}
			if len(lr) > 0 {
				t.Leaves[i] = params.LeafValue(g, h)
			}
		}
		return t
	}
}

// accumulateLevelGain adds, for every border b, the gain of splitting one
// leaf's bins at b. An empty side contributes nothing.
func accumulateLevelGain(dst []float64, bins []boosting.Bin, params boosting.SplitParams) {
	var g, h float64
	for _, bin := range bins {
		g += bin.Grad
		h += bin.Hess
	}
	var gl, hl float64
	for b := range dst {
		gl += bins[b].Grad
		hl += bins[b].Hess
		dst[b] += params.Gain(gl, hl, g-gl, h-hl)
	}
}

// Fit trains on class-index labels.
func (c *CatBoostClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "CatBoostClassifier.Fit")

	if err := model.CheckFitInput("CatBoostClassifier.Fit", X, y); err != nil {
		return err
	}
	if c.Depth < 1 || c.Depth > 16 {
		return errors.NewValidationError("depth", "must be in [1, 16]", c.Depth)
	}
	labels, numClass, err := model.Labels("CatBoostClassifier.Fit", y, c.NumClass)
	if err != nil {
		return err
	}
	c.NumClass = numClass
	data, rows, cols := model.RowMajor(X)

	booster, err := boosting.Fit("CatBoostClassifier", data, rows, cols, labels, nil,
		boosting.Params{
			NumRounds:    c.Iterations,
			LearningRate: c.LearningRate,
			Subsample:    1,
			ColSample:    c.RSM,
			MaxBin:       c.BorderCount + 1,
			Seed:         c.RandomSeed,
			NumClass:     numClass,
		},
		obliviousGrower(c.Depth, boosting.SplitParams{Lambda: c.L2LeafReg}))
	if err != nil {
		return errors.Wrap(err, "catboost: training failed")
	}
	c.Booster = booster
	c.state.SetDimensions(cols, rows)
	c.state.SetFitted()

	log.GetLoggerWithName("catboost").Debug("CatBoostClassifier trained",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ClassesKey, numClass,
	)
	return nil
}

// PredictProba returns softmax probabilities (n × NumClass).
func (c *CatBoostClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := c.state.RequireFitted("CatBoostClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	data, rows, cols := model.RowMajor(X)
	return c.Booster.PredictProba(data, rows, cols)
}

// Predict returns arg-max labels.
func (c *CatBoostClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba), nil
}

// Score returns mean accuracy.
func (c *CatBoostClassifier) Score(X, y mat.Matrix) (float64, error) {
	return model.ScoreAccuracy(c, X, y)
}

// FeatureImportances returns level-gain importances.
func (c *CatBoostClassifier) FeatureImportances() []float64 {
	if c.Booster == nil {
		return nil
	}
	return c.Booster.FeatureImportances()
}

func (c *CatBoostClassifier) NumClasses() int { return c.NumClass }

func (c *CatBoostClassifier) NumFeatures() int {
	if c.Booster == nil {
		return 0
	}
	return c.Booster.NumFeatures
}

func (c *CatBoostClassifier) Kind() string { return KindCatBoost }

// Restore implements model.Restorer.
func (c *CatBoostClassifier) Restore() error {
	if c.state == nil {
		c.state = model.NewStateManager()
	}
	if c.Booster == nil {
		return errors.NewValidationError("booster", "missing from decoded model", nil)
	}
	if err := c.Booster.Validate(); err != nil {
		return err
	}
	if c.Booster.NumClass != c.NumClass {
		return errors.NewValidationError("num_class", "booster class count differs", c.Booster.NumClass)
	}
	c.state.SetDimensions(c.Booster.NumFeatures, 0)
	c.state.SetFitted()
	return nil
}
