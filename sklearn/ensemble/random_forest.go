// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/core/parallel"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/sklearn/tree"
)

// KindRandomForest is the registry name of RandomForestClassifier.
const KindRandomForest = "random_forest"

func init() {
	model.Register(KindRandomForest, func() model.Classifier { return NewRandomForestClassifier() })
}

// RandomForestClassifier averages the class distributions of bootstrapped
// CART trees grown on random feature subsets.
type RandomForestClassifier struct {
	state *model.StateManager

	NEstimators     int    `msgpack:"n_estimators"`
	MaxDepth        int    `msgpack:"max_depth"`
	MinSamplesSplit int    `msgpack:"min_samples_split"`
	MinSamplesLeaf  int    `msgpack:"min_samples_leaf"`
	MaxFeatures     string `msgpack:"max_features"` // "sqrt", "log2", "all"
	ClassWeight     string `msgpack:"class_weight"` // "" or "balanced"
	Bootstrap       bool   `msgpack:"bootstrap"`
	RandomState     uint64 `msgpack:"random_state"`

	NClasses  int                            `msgpack:"n_classes"`
	NFeatures int                            `msgpack:"n_features"`
	Trees     []*tree.DecisionTreeClassifier `msgpack:"trees"`
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.NEstimators = n }
}

// WithMaxDepth sets the maximum depth of each tree; 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature sampling rule.
func WithMaxFeatures(rule string) Option {
	return func(rf *RandomForestClassifier) { rf.MaxFeatures = rule }
}

// WithClassWeight sets "balanced" class weighting.
func WithClassWeight(mode string) Option {
	return func(rf *RandomForestClassifier) { rf.ClassWeight = mode }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.Bootstrap = b }
}

// WithRandomState seeds bootstrap and feature sampling.
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestClassifier) { rf.RandomState = seed }
}

// WithNumClass fixes the output width of PredictProba.
func WithNumClass(n int) Option {
	return func(rf *RandomForestClassifier) { rf.NClasses = n }
}

// NewRandomForestClassifier creates a forest with sklearn-like defaults.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "sqrt",
		Bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestClassifier) featuresPerSplit(nFeatures int) int {
	var m int
	switch rf.MaxFeatures {
	case "sqrt":
		m = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		m = int(math.Log2(float64(nFeatures)))
	default:
		m = nFeatures
	}
	if m < 1 {
		m = 1
	}
	return m
}

// Fit trains the forest. Trees are grown in parallel; each tree derives its
// bootstrap sample and feature sampler from RandomState and its index, so
// the result does not depend on scheduling.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if err := model.CheckFitInput("RandomForestClassifier.Fit", X, y); err != nil {
		return err
	}
	if rf.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.NEstimators)
	}
	labels, nClass, err := model.Labels("RandomForestClassifier.Fit", y, rf.NClasses)
	if err != nil {
		return err
	}
	rf.NClasses = nClass
	data, n, nf := model.RowMajor(X)

	var classWeights []float64
	if rf.ClassWeight == "balanced" {
		classWeights = tree.BalancedClassWeights(labels, nClass)
	}
	maxFeatures := rf.featuresPerSplit(nf)

	trees := make([]*tree.DecisionTreeClassifier, rf.NEstimators)
	errs := make([]error, rf.NEstimators)
	parallel.ParallelizeWithThreshold(rf.NEstimators, 1, func(start, end int) {
		weights := make([]float64, n)
		for i := start; i < end; i++ {
			seed := rf.RandomState*1_000_003 + uint64(i)
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			for k := range weights {
				weights[k] = 0
			}
			if rf.Bootstrap {
				for k := 0; k < n; k++ {
					weights[rng.IntN(n)]++
				}
			} else {
				for k := range weights {
					weights[k] = 1
				}
			}
			if classWeights != nil {
				for k, c := range labels {
					weights[k] *= classWeights[c]
				}
			}

			dt := tree.NewDecisionTreeClassifier(
				tree.WithMaxDepth(rf.MaxDepth),
				tree.WithMinSamplesSplit(rf.MinSamplesSplit),
				tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
				tree.WithMaxFeatures(maxFeatures),
				tree.WithRandomState(rng.Uint64()),
				tree.WithNumClass(nClass),
			)
			errs[i] = errors.SafeExecute("RandomForestClassifier.Fit tree", func() error {
				return dt.FitRowMajor(data, nf, labels, weights)
			})
			trees[i] = dt
		}
	})
	for _, e := range errs {
		if e != nil {
			return e
		}
	}

	rf.Trees = trees
	rf.NFeatures = nf
	rf.state.SetDimensions(nf, n)
	rf.state.SetFitted()

	log.GetLoggerWithName("ensemble.random_forest").Debug("Forest trained",
		log.ModelNameKey, "RandomForestClassifier",
		log.SamplesKey, n,
		log.FeaturesKey, nf,
		"trees", len(trees),
	)
	return nil
}

// PredictProba returns the mean tree distribution (n × NumClasses).
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	data, rows, cols := model.RowMajor(X)
	if cols != rf.NFeatures {
		return nil, errors.NewDimensionError("RandomForestClassifier.PredictProba", rf.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, rf.NClasses, nil)
	raw := out.RawMatrix()
	inv := 1 / float64(len(rf.Trees))
	parallel.ParallelizeWithThreshold(rows, 64, func(start, end int) {
		for i := start; i < end; i++ {
			dst := raw.Data[i*raw.Stride : i*raw.Stride+rf.NClasses]
			row := data[i*cols : (i+1)*cols]
			for _, t := range rf.Trees {
				for c, p := range t.ProbaRow(row) {
					dst[c] += p
				}
			}
			for c := range dst {
				dst[c] *= inv
			}
		}
	})
	return out, nil
}

// Predict returns the most probable class per row.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba), nil
}

// Score returns the mean accuracy on (X, y).
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	return model.ScoreAccuracy(rf, X, y)
}

// FeatureImportances averages the normalized importances of all trees.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	imp := make([]float64, rf.NFeatures)
	for _, t := range rf.Trees {
		for j, v := range t.GetFeatureImportances() {
			imp[j] += v / float64(len(rf.Trees))
		}
	}
	return imp
}

func (rf *RandomForestClassifier) NumClasses() int  { return rf.NClasses }
func (rf *RandomForestClassifier) NumFeatures() int { return rf.NFeatures }
func (rf *RandomForestClassifier) Kind() string     { return KindRandomForest }

// Restore implements model.Restorer.
func (rf *RandomForestClassifier) Restore() error {
	if rf.state == nil {
		rf.state = model.NewStateManager()
	}
	if len(rf.Trees) == 0 {
		return errors.NewValidationError("trees", "decoded forest has no trees", 0)
	}
	for _, t := range rf.Trees {
		if t == nil || t.NumClasses() != rf.NClasses || t.NumFeatures() != rf.NFeatures {
			return errors.NewValidationError("trees", "tree shape does not match forest", rf.NClasses)
		}
		if err := t.Restore(); err != nil {
			return err
		}
	}
	rf.state.SetDimensions(rf.NFeatures, 0)
	rf.state.SetFitted()
	return nil
}
