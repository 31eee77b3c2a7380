// Package xgboost implements an XGBoost-style multiclass classifier:
// second-order boosting with depth-wise tree growth, gamma pruning,
// min_child_weight and L2 leaf regularization (tree_method=hist).
package xgboost

import (
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/sklearn/boosting"
	"github.com/agricure/oofstack/sklearn/tree"
)

// KindXGB is the registry name of XGBClassifier.
const KindXGB = "xgboost"

func init() {
	model.Register(KindXGB, func() model.Classifier { return NewXGBClassifier() })
}

// XGBClassifier is a depth-wise gradient boosted tree classifier.
type XGBClassifier struct {
	state *model.StateManager

	NEstimators     int     `msgpack:"n_estimators"`
	MaxDepth        int     `msgpack:"max_depth"`
	LearningRate    float64 `msgpack:"learning_rate"`
	Gamma           float64 `msgpack:"gamma"`
	MinChildWeight  float64 `msgpack:"min_child_weight"`
	RegLambda       float64 `msgpack:"reg_lambda"`
	Subsample       float64 `msgpack:"subsample"`
	ColsampleBytree float64 `msgpack:"colsample_bytree"`
	MaxBin          int     `msgpack:"max_bin"`
	RandomState     uint64  `msgpack:"random_state"`
	NumClass        int     `msgpack:"num_class"`

	Booster *boosting.Model[*tree.RegressionTree] `msgpack:"booster"`
}

// Option configures an XGBClassifier.
type Option func(*XGBClassifier)

func WithNEstimators(n int) Option        { return func(x *XGBClassifier) { x.NEstimators = n } }
func WithMaxDepth(d int) Option           { return func(x *XGBClassifier) { x.MaxDepth = d } }
func WithLearningRate(lr float64) Option  { return func(x *XGBClassifier) { x.LearningRate = lr } }
func WithGamma(g float64) Option          { return func(x *XGBClassifier) { x.Gamma = g } }
func WithMinChildWeight(w float64) Option { return func(x *XGBClassifier) { x.MinChildWeight = w } }
func WithRegLambda(l float64) Option      { return func(x *XGBClassifier) { x.RegLambda = l } }
func WithSubsample(f float64) Option      { return func(x *XGBClassifier) { x.Subsample = f } }
func WithColsampleBytree(f float64) Option {
	return func(x *XGBClassifier) { x.ColsampleBytree = f }
}
func WithRandomState(seed uint64) Option { return func(x *XGBClassifier) { x.RandomState = seed } }

// WithNumClass fixes the number of output columns.
func WithNumClass(n int) Option { return func(x *XGBClassifier) { x.NumClass = n } }

// NewXGBClassifier creates a classifier with the XGBoost defaults.
func NewXGBClassifier(opts ...Option) *XGBClassifier {
	x := &XGBClassifier{
		state:           model.NewStateManager(),
		NEstimators:     100,
		MaxDepth:        6,
		LearningRate:    0.3,
		MinChildWeight:  1,
		RegLambda:       1,
		Subsample:       1,
		ColsampleBytree: 1,
		MaxBin:          256,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// depthWiseGrower splits every node of a level before moving to the next.
func depthWiseGrower(maxDepth int, params boosting.SplitParams) boosting.Grower[*tree.RegressionTree] {
	type node struct {
		id   int
		rows []int
	}
	return func(ds *boosting.Dataset, rows, features []int, grad, hess []float64) *tree.RegressionTree {
		t := &tree.RegressionTree{}
		hist := ds.NewHistogram(features)
		ds.Build(hist, rows, features, grad, hess)
		g, h, _ := hist.Totals(features)
		level := []node{{id: t.AddLeaf(params.LeafValue(g, h)), rows: rows}}

		for depth := 0; depth < maxDepth && len(level) > 0; depth++ {
			var next []node
			for _, n := range level {
				ds.Build(hist, n.rows, features, grad, hess)
				s := boosting.BestSplit(hist, features, params)
				if !s.Valid() {
					continue
				}
				left, right := ds.Partition(n.rows, s.Feature, s.Bin)
				l, r := t.Split(n.id, s.Feature, ds.Threshold(s.Feature, s.Bin), s.Gain,
					params.LeafValue(s.LeftGrad, s.LeftHess),
					params.LeafValue(s.RightGrad, s.RightHess))
				next = append(next, node{id: l, rows: left}, node{id: r, rows: right})
			}
			level = next
		}
		return t
	}
}

// Fit trains the classifier on class-index labels.
func (x *XGBClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "XGBClassifier.Fit")

	if err := model.CheckFitInput("XGBClassifier.Fit", X, y); err != nil {
		return err
	}
	if x.MaxDepth < 1 {
		return errors.NewValidationError("max_depth", "must be at least 1", x.MaxDepth)
	}
	if x.Gamma < 0 {
		return errors.NewValidationError("gamma", "must be non-negative", x.Gamma)
	}
	labels, numClass, err := model.Labels("XGBClassifier.Fit", y, x.NumClass)
	if err != nil {
		return err
	}
	x.NumClass = numClass
	data, rows, cols := model.RowMajor(X)

	booster, err := boosting.Fit("XGBClassifier", data, rows, cols, labels, nil,
		boosting.Params{
			NumRounds:    x.NEstimators,
			LearningRate: x.LearningRate,
			Subsample:    x.Subsample,
			ColSample:    x.ColsampleBytree,
			MaxBin:       x.MaxBin,
			Seed:         x.RandomState,
			NumClass:     numClass,
		},
		depthWiseGrower(x.MaxDepth, boosting.SplitParams{
			Lambda:         x.RegLambda,
			Gamma:          x.Gamma,
			MinChildWeight: x.MinChildWeight,
			MinDataInLeaf:  1,
		}))
	if err != nil {
		return errors.Wrap(err, "xgboost: training failed")
	}
	x.Booster = booster
	x.state.SetDimensions(cols, rows)
	x.state.SetFitted()

	log.GetLoggerWithName("xgboost").Debug("XGBClassifier trained",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ClassesKey, numClass,
	)
	return nil
}

// PredictProba returns softmax probabilities (n × NumClass).
func (x *XGBClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := x.state.RequireFitted("XGBClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	data, rows, cols := model.RowMajor(X)
	return x.Booster.PredictProba(data, rows, cols)
}

// Predict returns arg-max labels.
func (x *XGBClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := x.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba), nil
}

// Score returns mean accuracy.
func (x *XGBClassifier) Score(X, y mat.Matrix) (float64, error) {
	return model.ScoreAccuracy(x, X, y)
}

// FeatureImportances returns gain importances.
func (x *XGBClassifier) FeatureImportances() []float64 {
	if x.Booster == nil {
		return nil
	}
	return x.Booster.FeatureImportances()
}

func (x *XGBClassifier) NumClasses() int { return x.NumClass }

func (x *XGBClassifier) NumFeatures() int {
	if x.Booster == nil {
		return 0
	}
	return x.Booster.NumFeatures
}

func (x *XGBClassifier) Kind() string { return KindXGB }

// Restore implements model.Restorer.
func (x *XGBClassifier) Restore() error {
	if x.state == nil {
		x.state = model.NewStateManager()
	}
	if x.Booster == nil {
		return errors.NewValidationError("booster", "missing from decoded model", nil)
	}
	if err := x.Booster.Validate(); err != nil {
		return err
	}
	if x.Booster.NumClass != x.NumClass {
		return errors.NewValidationError("num_class", "booster class count differs", x.Booster.NumClass)
	}
	x.state.SetDimensions(x.Booster.NumFeatures, 0)
	x.state.SetFitted()
	return nil
}
