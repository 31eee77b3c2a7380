package lightgbm

import (
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/sklearn/boosting"
	"github.com/agricure/oofstack/sklearn/tree"
)

// KindLGBM is the registry name of LGBMClassifier.
const KindLGBM = "lightgbm"

func init() {
	model.Register(KindLGBM, func() model.Classifier { return NewLGBMClassifier() })
}

// LGBMClassifier is a histogram-based, leaf-wise gradient boosting classifier.
type LGBMClassifier struct {
	state *model.StateManager

	// Hyperparameters (matching Python LightGBM)
	NumLeaves       int     `msgpack:"num_leaves"`        // Number of leaves in one tree
	MaxDepth        int     `msgpack:"max_depth"`         // Maximum tree depth, <= 0 means no limit
	LearningRate    float64 `msgpack:"learning_rate"`     // Boosting learning rate
	NumIterations   int     `msgpack:"num_iterations"`    // Number of boosting iterations
	MinChildSamples int     `msgpack:"min_child_samples"` // Minimum number of data in one leaf
	MinChildWeight  float64 `msgpack:"min_child_weight"`  // Minimum sum of hessians in one leaf
	MinSplitGain    float64 `msgpack:"min_split_gain"`
	Subsample       float64 `msgpack:"subsample"`        // bagging_fraction
	ColsampleBytree float64 `msgpack:"colsample_bytree"` // feature_fraction
	RegLambda       float64 `msgpack:"reg_lambda"`       // L2 regularization
	MaxBin          int     `msgpack:"max_bin"`
	RandomState     uint64  `msgpack:"random_state"`
	NumClass        int     `msgpack:"num_class"`

	Booster *boosting.Model[*tree.RegressionTree] `msgpack:"booster"`
}

// NewLGBMClassifier creates a new LightGBM classifier with default parameters
func NewLGBMClassifier() *LGBMClassifier {
	return &LGBMClassifier{
		state:           model.NewStateManager(),
		NumLeaves:       31,
		MaxDepth:        -1, // No limit
		LearningRate:    0.1,
		NumIterations:   100,
		MinChildSamples: 20,
		MinChildWeight:  1e-3,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		MaxBin:          255,
		RandomState:     42,
	}
}

// WithNumLeaves sets the number of leaves
func (lgb *LGBMClassifier) WithNumLeaves(n int) *LGBMClassifier {
	lgb.NumLeaves = n
	return lgb
}

// WithMaxDepth sets the maximum depth
func (lgb *LGBMClassifier) WithMaxDepth(d int) *LGBMClassifier {
	lgb.MaxDepth = d
	return lgb
}

// WithLearningRate sets the learning rate
func (lgb *LGBMClassifier) WithLearningRate(lr float64) *LGBMClassifier {
	lgb.LearningRate = lr
	return lgb
}

// WithNumIterations sets the number of iterations
func (lgb *LGBMClassifier) WithNumIterations(n int) *LGBMClassifier {
	lgb.NumIterations = n
	return lgb
}

// WithMinChildSamples sets min_data_in_leaf
func (lgb *LGBMClassifier) WithMinChildSamples(n int) *LGBMClassifier {
	lgb.MinChildSamples = n
	return lgb
}

// WithSubsample sets the bagging fraction
func (lgb *LGBMClassifier) WithSubsample(f float64) *LGBMClassifier {
	lgb.Subsample = f
	return lgb
}

// WithColsampleBytree sets the feature fraction
func (lgb *LGBMClassifier) WithColsampleBytree(f float64) *LGBMClassifier {
	lgb.ColsampleBytree = f
	return lgb
}

// WithRegLambda sets L2 regularization
func (lgb *LGBMClassifier) WithRegLambda(l float64) *LGBMClassifier {
	lgb.RegLambda = l
	return lgb
}

// WithRandomState sets the random seed
func (lgb *LGBMClassifier) WithRandomState(seed uint64) *LGBMClassifier {
	lgb.RandomState = seed
	return lgb
}

// WithNumClass fixes the number of classes
func (lgb *LGBMClassifier) WithNumClass(n int) *LGBMClassifier {
	lgb.NumClass = n
	return lgb
}

// Fit trains the classifier. y holds class indices.
func (lgb *LGBMClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LGBMClassifier.Fit")

	if err := model.CheckFitInput("LGBMClassifier.Fit", X, y); err != nil {
		return err
	}
	if lgb.NumLeaves < 2 {
		return errors.NewValidationError("num_leaves", "must be at least 2", lgb.NumLeaves)
	}
	labels, numClass, err := model.Labels("LGBMClassifier.Fit", y, lgb.NumClass)
	if err != nil {
		return err
	}
	lgb.NumClass = numClass
	data, rows, cols := model.RowMajor(X)

	params := boosting.Params{
		NumRounds:    lgb.NumIterations,
		LearningRate: lgb.LearningRate,
		Subsample:    lgb.Subsample,
		ColSample:    lgb.ColsampleBytree,
		MaxBin:       lgb.MaxBin,
		Seed:         lgb.RandomState,
		NumClass:     numClass,
	}
	split := boosting.SplitParams{
		Lambda:         lgb.RegLambda,
		Gamma:          lgb.MinSplitGain,
		MinChildWeight: lgb.MinChildWeight,
		MinDataInLeaf:  lgb.MinChildSamples,
	}
	booster, err := boosting.Fit("LGBMClassifier", data, rows, cols, labels, nil, params,
		leafWiseGrower(lgb.NumLeaves, lgb.MaxDepth, split))
	if err != nil {
		return errors.Wrap(err, "lightgbm: training failed")
	}

	lgb.Booster = booster
	lgb.state.SetDimensions(cols, rows)
	lgb.state.SetFitted()

	log.GetLoggerWithName("lightgbm.classifier").Debug("LGBMClassifier trained",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ClassesKey, numClass,
		log.IterationKey, booster.NumRounds(),
	)
	return nil
}

// PredictProba returns class probabilities (n × NumClass).
func (lgb *LGBMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lgb.state.RequireFitted("LGBMClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	data, rows, cols := model.RowMajor(X)
	return lgb.Booster.PredictProba(data, rows, cols)
}

// Predict returns the most probable class per row.
func (lgb *LGBMClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lgb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba), nil
}

// Score returns the mean accuracy
func (lgb *LGBMClassifier) Score(X, y mat.Matrix) (float64, error) {
	return model.ScoreAccuracy(lgb, X, y)
}

// GetFeatureImportance returns gain importances normalized to sum to 1.
func (lgb *LGBMClassifier) GetFeatureImportance() []float64 {
	if lgb.Booster == nil {
		return nil
	}
	return lgb.Booster.FeatureImportances()
}

func (lgb *LGBMClassifier) NumClasses() int { return lgb.NumClass }

func (lgb *LGBMClassifier) NumFeatures() int {
	if lgb.Booster == nil {
		return 0
	}
	return lgb.Booster.NumFeatures
}

func (lgb *LGBMClassifier) Kind() string { return KindLGBM }

// Restore implements model.Restorer.
func (lgb *LGBMClassifier) Restore() error {
	if lgb.state == nil {
		lgb.state = model.NewStateManager()
	}
	if lgb.Booster == nil {
		return errors.NewValidationError("booster", "missing from decoded model", nil)
	}
	if err := lgb.Booster.Validate(); err != nil {
		return err
	}
	if lgb.Booster.NumClass != lgb.NumClass {
		return errors.NewValidationError("num_class", "booster class count differs", lgb.Booster.NumClass)
	}
	lgb.state.SetDimensions(lgb.Booster.NumFeatures, 0)
	lgb.state.SetFitted()
	return nil
}
