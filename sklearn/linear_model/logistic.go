// Package linear_model provides linear classifiers.
package linear_model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/core/objective"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/preprocessing"
	"github.com/agricure/oofstack/sklearn/tree"
)

// KindLogisticRegression is the registry name of LogisticRegression.
const KindLogisticRegression = "logistic_regression"

func init() {
	model.Register(KindLogisticRegression, func() model.Classifier { return NewLogisticRegression() })
}

// LogisticRegression implements multinomial logistic regression
// Compatible with scikit-learn's LogisticRegression(multi_class="multinomial")
//
// Features are standardized internally, so the coefficients refer to the
// scaled inputs.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	Penalty     string  `msgpack:"penalty"`      // Regularization: "l2", "none"
	C           float64 `msgpack:"c"`            // Inverse regularization strength (1/alpha)
	ClassWeight string  `msgpack:"class_weight"` // Class weight: "balanced", "none"
	MaxIter     int     `msgpack:"max_iter"`     // Maximum iterations
	Tol         float64 `msgpack:"tol"`          // Tolerance on the max gradient entry

	// Model parameters
	Coef      []float64                     `msgpack:"coef"` // n_classes x n_features, row-major
	Intercept []float64                     `msgpack:"intercept"`
	NClasses  int                           `msgpack:"n_classes"`
	NFeatures int                           `msgpack:"n_features"`
	NIter     int                           `msgpack:"n_iter"`
	Scaler    *preprocessing.StandardScaler `msgpack:"scaler"`
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:       model.NewStateManager(),
		Penalty:     "l2",
		C:           1.0,
		ClassWeight: "none",
		MaxIter:     200,
		Tol:         1e-4,
	}

	// Apply options
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.Penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLRClassWeight sets "balanced" class weighting
func WithLRClassWeight(mode string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.ClassWeight = mode
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.MaxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.Tol = tol
	}
}

// WithLRNumClass fixes the number of output columns
func WithLRNumClass(n int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.NClasses = n
	}
}

// Fit trains the model by full-batch gradient descent on the softmax loss.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := model.CheckFitInput("LogisticRegression.Fit", X, y); err != nil {
		return err
	}
	if lr.Penalty != "l2" && lr.Penalty != "none" {
		return errors.NewValidationError("penalty", "must be l2 or none", lr.Penalty)
	}
	if lr.Penalty == "l2" && lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	labels, nClass, err := model.Labels("LogisticRegression.Fit", y, lr.NClasses)
	if err != nil {
		return err
	}

	scaler := preprocessing.NewStandardScalerDefault()
	Xs, err := scaler.FitTransform(X)
	if err != nil {
		return err
	}
	data, n, nf := model.RowMajor(Xs)

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	if lr.ClassWeight == "balanced" {
		cw := tree.BalancedClassWeights(labels, nClass)
		for i, c := range labels {
			weights[i] = cw[c]
		}
	}
	totalWeight := floats.Sum(weights)

	alpha := 0.0
	if lr.Penalty == "l2" {
		alpha = 1 / (lr.C * totalWeight)
	}

	// 勾配の Lipschitz 定数の上界から固定ステップを決める
	meanSq := 0.0
	for i := 0; i < n; i++ {
		row := data[i*nf : (i+1)*nf]
		meanSq += weights[i] / totalWeight * floats.Dot(row, row)
	}
	step := 1 / (0.5*(meanSq+1) + alpha)

	coef := make([]float64, nClass*nf)
	intercept := objective.NewMulticlassLogLoss(nClass).InitScores(labels, weights)
	gradW := make([]float64, nClass*nf)
	gradB := make([]float64, nClass)
	prob := make([]float64, nClass)
	logits := make([]float64, nClass)

	converged := false
	iter := 0
	for iter = 0; iter < lr.MaxIter; iter++ {
		for k := range gradW {
			gradW[k] = 0
		}
		for k := range gradB {
			gradB[k] = 0
		}
		for i := 0; i < n; i++ {
			row := data[i*nf : (i+1)*nf]
			for c := 0; c < nClass; c++ {
				logits[c] = intercept[c] + floats.Dot(coef[c*nf:(c+1)*nf], row)
			}
			objective.Softmax(prob, logits)
			for c := 0; c < nClass; c++ {
				r := prob[c]
				if c == labels[i] {
					r -= 1
				}
				r *= weights[i] / totalWeight
				gradB[c] += r
				floats.AddScaled(gradW[c*nf:(c+1)*nf], r, row)
			}
		}
		if alpha > 0 {
			floats.AddScaled(gradW, alpha, coef)
		}

		if math.Max(floats.Norm(gradW, math.Inf(1)), floats.Norm(gradB, math.Inf(1))) < lr.Tol {
			converged = true
			break
		}

		floats.AddScaled(coef, -step, errors.ClipGradient(gradW, 10))
		floats.AddScaled(intercept, -step, gradB)

		if iter%50 == 0 {
			if err := errors.CheckNumericalStability("LogisticRegression.Fit", coef, iter); err != nil {
				return err
			}
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.MaxIter,
			"gradient descent did not reach tol; increase max_iter"))
	}

	lr.Coef = coef
	lr.Intercept = intercept
	lr.NClasses = nClass
	lr.NFeatures = nf
	lr.NIter = iter
	lr.Scaler = scaler
	lr.state.SetDimensions(nf, n)
	lr.state.SetFitted()

	log.GetLoggerWithName("linear_model.logistic").Debug("LogisticRegression trained",
		log.SamplesKey, n,
		log.FeaturesKey, nf,
		log.IterationKey, iter,
		"converged", converged,
	)
	return nil
}

// PredictProba returns softmax probabilities (n × NumClasses).
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}
	if _, c := X.Dims(); c != lr.NFeatures {
		return nil, errors.NewDimensionError("LogisticRegression.PredictProba", lr.NFeatures, c, 1)
	}
	Xs, err := lr.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	data, n, nf := model.RowMajor(Xs)

	out := mat.NewDense(n, lr.NClasses, nil)
	logits := make([]float64, lr.NClasses)
	for i := 0; i < n; i++ {
		row := data[i*nf : (i+1)*nf]
		for c := range logits {
			logits[c] = lr.Intercept[c] + floats.Dot(lr.Coef[c*nf:(c+1)*nf], row)
		}
		objective.Softmax(out.RawRowView(i), logits)
	}
	return out, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba), nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	return model.ScoreAccuracy(lr, X, y)
}

func (lr *LogisticRegression) NumClasses() int  { return lr.NClasses }
func (lr *LogisticRegression) NumFeatures() int { return lr.NFeatures }
func (lr *LogisticRegression) Kind() string     { return KindLogisticRegression }

// Restore implements model.Restorer.
func (lr *LogisticRegression) Restore() error {
	if lr.state == nil {
		lr.state = model.NewStateManager()
	}
	if lr.Scaler == nil || len(lr.Coef) != lr.NClasses*lr.NFeatures || len(lr.Intercept) != lr.NClasses {
		return errors.NewValidationError("coef", "decoded coefficients have the wrong shape", len(lr.Coef))
	}
	if err := lr.Scaler.Restore(); err != nil {
		return err
	}
	lr.state.SetDimensions(lr.NFeatures, 0)
	lr.state.SetFitted()
	return nil
}
