package linear_model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
)

// TestLogisticRegression_FitPredict_Binary tests binary classification
func TestLogisticRegression_FitPredict_Binary(t *testing.T) {
	// Class 0: points around (1, 1)
	// Class 1: points around (3, 3)
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	lr := NewLogisticRegression(
		WithLRMaxIter(1000),
		WithLRTol(1e-4),
	)
	require.NoError(t, lr.Fit(X, y))

	predictions, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.Equal(t, y.At(i, 0), predictions.At(i, 0), "sample %d", i)
	}

	XTest := mat.NewDense(2, 2, []float64{
		1.0, 1.0, // Should be class 0
		3.0, 3.0, // Should be class 1
	})
	testPred, err := lr.Predict(XTest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, testPred.At(0, 0))
	assert.Equal(t, 1.0, testPred.At(1, 0))
}

func TestLogisticRegression_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0, 0.5, 0.2, 0.2, 0.4,
		5, 0, 5.5, 0.3, 4.8, 0.1,
		0, 5, 0.3, 5.2, 0.1, 4.7,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	lr := NewLogisticRegression(WithLRMaxIter(500), WithLRNumClass(4))
	require.NoError(t, lr.Fit(X, y))

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	require.Equal(t, 9, rows)
	require.Equal(t, 4, cols)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			sum += proba.At(i, j)
		}
		assert.InDelta(t, 1.0, sum, 1e-10)
	}

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	lr := NewLogisticRegression(WithLRMaxIter(1), WithLRTol(1e-12))
	require.NoError(t, lr.Fit(X, y))

	require.Len(t, warnings, 1)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &cw))
}

func TestLogisticRegression_Regularization(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	norm := func(c float64) float64 {
		lr := NewLogisticRegression(WithLRC(c), WithLRMaxIter(2000))
		require.NoError(t, lr.Fit(X, y))
		return math.Abs(lr.Coef[1] - lr.Coef[0])
	}
	assert.Less(t, norm(0.01), norm(100), "smaller C shrinks the coefficients")
}

func TestLogisticRegression_Errors(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})

	tests := []struct {
		name string
		opts []LogisticRegressionOption
	}{
		{"bad penalty", []LogisticRegressionOption{WithLRPenalty("l1")}},
		{"non-positive C", []LogisticRegressionOption{WithLRC(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewLogisticRegression(tt.opts...).Fit(X, y))
		})
	}

	_, err := NewLogisticRegression().PredictProba(X)
	assert.Error(t, err)
}

func TestLogisticRegression_NonFiniteInput(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{0, 1, 1, math.NaN(), 2, 0, 3, 1})
	y := mat.NewDense(4, 1, []float64{0, 1, 0, 1})

	err := NewLogisticRegression().Fit(X, y)
	var nie *errors.NumericalInstabilityError
	require.True(t, errors.As(err, &nie))
	assert.Equal(t, "LogisticRegression.Fit", nie.Operation)
	assert.Equal(t, 0, nie.Iteration)
	assert.True(t, math.IsNaN(nie.Value))
}

func TestLogisticRegression_Persistence(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{0, 1, 1, 0, 1, 1, 4, 5, 5, 4, 5, 5})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	lr := NewLogisticRegression(WithLRClassWeight("balanced"))
	require.NoError(t, lr.Fit(X, y))

	env, err := model.Encode(lr)
	require.NoError(t, err)
	restored, err := model.Decode(env)
	require.NoError(t, err)

	want, _ := lr.PredictProba(X)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-15))
}
