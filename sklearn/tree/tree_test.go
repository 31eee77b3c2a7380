package tree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
)

// TestDecisionTreeClassifier_FitPredict_Binary tests binary classification
func TestDecisionTreeClassifier_FitPredict_Binary(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		3, 3,
		3, 4,
		4, 3,
		4, 4,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	dt := NewDecisionTreeClassifier(
		WithCriterion("gini"),
		WithMaxDepth(5),
	)
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	predictions, err := dt.Predict(X)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	for i := 0; i < 8; i++ {
		if predictions.At(i, 0) != y.At(i, 0) {
			t.Errorf("Sample %d: expected %v, got %v", i, y.At(i, 0), predictions.At(i, 0))
		}
	}

	XTest := mat.NewDense(2, 2, []float64{
		0.5, 0.5, // class 0
		3.5, 3.5, // class 1
	})
	testPreds, err := dt.Predict(XTest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, testPreds.At(0, 0))
	assert.Equal(t, 1.0, testPreds.At(1, 0))
}

// TestDecisionTreeClassifier_PredictProba tests probability predictions
func TestDecisionTreeClassifier_PredictProba(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	// three classes declared, class 2 never seen
	dt := NewDecisionTreeClassifier(WithMaxDepth(3), WithNumClass(3))
	require.NoError(t, dt.Fit(X, y))

	probas, err := dt.PredictProba(X)
	require.NoError(t, err)

	rows, cols := probas.Dims()
	require.Equal(t, 6, rows)
	require.Equal(t, 3, cols, "width follows the declared class count")

	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			prob := probas.At(i, j)
			if prob < 0 || prob > 1 {
				t.Errorf("Invalid probability at (%d, %d): %v", i, j, prob)
			}
			sum += prob
		}
		if math.Abs(sum-1.0) > 1e-10 {
			t.Errorf("Probabilities for sample %d don't sum to 1: %v", i, sum)
		}
		assert.Equal(t, 0.0, probas.At(i, 2))
	}
}

func TestDecisionTreeClassifier_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0, 0, 1, 1, 0,
		5, 5, 5, 6, 6, 5,
		10, 0, 10, 1, 11, 0,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	for _, criterion := range []string{"gini", "entropy"} {
		t.Run(criterion, func(t *testing.T) {
			dt := NewDecisionTreeClassifier(WithCriterion(criterion), WithMaxDepth(5))
			require.NoError(t, dt.Fit(X, y))

			score, err := dt.Score(X, y)
			require.NoError(t, err)
			assert.Equal(t, 1.0, score)
			assert.Equal(t, 3, dt.NumClasses())
		})
	}
}

func TestDecisionTreeClassifier_FeatureImportance(t *testing.T) {
	// only feature 1 separates the classes
	X := mat.NewDense(8, 3, []float64{
		1, 0, 7,
		2, 0, 3,
		3, 0, 5,
		4, 0, 1,
		1, 1, 2,
		2, 1, 6,
		3, 1, 4,
		4, 1, 8,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	imp := dt.GetFeatureImportances()
	require.Len(t, imp, 3)
	assert.InDelta(t, 1.0, imp[1], 1e-12)
	assert.Equal(t, 1, dt.GetDepth())
}

func TestDecisionTreeClassifier_MaxDepth(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	dt := NewDecisionTreeClassifier(WithMaxDepth(2))
	require.NoError(t, dt.Fit(X, y))
	assert.LessOrEqual(t, dt.GetDepth(), 2)
}

func TestDecisionTreeClassifier_BalancedWeights(t *testing.T) {
	w := BalancedClassWeights([]int{0, 0, 0, 1}, 3)
	assert.InDelta(t, 4.0/6.0, w[0], 1e-12)
	assert.InDelta(t, 2.0, w[1], 1e-12)
	assert.Equal(t, 0.0, w[2])
}

func TestDecisionTreeClassifier_Persistence(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 10, 11, 12})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	dt := NewDecisionTreeClassifier(WithRandomState(7))
	require.NoError(t, dt.Fit(X, y))

	env, err := model.Encode(dt)
	require.NoError(t, err)
	restored, err := model.Decode(env)
	require.NoError(t, err)

	want, _ := dt.PredictProba(X)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestDecisionTreeClassifier_Errors(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	_, err := dt.PredictProba(mat.NewDense(1, 1, nil))
	assert.Error(t, err, "predict before fit")

	err = dt.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{0, 0.5}))
	assert.Error(t, err, "non-integer label")

	require.NoError(t, dt.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{0, 1})))
	_, err = dt.PredictProba(mat.NewDense(1, 2, nil))
	assert.Error(t, err, "feature width mismatch")
}

func TestRegressionTree(t *testing.T) {
	var rt RegressionTree
	root := rt.AddLeaf(0)
	l, r := rt.Split(root, 0, 1.5, 2.0, -1, 1)
	assert.Equal(t, 1, l)
	assert.Equal(t, 2, r)

	assert.Equal(t, -1.0, rt.Predict([]float64{1}))
	assert.Equal(t, 1.0, rt.Predict([]float64{2}))
	assert.Equal(t, 2, rt.NumLeaves())
	assert.True(t, rt.Valid(1))
	assert.False(t, rt.Valid(0))

	gain := make([]float64, 1)
	rt.SumGain(gain)
	assert.Equal(t, 2.0, gain[0])
}

func TestObliviousTree(t *testing.T) {
	ot := &ObliviousTree{
		Features:   []int{0, 1},
		Thresholds: []float64{0.5, 0.5},
		Gains:      []float64{1, 3},
		Leaves:     []float64{0, 1, 2, 3},
	}
	assert.True(t, ot.Valid(2))
	assert.False(t, ot.Valid(1))

	assert.Equal(t, 0.0, ot.Predict([]float64{0, 0}))
	assert.Equal(t, 1.0, ot.Predict([]float64{1, 0}))
	assert.Equal(t, 2.0, ot.Predict([]float64{0, 1}))
	assert.Equal(t, 3.0, ot.Predict([]float64{1, 1}))

	ot.Shrink(0.5)
	assert.Equal(t, 1.5, ot.Predict([]float64{1, 1}))

	gain := make([]float64, 2)
	ot.SumGain(gain)
	assert.Equal(t, []float64{1, 3}, gain)

	var nilTree *ObliviousTree
	assert.False(t, nilTree.Valid(2))
}
