package catboost

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
)

func bands(n int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(5, 6))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		v := rng.Float64() * 3
		X.Set(i, 0, v)
		X.Set(i, 1, rng.NormFloat64())
		X.Set(i, 2, rng.NormFloat64())
		y.Set(i, 0, float64(int(v)))
	}
	return X, y
}

func TestCatBoostClassifier_Fit(t *testing.T) {
	X, y := bands(300)

	clf := NewCatBoostClassifier(WithIterations(60), WithDepth(4), WithLearningRate(0.2))
	require.NoError(t, clf.Fit(X, y))

	score, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.95)

	for _, tr := range clf.Booster.Trees {
		assert.True(t, tr.Valid(3))
		assert.LessOrEqual(t, tr.Depth(), 4)
	}
	imp := clf.FeatureImportances()
	assert.Greater(t, imp[0], 0.5)
}

func TestCatBoostClassifier_ProbaWidth(t *testing.T) {
	X, y := bands(90)
	clf := NewCatBoostClassifier(WithIterations(5), WithNumClass(4), WithL2LeafReg(1), WithBorderCount(16))
	require.NoError(t, clf.Fit(X, y))

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)
	_, cols := proba.Dims()
	assert.Equal(t, 4, cols)
}

func TestCatBoostClassifier_Persistence(t *testing.T) {
	X, y := bands(80)
	clf := NewCatBoostClassifier(WithIterations(5), WithDepth(3), WithRandomSeed(2))
	require.NoError(t, clf.Fit(X, y))

	env, err := model.Encode(clf)
	require.NoError(t, err)
	restored, err := model.Decode(env)
	require.NoError(t, err)

	want, _ := clf.PredictProba(X)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestCatBoostClassifier_InvalidDepth(t *testing.T) {
	X, y := bands(20)
	assert.Error(t, NewCatBoostClassifier(WithDepth(0)).Fit(X, y))
	assert.Error(t, NewCatBoostClassifier(WithDepth(17)).Fit(X, y))
}
