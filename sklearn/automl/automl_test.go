package automl

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/sklearn/tree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func linearClasses(n int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(21, 22))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		switch {
		case a+b > 1:
			y.Set(i, 0, 2)
		case a+b > -1:
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestStratifiedHoldout(t *testing.T) {
	labels := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 2}
	train, hold := stratifiedHoldout(labels, 3, 0.2, 1)

	assert.Len(t, hold, 2, "one row of each class with at least two members")
	assert.Len(t, train, 9)
	assert.Contains(t, train, 10, "a singleton class stays in training")

	seen := map[int]bool{}
	for _, r := range append(append([]int{}, train...), hold...) {
		assert.False(t, seen[r])
		seen[r] = true
	}
}

func TestAutoMLClassifier_Fit(t *testing.T) {
	X, y := linearClasses(240)

	clf := NewAutoMLClassifier(WithRandomState(4), WithSelectionRounds(10))
	require.NoError(t, clf.Fit(X, y))

	require.Len(t, clf.Leaderboard, len(DefaultCandidates()))
	total := 0.0
	for _, e := range clf.Leaderboard {
		total += e.Weight
		assert.GreaterOrEqual(t, e.LogLoss, 0.0)
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	assert.NotEmpty(t, clf.Members)

	score, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.85)

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)
	for i := 0; i < 240; i++ {
		s := 0.0
		for c := 0; c < 3; c++ {
			s += proba.At(i, c)
		}
		assert.InDelta(t, 1.0, s, 1e-9)
	}
}

func TestAutoMLClassifier_CustomCandidates(t *testing.T) {
	X, y := linearClasses(60)
	stump := Candidate{Name: "stump", Build: func(numClass int, seed uint64) model.Classifier {
		return tree.NewDecisionTreeClassifier(tree.WithMaxDepth(1), tree.WithNumClass(numClass))
	}}

	clf := NewAutoMLClassifier(WithCandidates(stump), WithNumClass(4), WithSelectionRounds(3))
	require.NoError(t, clf.Fit(X, y))
	require.Len(t, clf.Members, 1)
	assert.Equal(t, []float64{1}, clf.Weights)
	assert.Equal(t, 4, clf.NumClasses())
}

func TestAutoMLClassifier_Persistence(t *testing.T) {
	X, y := linearClasses(80)
	clf := NewAutoMLClassifier(WithSelectionRounds(5))
	require.NoError(t, clf.Fit(X, y))

	env, err := model.Encode(clf)
	require.NoError(t, err)
	restored, err := model.Decode(env)
	require.NoError(t, err)

	want, _ := clf.PredictProba(X)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-15))
}

func TestAutoMLClassifier_Validation(t *testing.T) {
	X, y := linearClasses(20)
	assert.Error(t, NewAutoMLClassifier(WithHoldoutFraction(0)).Fit(X, y))
	assert.Error(t, NewAutoMLClassifier(WithSelectionRounds(0)).Fit(X, y))
	assert.Error(t, NewAutoMLClassifier(WithCandidates()).Fit(X, y))
}
