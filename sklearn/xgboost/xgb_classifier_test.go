package xgboost

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
)

func xorData(n int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(11, 12))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.Float64(), rng.Float64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		if (a > 0.5) != (b > 0.5) {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestXGBClassifier_LearnsInteraction(t *testing.T) {
	X, y := xorData(400)

	clf := NewXGBClassifier(WithNEstimators(40), WithMaxDepth(3), WithLearningRate(0.3))
	require.NoError(t, clf.Fit(X, y))

	score, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.95, "depth-wise trees capture the xor interaction")
}

func TestXGBClassifier_GammaPrunes(t *testing.T) {
	X, y := xorData(200)

	loose := NewXGBClassifier(WithNEstimators(5), WithMaxDepth(4))
	require.NoError(t, loose.Fit(X, y))
	strict := NewXGBClassifier(WithNEstimators(5), WithMaxDepth(4), WithGamma(1e6))
	require.NoError(t, strict.Fit(X, y))

	for _, tr := range strict.Booster.Trees {
		assert.Len(t, tr.Nodes, 1, "huge gamma leaves only the root")
	}
	assert.Greater(t, len(loose.Booster.Trees[0].Nodes), 1)
}

func TestXGBClassifier_Options(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"defaults", nil, false},
		{"subsampled", []Option{WithSubsample(0.5), WithColsampleBytree(0.5), WithRandomState(3)}, false},
		{"zero depth", []Option{WithMaxDepth(0)}, true},
		{"negative gamma", []Option{WithGamma(-1)}, true},
		{"bad subsample", []Option{WithSubsample(1.5)}, true},
	}
	X, y := xorData(60)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithNEstimators(3)}, tt.opts...)
			err := NewXGBClassifier(opts...).Fit(X, y)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestXGBClassifier_Persistence(t *testing.T) {
	X, y := xorData(100)
	clf := NewXGBClassifier(WithNEstimators(5), WithNumClass(3), WithMinChildWeight(0.5), WithRegLambda(2))
	require.NoError(t, clf.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(clf, &buf))
	restored, err := model.LoadModelFromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindXGB, restored.Kind())
	assert.Equal(t, 3, restored.NumClasses())

	want, _ := clf.PredictProba(X)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}
