package model

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// priorClassifier predicts the training class frequencies for every row.
type priorClassifier struct {
	Prior    []float64 `msgpack:"prior"`
	Features int       `msgpack:"features"`
	restored bool
}

func (p *priorClassifier) Fit(X, y mat.Matrix) error {
	n, c := X.Dims()
	p.Features = c
	for i := range p.Prior {
		p.Prior[i] = 0
	}
	for i := 0; i < n; i++ {
		p.Prior[int(y.At(i, 0))] += 1 / float64(n)
	}
	return nil
}

func (p *priorClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, len(p.Prior), nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, p.Prior)
	}
	return out, nil
}

func (p *priorClassifier) NumClasses() int  { return len(p.Prior) }
func (p *priorClassifier) NumFeatures() int { return p.Features }
func (p *priorClassifier) Kind() string     { return "test_prior" }
func (p *priorClassifier) Restore() error   { p.restored = true; return nil }

func init() {
	Register("test_prior", func() Classifier { return &priorClassifier{} })
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := &priorClassifier{Prior: make([]float64, 3)}
	X := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := mat.NewDense(4, 1, []float64{0, 2, 2, 1})
	require.NoError(t, p.Fit(X, y))

	env, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, "test_prior", env.Kind)

	got, err := Decode(env)
	require.NoError(t, err)

	restored, ok := got.(*priorClassifier)
	require.True(t, ok)
	assert.True(t, restored.restored, "Restore should be invoked after decode")
	assert.Equal(t, p.Prior, restored.Prior)
	assert.Equal(t, 2, restored.NumFeatures())
}

func TestSaveLoadWriter(t *testing.T) {
	p := &priorClassifier{Prior: []float64{0.25, 0.75}, Features: 5}

	var buf bytes.Buffer
	require.NoError(t, SaveModelToWriter(p, &buf))

	got, err := LoadModelFromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumClasses())
	assert.Equal(t, 5, got.NumFeatures())
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(Envelope{Kind: "no_such_kind"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_kind")
}

func TestRegisterTwicePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("test_prior", func() Classifier { return &priorClassifier{} })
	})
	assert.Contains(t, Kinds(), "test_prior")
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	err := s.RequireFitted("LGBMClassifier", "PredictProba")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LGBMClassifier")

	s.SetDimensions(10, 800)
	s.SetFitted()
	assert.NoError(t, s.RequireFitted("LGBMClassifier", "PredictProba"))

	f, n := s.GetDimensions()
	assert.Equal(t, 10, f)
	assert.Equal(t, 800, n)

	s.Reset()
	assert.False(t, s.IsFitted())
}
