package stacking

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agricure/oofstack/pkg/errors"
)

func TestStore_RoundTrip(t *testing.T) {
	fx := trainedFixture(t)

	var buf bytes.Buffer
	require.NoError(t, fx.ens.Save(&buf))
	blob := buf.Bytes()
	assert.Equal(t, "OOFS", string(blob[:4]))

	again, err := fx.ens.Marshal()
	require.NoError(t, err)
	assert.Equal(t, blob, again, "serialization is deterministic")

	a, err := Unmarshal(blob)
	require.NoError(t, err)
	b, err := Load(bytes.NewReader(blob))
	require.NoError(t, err)

	assert.Equal(t, fx.ens.ID, a.ID)
	assert.Equal(t, fx.ens.Families, a.Families)
	assert.Equal(t, fx.ens.Policy, a.Policy)
	assert.Equal(t, fx.ens.Partition.Assignment, a.Partition.Assignment)

	for i := 0; i < 25; i++ {
		row := fx.test.Samples[i].FeatureRow
		want, err := fx.ens.PredictDetailed(row)
		require.NoError(t, err)
		gotA, err := a.PredictDetailed(row)
		require.NoError(t, err)
		gotB, err := b.PredictDetailed(row)
		require.NoError(t, err)

		assert.Equal(t, want.Labels, gotA.Labels)
		assert.Equal(t, want.Probabilities, gotA.Probabilities)
		assert.Equal(t, gotA.Probabilities, gotB.Probabilities, "two loads are bit-identical")
	}
}

// tamper decodes blob, applies fn to the document and validates it again.
func tamper(t *testing.T, blob []byte, fn func(*document)) error {
	t.Helper()
	ens, err := Unmarshal(blob)
	require.NoError(t, err)
	raw, err := ens.Marshal()
	require.NoError(t, err)

	var doc document
	body, err := decodeBody(raw)
	require.NoError(t, err)
	require.NoError(t, msgpack.Unmarshal(body, &doc))
	fn(&doc)
	_, err = doc.ensemble()
	return err
}

func TestStore_FamilyMismatch(t *testing.T) {
	fx := trainedFixture(t)
	blob, err := fx.ens.Marshal()
	require.NoError(t, err)

	tests := []struct {
		name string
		fn   func(*document)
	}{
		{"family dropped from list", func(d *document) {
			d.Families = d.Families[:1]
			d.Structures = d.Structures[:1]
		}},
		{"extra family listed", func(d *document) {
			d.Families = append(d.Families, FamilyXGBoost)
			d.Structures = append(d.Structures, StructureBoostedTrees)
		}},
		{"duplicate family", func(d *document) { d.Families[1] = d.Families[0] }},
		{"empty family list", func(d *document) { d.Families, d.Structures = nil, nil }},
		{"instance missing", func(d *document) { d.Instances = d.Instances[1:] }},
		{"instance duplicated", func(d *document) { d.Instances[1] = d.Instances[0] }},
		{"meta width", func(d *document) { d.MetaWidth[0]++ }},
		{"meta-learner swapped", func(d *document) { d.Meta[0].Model, d.Meta[5].Model = d.Meta[5].Model, d.Meta[0].Model }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tamper(t, blob, tt.fn)
			require.Error(t, err)
			var fm *errors.FamilyMismatchError
			assert.True(t, errors.As(err, &fm), "got %v", err)
		})
	}
}

func TestStore_Corrupt(t *testing.T) {
	fx := trainedFixture(t)
	blob, err := fx.ens.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal([]byte("nope"))
	assert.Error(t, err)

	bad := append([]byte(nil), blob...)
	bad[4] = 99
	_, err = Unmarshal(bad)
	assert.Error(t, err, "unknown format version")

	_, err = Unmarshal(blob[:len(blob)/2])
	assert.Error(t, err, "truncated")

	err = tamper(t, blob, func(d *document) { d.Policy = "guess" })
	assert.Error(t, err)

	err = tamper(t, blob, func(d *document) { d.FeatureColumns = d.FeatureColumns[1:] })
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	err = tamper(t, blob, func(d *document) {
		d.FeatureCodecs[0], d.FeatureCodecs[1] = d.FeatureCodecs[1], d.FeatureCodecs[0]
	})
	assert.True(t, errors.As(err, &ve), "codecs out of schema order")

	err = tamper(t, blob, func(d *document) { d.TargetCodecs = d.TargetCodecs[:5] })
	assert.True(t, errors.As(err, &ve), "target codec missing")
}

func TestStore_MarshalDeterministic(t *testing.T) {
	ens, _, err := Train(context.Background(), syntheticDataset(90, 11), func() Config {
		cfg := testConfig(smallForest(), smallLightGBM())
		cfg.KFolds = 3
		return cfg
	}())
	require.NoError(t, err)

	first, err := ens.Marshal()
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := ens.Marshal()
		require.NoError(t, err)
		require.Equal(t, first, again, "repeat %d", i)
	}

	loaded, err := Unmarshal(first)
	require.NoError(t, err)
	reencoded, err := loaded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, first, reencoded, "load then marshal is stable")
}

func TestHolder_Swap(t *testing.T) {
	fx := trainedFixture(t)
	h := NewHolder(nil)
	_, err := h.Predict(fx.test.Samples[0].FeatureRow)
	assert.Error(t, err)

	blob, err := fx.ens.Marshal()
	require.NoError(t, err)
	require.NoError(t, h.Load(bytes.NewReader(blob)))
	assert.Equal(t, fx.ens.ID, h.Current().ID)

	labels, err := h.Predict(fx.test.Samples[0].FeatureRow)
	require.NoError(t, err)
	assert.Len(t, labels, 6)

	assert.Error(t, h.Load(bytes.NewReader([]byte("garbage"))))
	assert.Equal(t, fx.ens.ID, h.Current().ID, "failed load keeps the served ensemble")

	prev := h.Swap(fx.ens)
	assert.NotNil(t, prev)
	assert.Same(t, fx.ens, h.Current())
}
