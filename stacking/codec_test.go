package stacking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agricure/oofstack/pkg/errors"
)

func TestParseUnknownPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    UnknownPolicy
		wantErr bool
	}{
		{"strict", PolicyStrict, false},
		{"", PolicyStrict, false},
		{"most_frequent", PolicyMostFrequent, false},
		{" Lenient ", PolicyMostFrequent, false},
		{"guess", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnknownPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodecSet(t *testing.T) {
	ds := syntheticDataset(200, 11)
	cs, err := FitCodecs(ds)
	require.NoError(t, err)

	assert.Equal(t, 8, cs.Len(), "six targets plus two categorical features")
	require.NoError(t, cs.Validate(ds.Schema))
	assert.Equal(t, soils, cs.Features[ColSoilType].Classes)
	assert.Equal(t, []string{"High", "Low", "Medium"}, cs.Target(TargetNStatus).Classes)

	X, err := cs.EncodeFeatures(ds)
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 200, r)
	assert.Equal(t, 10, c)

	row := ds.Samples[0]
	assert.Equal(t, row.Numeric[ColTemperature], X.At(0, 0))
	soil, _ := cs.Features[ColSoilType].Encode(row.Categorical[ColSoilType])
	assert.Equal(t, float64(soil), X.At(0, 8))

	y, err := cs.EncodeTargets(ds)
	require.NoError(t, err)
	for _, target := range ds.Schema.Targets {
		require.Len(t, y[target], 200)
		label, err := cs.Target(target).Decode(y[target][0])
		require.NoError(t, err)
		assert.Equal(t, row.Targets[target], label)
	}
}

func TestCodecSet_EncodeRowPolicies(t *testing.T) {
	ds := syntheticDataset(100, 12)
	cs, err := FitCodecs(ds)
	require.NoError(t, err)

	row := FeatureRow{
		Numeric:     ds.Samples[0].Numeric,
		Categorical: map[string]string{ColSoilType: "Volcanic", ColCrop: "Barley"},
	}
	dst := make([]float64, 10)

	_, err = cs.EncodeRow(dst, ds.Schema, row, PolicyStrict)
	var uce *errors.UnknownCategoryError
	require.True(t, errors.As(err, &uce))
	assert.Equal(t, ColSoilType, uce.Column, "first categorical column fails first")

	subs, err := cs.EncodeRow(dst, ds.Schema, row, PolicyMostFrequent)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Barley", subs[1].Value)
	code, _ := cs.Features[ColCrop].Encode(cs.Features[ColCrop].MostFrequent())
	assert.Equal(t, float64(code), dst[9])

	cs.Features[ColCrop] = nil
	assert.Error(t, cs.Validate(ds.Schema))
}
