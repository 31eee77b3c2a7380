package stacking

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/preprocessing"
)

// UnknownPolicy decides what inference does with a categorical value that
// was not seen during training. It is fixed when the ensemble is trained.
type UnknownPolicy string

const (
	// PolicyStrict fails the prediction with an UnknownCategoryError.
	PolicyStrict UnknownPolicy = "strict"
	// PolicyMostFrequent substitutes the most frequent training category.
	PolicyMostFrequent UnknownPolicy = "most_frequent"
)

// ParseUnknownPolicy accepts "strict", "most_frequent" (or "lenient").
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyStrict):
		return PolicyStrict, nil
	case string(PolicyMostFrequent), "lenient":
		return PolicyMostFrequent, nil
	}
	return "", errors.NewValidationError("unknown_policy", "must be strict or most_frequent", s)
}

// Substitution records a lenient replacement of an unseen category.
type Substitution struct {
	Column      string `json:"column"`
	Value       string `json:"value"`
	Replacement string `json:"replacement"`
}

// CodecSet holds one LabelEncoder per categorical feature and per target,
// kept in separate maps keyed by column name.
type CodecSet struct {
	Features map[string]*preprocessing.LabelEncoder `msgpack:"features"`
	Targets  map[string]*preprocessing.LabelEncoder `msgpack:"targets"`
}

// FitCodecs builds every codec from the training rows only.
func FitCodecs(ds *Dataset) (*CodecSet, error) {
	cs := &CodecSet{
		Features: make(map[string]*preprocessing.LabelEncoder, len(ds.Schema.Categorical)),
		Targets:  make(map[string]*preprocessing.LabelEncoder, len(ds.Schema.Targets)),
	}
	for _, col := range ds.Schema.Categorical {
		le := preprocessing.NewLabelEncoder(col)
		if err := le.Fit(ds.CategoricalColumn(col)); err != nil {
			return nil, err
		}
		cs.Features[col] = le
	}
	for _, t := range ds.Schema.Targets {
		le := preprocessing.NewLabelEncoder(t)
		if err := le.Fit(ds.TargetColumn(t)); err != nil {
			return nil, err
		}
		cs.Targets[t] = le
	}
	return cs, nil
}

// Len returns the number of codecs.
func (cs *CodecSet) Len() int { return len(cs.Features) + len(cs.Targets) }

// Target returns the codec of a target column.
func (cs *CodecSet) Target(name string) *preprocessing.LabelEncoder { return cs.Targets[name] }

// Validate checks that the set covers the schema and every codec is sound.
func (cs *CodecSet) Validate(schema Schema) error {
	if cs == nil {
		return errors.NewValidationError("codecs", "missing", nil)
	}
	for _, col := range schema.Categorical {
		le, ok := cs.Features[col]
		if !ok || le == nil {
			return errors.NewValidationError(col, "missing feature codec", nil)
		}
		if err := le.Validate(); err != nil {
			return err
		}
	}
	for _, t := range schema.Targets {
		le, ok := cs.Targets[t]
		if !ok || le == nil {
			return errors.NewValidationError(t, "missing target codec", nil)
		}
		if err := le.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EncodeRow writes the feature vector of row into dst (len = feature count).
func (cs *CodecSet) EncodeRow(dst []float64, schema Schema, row FeatureRow, policy UnknownPolicy) ([]Substitution, error) {
	if err := schema.checkRow(row); err != nil {
		return nil, err
	}
	for j, c := range schema.Numeric {
		dst[j] = row.Numeric[c]
	}

	var subs []Substitution
	off := len(schema.Numeric)
	for j, c := range schema.Categorical {
		le := cs.Features[c]
		value := row.Categorical[c]
		code, err := le.Encode(value)
		if err != nil {
			if policy != PolicyMostFrequent || !errors.IsUnknownCategory(err) {
				return nil, err
			}
			replacement := le.MostFrequent()
			code, err = le.Encode(replacement)
			if err != nil {
				return nil, err
			}
			subs = append(subs, Substitution{Column: c, Value: value, Replacement: replacement})
		}
		dst[off+j] = float64(code)
	}
	return subs, nil
}

// EncodeFeatures encodes every row of ds. It always runs strictly: training
// rows define the vocabularies.
func (cs *CodecSet) EncodeFeatures(ds *Dataset) (*mat.Dense, error) {
	p := len(ds.Schema.Numeric) + len(ds.Schema.Categorical)
	X := mat.NewDense(ds.Len(), p, nil)
	for i, s := range ds.Samples {
		if _, err := cs.EncodeRow(X.RawRowView(i), ds.Schema, s.FeatureRow, PolicyStrict); err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
	}
	return X, nil
}

// EncodeTargets returns class indices per target.
func (cs *CodecSet) EncodeTargets(ds *Dataset) (map[string][]int, error) {
	out := make(map[string][]int, len(ds.Schema.Targets))
	for _, t := range ds.Schema.Targets {
		codes, err := cs.Targets[t].Transform(ds.TargetColumn(t))
		if err != nil {
			return nil, err
		}
		out[t] = codes
	}
	return out, nil
}
