// Package stacking implements the multi-output out-of-fold stacking
// ensemble: codecs, the shared fold partition, the base model bank, OOF
// matrices, per-target meta-learners, inference and persistence.
//
// Training:
//
//	ens, report, err := stacking.Train(ctx, ds, stacking.DefaultConfig())
//	for _, w := range report.Warnings {
//	    logger.Warn(w.Error())
//	}
//
// Inference:
//
//	labels, err := ens.Predict(row)
//	// labels["pH_Amendment"] == "Lime"
package stacking

import (
	"github.com/agricure/oofstack/pkg/errors"
)

// Default column names of the fertilizer recommendation table.
const (
	ColTemperature = "Temperature"
	ColHumidity    = "Humidity"
	ColMoisture    = "Moisture"
	ColSoilType    = "Soil_Type"
	ColCrop        = "Crop"
	ColNitrogen    = "Nitrogen"
	ColPhosphorus  = "Phosphorus"
	ColPotassium   = "Potassium"
	ColPH          = "pH"
	ColEC          = "EC(mmhos/cm2)"

	TargetNStatus             = "N_Status"
	TargetPStatus             = "P_Status"
	TargetKStatus             = "K_Status"
	TargetPrimaryFertilizer   = "Primary_Fertilizer"
	TargetSecondaryFertilizer = "Secondary_Fertilizer"
	TargetPHAmendment         = "pH_Amendment"
)

// Schema names the columns of a dataset. The encoded feature vector is
// Numeric followed by Categorical, in this order.
type Schema struct {
	Numeric     []string `msgpack:"numeric" yaml:"numeric"`
	Categorical []string `msgpack:"categorical" yaml:"categorical"`
	Targets     []string `msgpack:"targets" yaml:"targets"`
}

// DefaultSchema returns the fertilizer recommendation schema.
func DefaultSchema() Schema {
	return Schema{
		Numeric: []string{
			ColTemperature, ColHumidity, ColMoisture,
			ColNitrogen, ColPhosphorus, ColPotassium,
			ColPH, ColEC,
		},
		Categorical: []string{ColSoilType, ColCrop},
		Targets: []string{
			TargetNStatus, TargetPStatus, TargetKStatus,
			TargetPrimaryFertilizer, TargetSecondaryFertilizer, TargetPHAmendment,
		},
	}
}

// FeatureColumns returns the encoded feature order.
func (s Schema) FeatureColumns() []string {
	cols := make([]string, 0, len(s.Numeric)+len(s.Categorical))
	cols = append(cols, s.Numeric...)
	return append(cols, s.Categorical...)
}

// HasTarget reports whether name is one of the target columns.
func (s Schema) HasTarget(name string) bool {
	for _, t := range s.Targets {
		if t == name {
			return true
		}
	}
	return false
}

// Validate checks that the schema is usable and column names are unique.
func (s Schema) Validate() error {
	if len(s.Numeric)+len(s.Categorical) == 0 {
		return errors.NewValidationError("schema", "no feature columns", nil)
	}
	if len(s.Targets) == 0 {
		return errors.NewValidationError("schema", "no target columns", nil)
	}
	seen := make(map[string]bool)
	for _, group := range [][]string{s.Numeric, s.Categorical, s.Targets} {
		for _, c := range group {
			if c == "" {
				return errors.NewValidationError("schema", "empty column name", c)
			}
			if seen[c] {
				return errors.NewValidationError("schema", "duplicate column", c)
			}
			seen[c] = true
		}
	}
	return nil
}

// FeatureRow is one input row: numeric and categorical features by column.
type FeatureRow struct {
	Numeric     map[string]float64 `json:"numeric"`
	Categorical map[string]string  `json:"categorical"`
}

// Sample is a training row: features plus one label per target.
type Sample struct {
	FeatureRow
	Targets map[string]string `json:"targets"`
}

// Dataset is an in-memory feature table.
type Dataset struct {
	Schema  Schema
	Samples []Sample
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Samples) }

// TargetColumn returns the labels of one target.
func (d *Dataset) TargetColumn(target string) []string {
	out := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Targets[target]
	}
	return out
}

// CategoricalColumn returns the values of one categorical feature.
func (d *Dataset) CategoricalColumn(col string) []string {
	out := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Categorical[col]
	}
	return out
}

// Subset returns a dataset over the given rows (samples are shared).
func (d *Dataset) Subset(rows []int) *Dataset {
	out := &Dataset{Schema: d.Schema, Samples: make([]Sample, len(rows))}
	for i, r := range rows {
		out.Samples[i] = d.Samples[r]
	}
	return out
}

// Validate checks that every sample carries every column.
func (d *Dataset) Validate() error {
	if err := d.Schema.Validate(); err != nil {
		return err
	}
	if len(d.Samples) == 0 {
		return errors.NewModelError("Dataset.Validate", "no samples", errors.ErrEmptyData)
	}
	for i, s := range d.Samples {
		if err := d.Schema.checkRow(s.FeatureRow); err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
		for _, t := range d.Schema.Targets {
			if v, ok := s.Targets[t]; !ok || v == "" {
				return errors.Wrapf(errors.NewValidationError(t, "missing target label", nil), "row %d", i)
			}
		}
	}
	return nil
}

// checkRow reports the first missing feature as a ValidationError.
func (s Schema) checkRow(row FeatureRow) error {
	for _, c := range s.Numeric {
		if _, ok := row.Numeric[c]; !ok {
			return errors.NewValidationError(c, "missing numeric feature", nil)
		}
	}
	for _, c := range s.Categorical {
		if v, ok := row.Categorical[c]; !ok || v == "" {
			return errors.NewValidationError(c, "missing categorical feature", nil)
		}
	}
	return nil
}
