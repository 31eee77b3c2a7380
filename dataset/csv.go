// Package dataset reads the fertilizer recommendation table and splits it
// for training and evaluation.
package dataset

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/stacking"
)

// Record is one CSV line of the feature table.
type Record struct {
	Temperature Measurement `csv:"Temperature"`
	Humidity    Measurement `csv:"Humidity"`
	Moisture    Measurement `csv:"Moisture"`
	SoilType    string      `csv:"Soil_Type"`
	Crop        string      `csv:"Crop"`
	Nitrogen    Measurement `csv:"Nitrogen"`
	Phosphorus  Measurement `csv:"Phosphorus"`
	Potassium   Measurement `csv:"Potassium"`
	PH          Measurement `csv:"pH"`
	EC          Measurement `csv:"EC(mmhos/cm2)"`

	NStatus             string `csv:"N_Status"`
	PStatus             string `csv:"P_Status"`
	KStatus             string `csv:"K_Status"`
	PrimaryFertilizer   string `csv:"Primary_Fertilizer"`
	SecondaryFertilizer string `csv:"Secondary_Fertilizer"`
	PHAmendment         string `csv:"pH_Amendment"`
}

func (r *Record) numeric() map[string]Measurement {
	return map[string]Measurement{
		stacking.ColTemperature: r.Temperature,
		stacking.ColHumidity:    r.Humidity,
		stacking.ColMoisture:    r.Moisture,
		stacking.ColNitrogen:    r.Nitrogen,
		stacking.ColPhosphorus:  r.Phosphorus,
		stacking.ColPotassium:   r.Potassium,
		stacking.ColPH:          r.PH,
		stacking.ColEC:          r.EC,
	}
}

// features converts the record; blank numeric cells are left out of the
// row so checkBlank can name them.
func (r *Record) features() stacking.FeatureRow {
	num := make(map[string]float64, 8)
	for col, v := range r.numeric() {
		if v.Valid {
			num[col] = v.Value
		}
	}
	return stacking.FeatureRow{
		Numeric: num,
		Categorical: map[string]string{
			stacking.ColSoilType: strings.TrimSpace(r.SoilType),
			stacking.ColCrop:     strings.TrimSpace(r.Crop),
		},
	}
}

func (r *Record) targets() map[string]string {
	return map[string]string{
		stacking.TargetNStatus:             strings.TrimSpace(r.NStatus),
		stacking.TargetPStatus:             strings.TrimSpace(r.PStatus),
		stacking.TargetKStatus:             strings.TrimSpace(r.KStatus),
		stacking.TargetPrimaryFertilizer:   strings.TrimSpace(r.PrimaryFertilizer),
		stacking.TargetSecondaryFertilizer: strings.TrimSpace(r.SecondaryFertilizer),
		stacking.TargetPHAmendment:         strings.TrimSpace(r.PHAmendment),
	}
}

// FromSample converts a sample back to a CSV record. Missing numeric
// values are written as blank cells.
func FromSample(s stacking.Sample) *Record {
	cell := func(col string) Measurement {
		v, ok := s.Numeric[col]
		return Measurement{Value: v, Valid: ok}
	}
	return &Record{
		Temperature:         cell(stacking.ColTemperature),
		Humidity:            cell(stacking.ColHumidity),
		Moisture:            cell(stacking.ColMoisture),
		SoilType:            s.Categorical[stacking.ColSoilType],
		Crop:                s.Categorical[stacking.ColCrop],
		Nitrogen:            cell(stacking.ColNitrogen),
		Phosphorus:          cell(stacking.ColPhosphorus),
		Potassium:           cell(stacking.ColPotassium),
		PH:                  cell(stacking.ColPH),
		EC:                  cell(stacking.ColEC),
		NStatus:             s.Targets[stacking.TargetNStatus],
		PStatus:             s.Targets[stacking.TargetPStatus],
		KStatus:             s.Targets[stacking.TargetKStatus],
		PrimaryFertilizer:   s.Targets[stacking.TargetPrimaryFertilizer],
		SecondaryFertilizer: s.Targets[stacking.TargetSecondaryFertilizer],
		PHAmendment:         s.Targets[stacking.TargetPHAmendment],
	}
}

// LoadCSV reads a feature table from path.
func LoadCSV(path string) (*stacking.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a feature table with the default schema. A blank numeric,
// categorical or target cell is a ValidationError naming the 1-based line.
func ReadCSV(r io.Reader) (*stacking.Dataset, error) {
	var records []*Record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, errors.Wrap(err, "parse feature table")
	}
	if len(records) == 0 {
		return nil, errors.NewModelError("dataset.ReadCSV", "no rows", errors.ErrEmptyData)
	}

	ds := &stacking.Dataset{Schema: stacking.DefaultSchema(), Samples: make([]stacking.Sample, len(records))}
	for i, rec := range records {
		s := stacking.Sample{FeatureRow: rec.features(), Targets: rec.targets()}
		if err := checkBlank(s); err != nil {
			// header is line 1
			return nil, errors.Wrapf(err, "line %d", i+2)
		}
		ds.Samples[i] = s
	}
	return ds, nil
}

func checkBlank(s stacking.Sample) error {
	for _, c := range stacking.DefaultSchema().Numeric {
		if _, ok := s.Numeric[c]; !ok {
			return errors.NewValidationError(c, "blank numeric cell", "")
		}
	}
	for _, c := range []string{stacking.ColSoilType, stacking.ColCrop} {
		if s.Categorical[c] == "" {
			return errors.NewValidationError(c, "blank categorical cell", "")
		}
	}
	for _, t := range stacking.DefaultSchema().Targets {
		if s.Targets[t] == "" {
			return errors.NewValidationError(t, "blank target cell", "")
		}
	}
	return nil
}

// WriteCSV writes ds in the feature table layout.
func WriteCSV(w io.Writer, ds *stacking.Dataset) error {
	records := make([]*Record, len(ds.Samples))
	for i, s := range ds.Samples {
		records[i] = FromSample(s)
	}
	return errors.Wrap(gocsv.Marshal(&records, w), "write feature table")
}

// ReadRowJSON parses one flat JSON object such as
//
//	{"Temperature": 26, "Soil_Type": "Loamy", "Crop": "Wheat", ...}
//
// into a feature row. Numbers go to numeric columns and strings to
// categorical columns of schema; unknown keys are ignored.
func ReadRowJSON(r io.Reader, schema stacking.Schema) (stacking.FeatureRow, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return stacking.FeatureRow{}, errors.Wrap(err, "decode feature row")
	}
	row := stacking.FeatureRow{
		Numeric:     make(map[string]float64, len(schema.Numeric)),
		Categorical: make(map[string]string, len(schema.Categorical)),
	}
	for _, c := range schema.Numeric {
		v, ok := raw[c]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return stacking.FeatureRow{}, errors.NewValidationError(c, "not a number", string(v))
		}
		row.Numeric[c] = f
	}
	for _, c := range schema.Categorical {
		v, ok := raw[c]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return stacking.FeatureRow{}, errors.NewValidationError(c, "not a string", string(v))
		}
		row.Categorical[c] = strings.TrimSpace(s)
	}
	return row, nil
}
