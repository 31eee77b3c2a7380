package dataset

import (
	"strconv"
	"strings"

	"github.com/agricure/oofstack/pkg/errors"
)

// Measurement is a numeric CSV cell. A blank or whitespace-only cell
// leaves Valid false instead of reading as 0.
type Measurement struct {
	Value float64
	Valid bool
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (m *Measurement) UnmarshalCSV(cell string) error {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		*m = Measurement{}
		return nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return errors.NewValidationError("cell", "not a number", cell)
	}
	*m = Measurement{Value: v, Valid: true}
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (m Measurement) MarshalCSV() (string, error) {
	if !m.Valid {
		return "", nil
	}
	return strconv.FormatFloat(m.Value, 'g', -1, 64), nil
}
