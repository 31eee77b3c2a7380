package errors

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// NumericalInstabilityError は反復学習中の係数に NaN か Inf が現れた場合のエラーです。
// 最初に見つかった値とその位置だけを保持します。
type NumericalInstabilityError struct {
	Operation string
	Iteration int
	Index     int
	Value     float64
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("oofstack: %s: non-finite value %v at index %d (iteration %d)",
		e.Operation, e.Value, e.Index, e.Iteration)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Int("iteration", e.Iteration).
		Int("index", e.Index).
		Str("value", fmt.Sprint(e.Value)).
		Str("type", "NumericalInstabilityError")
}

// CheckNumericalStability returns a NumericalInstabilityError for the first
// NaN or Inf in values.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.WithStack(&NumericalInstabilityError{
				Operation: operation,
				Iteration: iteration,
				Index:     i,
				Value:     v,
			})
		}
	}
	return nil
}

// ClipGradient rescales gradient to an L2 norm of at most maxNorm.
// The input is returned unchanged when it is already within bounds.
func ClipGradient(gradient []float64, maxNorm float64) []float64 {
	norm := floats.Norm(gradient, 2)
	if norm <= maxNorm {
		return gradient
	}
	clipped := make([]float64, len(gradient))
	copy(clipped, gradient)
	floats.Scale(maxNorm/norm, clipped)
	return clipped
}
