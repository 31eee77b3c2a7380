package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Stacking ensemble errors and warnings
//
// ===========================================================================

// UnknownCategoryError is returned when a categorical value was never seen by
// the codec that has to encode it.
type UnknownCategoryError struct {
	Column string
	Value  string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("oofstack: unknown category %q for column %q", e.Value, e.Column)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnknownCategoryError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("value", e.Value).
		Str("type", "UnknownCategoryError")
}

// NewUnknownCategoryError creates an UnknownCategoryError with a stack trace.
func NewUnknownCategoryError(column, value string) error {
	return errors.WithStack(&UnknownCategoryError{Column: column, Value: value})
}

// FoldCoverageGapWarning reports a class of the stratification target that has
// fewer members than folds, so some folds hold no example of it.
type FoldCoverageGapWarning struct {
	Target string
	Class  string
	Count  int
	K      int
}

func (w *FoldCoverageGapWarning) Error() string {
	return fmt.Sprintf("class %q of %s has %d samples, fewer than %d folds; %d folds contain none of it",
		w.Class, w.Target, w.Count, w.K, w.K-w.Count)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *FoldCoverageGapWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("target", w.Target).
		Str("class", w.Class).
		Int("count", w.Count).
		Int("k", w.K).
		Str("type", "FoldCoverageGapWarning")
}

// NewFoldCoverageGapWarning creates a FoldCoverageGapWarning.
func NewFoldCoverageGapWarning(target, class string, count, k int) *FoldCoverageGapWarning {
	return &FoldCoverageGapWarning{Target: target, Class: class, Count: count, K: k}
}

// FamilyMismatchError means a persisted ensemble does not agree with itself:
// the family list, the meta-learner input width or the instance set differ
// from what the metadata declares.
type FamilyMismatchError struct {
	Target   string
	Expected int
	Got      int
	Reason   string
}

func (e *FamilyMismatchError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("oofstack: family mismatch: %s (expected %d, got %d)", e.Reason, e.Expected, e.Got)
	}
	return fmt.Sprintf("oofstack: family mismatch for target %s: %s (expected %d, got %d)",
		e.Target, e.Reason, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FamilyMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("target", e.Target).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("reason", e.Reason).
		Str("type", "FamilyMismatchError")
}

// NewFamilyMismatchError creates a FamilyMismatchError with a stack trace.
func NewFamilyMismatchError(target, reason string, expected, got int) error {
	return errors.WithStack(&FamilyMismatchError{Target: target, Expected: expected, Got: got, Reason: reason})
}

// IncompleteOOFCoverageError aborts training when an OOF cell block was never
// written, written twice, or written by an instance that saw the row.
type IncompleteOOFCoverageError struct {
	Target string
	Family string
	Row    int
	Reason string
}

func (e *IncompleteOOFCoverageError) Error() string {
	return fmt.Sprintf("oofstack: incomplete OOF coverage for target %s, family %s, row %d: %s",
		e.Target, e.Family, e.Row, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *IncompleteOOFCoverageError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("target", e.Target).
		Str("family", e.Family).
		Int("row", e.Row).
		Str("reason", e.Reason).
		Str("type", "IncompleteOOFCoverageError")
}

// NewIncompleteOOFCoverageError creates an IncompleteOOFCoverageError with a stack trace.
func NewIncompleteOOFCoverageError(target, family string, row int, reason string) error {
	return errors.WithStack(&IncompleteOOFCoverageError{Target: target, Family: family, Row: row, Reason: reason})
}

// DegradedEnsembleWarning is raised when the trained families cover fewer
// than two distinct model structures.
type DegradedEnsembleWarning struct {
	Families   []string
	Structures []string
}

func (w *DegradedEnsembleWarning) Error() string {
	return fmt.Sprintf("degraded ensemble: families [%s] span %d structure(s) [%s]; stacking needs at least 2",
		strings.Join(w.Families, ", "), len(w.Structures), strings.Join(w.Structures, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DegradedEnsembleWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Strs("families", w.Families).
		Strs("structures", w.Structures).
		Str("type", "DegradedEnsembleWarning")
}

// NewDegradedEnsembleWarning creates a DegradedEnsembleWarning.
func NewDegradedEnsembleWarning(families, structures []string) *DegradedEnsembleWarning {
	return &DegradedEnsembleWarning{Families: families, Structures: structures}
}

// IsUnknownCategory reports whether err carries an UnknownCategoryError.
func IsUnknownCategory(err error) bool {
	var target *UnknownCategoryError
	return errors.As(err, &target)
}
