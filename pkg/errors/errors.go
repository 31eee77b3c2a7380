// Package errors は oofstack のエラー型と警告の配送を扱います。
// 学習を止めない警告は Warn で流し、止めるものは構造化エラーとして返します。
// どちらも zerolog のオブジェクトとして出力できます。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// --- グローバル警告ハンドリング ---
var (
	warningMutex sync.Mutex
	// warningHandler は SetWarningHandler で設定された場合のみ非nil
	warningHandler func(w error)
	// pkg/log の init が設定する（pkg/log はこのパッケージを import するため）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は Warn の配送先を差し替えます。nil で既定に戻ります。
// テストで警告を集めるときに使います:
//
//	var got []error
//	errors.SetWarningHandler(func(w error) { got = append(got, w) })
//	defer errors.SetWarningHandler(nil)
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc は警告を構造化ログへ書く関数を登録します。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は学習を止めない警告を1件配送します。
// SetWarningHandler でハンドラが設定されていればそれを優先し、
// そうでなければ zerolog 経由で構造化ログとして出力します。
// どちらも無い場合のみ標準の log に書きます。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	switch {
	case warningHandler != nil:
		warningHandler(w)
	case zerologWarnFunc != nil:
		zerologWarnFunc(w)
	default:
		log.Printf("oofstack-warning: %v\n", w)
	}
}

// --- 学習器と評価指標の警告 ---

// ConvergenceWarning は automl 候補の反復学習が MaxIter 内に収束しなかった場合の警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s did not converge in %d iterations", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning は評価指標が定義できず既定値で置き換えた場合の警告です。
// 評価データに出現しないクラスの適合率などで発生します。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // 代わりに返した値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("%s is undefined (%s); using %g", w.Metric, w.Condition, w.Result)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// --- 構造化されたエラー型 ---

// NotFittedError は未学習の学習器や空の Holder に推論を要求した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("oofstack: %s.%s called before the model was fitted or loaded", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は行数か特徴量数が学習時と合わない場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0: 行, 1: 特徴量
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("oofstack: %s: expected %d %s, got %d", e.Op, e.Expected, e.axisName(), e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("axis", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は axis 0 で行、1 で特徴量の不一致を表します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は設定値、CSV のセル、保存済みアンサンブルの項目など
// 名前の付いた値が不正な場合のエラーです。ParamName にその名前が入ります。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("oofstack: invalid %s: %s (got %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は評価指標やレポートに渡された値が使えない場合のエラーです
// （空のベクトル、範囲外のクラス番号など）。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("oofstack: %s: %s", e.Op, e.Message)
}

func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は学習器や前処理が入力を扱えなかった場合のエラーです。
// 原因があれば Err に入り、Unwrap で取り出せます。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oofstack: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("oofstack: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// --- cockroachdb/errors の薄いラッパー ---
// 呼び出し側が cockroachdb/errors を直接 import しなくて済むようにしています。

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

func New(message string) error {
	return errors.New(message)
}

// Mark は err に reference の同一性を付与し、Is(err, reference) を真にします。
func Mark(err error, reference error) error {
	return errors.Mark(err, reference)
}

// Join は複数のエラーを1つにまとめます。nil は無視されます。
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// --- 共通エラー変数 ---

var (
	// ErrEmptyData は学習データやラベル列が空の場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrCanceled は学習がコンテキストのキャンセルで中断された場合のエラーです。
	ErrCanceled = New("training canceled")
)
