package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PanicError は学習ユニット内で回収された panic です。
// ワーカー goroutine ごと落とさず、そのユニットの失敗として返すために使います。
type PanicError struct {
	Operation string // "train N_Status/random_forest" など
	Value     interface{}
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// Unwrap は panic の値が error だった場合にそれを返します。
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// String はスタックトレース付きの表現です。
func (e *PanicError) String() string {
	return fmt.Sprintf("%s\nStack trace:\n%s", e.Error(), e.Stack)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Str("panic", fmt.Sprint(e.Value)).
		Str("type", "PanicError")
}

// Recover は名前付き戻り値 err へのポインタと一緒に defer します。
// panic は PanicError になり、err が既に非nilならそちらを主として
// panic を副次エラーとして付けます。
//
//	func (p *LGBMClassifier) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "LGBMClassifier.Fit")
//	    ...
//	}
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	pe := &PanicError{Operation: operation, Value: r, Stack: string(debug.Stack())}
	if *err != nil {
		*err = errors.WithSecondaryError(*err, pe)
		return
	}
	*err = pe
}

// SafeExecute は fn を実行し、panic を PanicError として返します。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
