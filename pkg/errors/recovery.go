package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// PanicError は数値計算中に回復された panic を表します。
// gonum は形状の不一致や分解の破綻を panic で報告するため、Fit はこれを
// NumericFailure として返し、推定器を中途半端な状態に残しません。
type PanicError struct {
	// Operation は panic を回復した操作名（例: "PCA.Fit"）
	Operation string

	// Value は panic に渡された値
	Value interface{}

	// Stack は回復時点のゴルーチンのスタック
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("latent: panic in %s: %v", e.Operation, e.Value)
}

// Is reports the NumericFailure kind.
func (e *PanicError) Is(target error) bool { return target == ErrNumericFailure }

// Unwrap exposes the panic value when it is itself an error, e.g. mat.ErrShape.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NewPanicError は回復した値とスタックから PanicError を作成します。
func NewPanicError(operation string, value interface{}) *PanicError {
	return &PanicError{Operation: operation, Value: value, Stack: string(debug.Stack())}
}

// Recover は defer で使い、panic を *err に変換します。
// 既にエラーが設定されている場合、そのエラーは副次エラーとして保持されます。
//
//	func (p *PCA) decompose() (err error) {
//	    defer errors.Recover(&err, "PCA.Fit")
//	    ...
//	}
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	perr := NewPanicError(operation, r)
	if *err != nil {
		*err = errors.WithSecondaryError(perr, *err)
		return
	}
	*err = perr
}

// SafeExecute は fn を実行し、panic をエラーとして返します。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
