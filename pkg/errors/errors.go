// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 次元削減エスティメータが返すエラーは、種別（kind）ごとのセンチネルエラーに
// errors.Is で照合でき、詳細は各構造化エラー型から errors.As で取り出せます。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	エラー種別（センチネル）
//
// ===========================================================================

var (
	// ErrInvalidConfig はハイパーパラメータや入力が不正な場合の種別です。
	ErrInvalidConfig = New("invalid config")

	// ErrDimensionMismatch は特徴量数や latent_dim が整合しない場合の種別です。
	ErrDimensionMismatch = New("dimension mismatch")

	// ErrNotFitted は Fit 前に Transform 等が呼ばれた場合の種別です。
	ErrNotFitted = New("not fitted")

	// ErrUnsupportedOperation はバリアントが操作を提供しない場合の種別です。
	ErrUnsupportedOperation = New("unsupported operation")

	// ErrNumericFailure は発散・特異行列・非収束などの数値的失敗の種別です。
	ErrNumericFailure = New("numeric failure")

	// ErrUnknownVariant はレジストリに存在しないバリアントの種別です。
	ErrUnknownVariant = New("unknown variant")

	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("latent-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ConvergenceWarning は反復アルゴリズムが max_iter までに tol を満たさなかった場合の警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Transform` などを呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("latent: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// Is reports the NotFitted kind.
func (e *NotFittedError) Is(target error) bool { return target == ErrNotFitted }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features

	// Config marks a latent_dim that exceeds the feature count: a configuration
	// problem as much as a shape one, so it also matches ErrInvalidConfig.
	Config bool
}

func (e *DimensionError) Error() string {
	if e.Config {
		return fmt.Sprintf("latent: %s: latent_dim %d exceeds the number of features %d", e.Op, e.Got, e.Expected)
	}
	return fmt.Sprintf("latent: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// Is reports the DimensionMismatch kind, plus InvalidConfig for latent_dim errors.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch || (e.Config && target == ErrInvalidConfig)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Bool("config", e.Config).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// NewLatentDimError reports latent_dim (got) larger than the feature count (expected).
func NewLatentDimError(op string, nFeatures, latentDim int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: nFeatures, Got: latentDim, Axis: 1, Config: true})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("latent: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// Is reports the InvalidConfig kind.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidConfig }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切な場合のエラーです。種別は InvalidConfig です。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("latent: %s: %s", e.Op, e.Message)
}

// Is reports the InvalidConfig kind.
func (e *ValueError) Is(target error) bool { return target == ErrInvalidConfig }

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
// 種別は Err から継承されます（例: ErrEmptyData を包めば errors.Is で照合可能）。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("latent: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("latent: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is reports empty input as an InvalidConfig error.
func (e *ModelError) Is(target error) bool {
	return target == ErrInvalidConfig && e.Err == ErrEmptyData
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NewEmptyDataError は空の入力に対するエラーを作成します。
// ErrEmptyData と ErrInvalidConfig の両方に照合します。
func NewEmptyDataError(op string) error {
	return NewModelError(op, "empty data", ErrEmptyData)
}

// UnsupportedOperationError はバリアントが提供しない操作を呼び出した場合のエラーです。
type UnsupportedOperationError struct {
	ModelName string
	Method    string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("latent: %s does not support %s()", e.ModelName, e.Method)
}

// Is reports the UnsupportedOperation kind.
func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupportedOperation }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnsupportedOperationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "UnsupportedOperationError")
}

// NewUnsupportedOperationError は新しいUnsupportedOperationErrorを作成します。
func NewUnsupportedOperationError(modelName, method string) error {
	return errors.WithStack(&UnsupportedOperationError{ModelName: modelName, Method: method})
}

// UnknownVariantError はレジストリに登録されていないバリアントIDのエラーです。
type UnknownVariantError struct {
	Variant string
	Known   []string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("latent: unknown variant %q (known: %v)", e.Variant, e.Known)
}

// Is reports the UnknownVariant kind.
func (e *UnknownVariantError) Is(target error) bool { return target == ErrUnknownVariant }

// NewUnknownVariantError は新しいUnknownVariantErrorを作成します。
func NewUnknownVariantError(variant string, known []string) error {
	return errors.WithStack(&UnknownVariantError{Variant: variant, Known: known})
}

// NumericFailureError は分解の失敗や再起動の上限到達など、数値アルゴリズムの失敗です。
type NumericFailureError struct {
	Op     string
	Reason string
	Err    error
}

func (e *NumericFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("latent: %s: numeric failure: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("latent: %s: numeric failure: %s", e.Op, e.Reason)
}

// Is reports the NumericFailure kind.
func (e *NumericFailureError) Is(target error) bool { return target == ErrNumericFailure }

func (e *NumericFailureError) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericFailureError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "NumericFailureError")
}

// NewNumericFailureError は新しいNumericFailureErrorを作成します。
func NewNumericFailureError(op, reason string, err error) error {
	return errors.WithStack(&NumericFailureError{Op: op, Reason: reason, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf、オーバーフローなどを検出します。種別は NumericFailure です。
type NumericalInstabilityError struct {
	Operation string                 // 発生した操作（例: "gradient_update", "loss_calculation"）
	Values    []float64              // 問題のある値
	Context   map[string]interface{} // デバッグ用の追加コンテキスト情報
	Iteration int                    // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("latent: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// Is reports the NumericFailure kind.
func (e *NumericalInstabilityError) Is(target error) bool { return target == ErrNumericFailure }

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
		Context:   make(map[string]interface{}),
	})
}
