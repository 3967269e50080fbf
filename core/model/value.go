package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

// ValueKind は Value が保持する値の種類です。
type ValueKind int

const (
	// KindInvalid はゼロ値の Value を表します。
	KindInvalid ValueKind = iota
	// KindNumber はスカラー数値です。
	KindNumber
	// KindNumbers は数値列です。
	KindNumbers
	// KindString は文字列です。
	KindString
	// KindBool は真偽値です。
	KindBool
)

var kindNames = map[ValueKind]string{
	KindInvalid: "invalid",
	KindNumber:  "number",
	KindNumbers: "numbers",
	KindString:  "string",
	KindBool:    "bool",
}

// String returns the wire name of the kind.
func (k ValueKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

func parseKind(name string) (ValueKind, bool) {
	for k, n := range kindNames {
		if n == name && k != KindInvalid {
			return k, true
		}
	}
	return KindInvalid, false
}

// Value はパラメータバッグに格納されるタグ付き共用体です。
// Number, Numbers, String, Bool のいずれか一つを保持します。
//
// フィールドは gob エンコードのために公開されていますが、
// 値の生成にはコンストラクタを使ってください。
type Value struct {
	Kind ValueKind
	Num  float64
	Nums []float64
	Str  string
	Flag bool
}

// Number creates a scalar numeric value.
func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }

// Numbers creates a numeric sequence value. The slice is copied.
func Numbers(v []float64) Value {
	return Value{Kind: KindNumbers, Nums: append(make([]float64, 0, len(v)), v...)}
}

// String creates a string value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Bool creates a boolean value.
func Bool(v bool) Value { return Value{Kind: KindBool, Flag: v} }

// Int creates a scalar numeric value from an integer.
func Int(v int) Value { return Number(float64(v)) }

// AsNumber returns the scalar if v is a Number.
func (v Value) AsNumber() (float64, bool) {
	return v.Num, v.Kind == KindNumber
}

// AsInt returns the scalar as an int if v is an integral Number.
func (v Value) AsInt() (int, bool) {
	if v.Kind != KindNumber || v.Num != math.Trunc(v.Num) || math.IsInf(v.Num, 0) {
		return 0, false
	}
	return int(v.Num), true
}

// AsNumbers returns a copy of the sequence if v is Numbers.
func (v Value) AsNumbers() ([]float64, bool) {
	if v.Kind != KindNumbers {
		return nil, false
	}
	return append(make([]float64, 0, len(v.Nums)), v.Nums...), true
}

// AsString returns the string if v is a String.
func (v Value) AsString() (string, bool) {
	return v.Str, v.Kind == KindString
}

// AsBool returns the flag if v is a Bool.
func (v Value) AsBool() (bool, bool) {
	return v.Flag, v.Kind == KindBool
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	if v.Nums != nil {
		v.Nums = append(make([]float64, 0, len(v.Nums)), v.Nums...)
	}
	return v
}

// Equal reports whether v and other hold the same kind and value.
func (v Value) Equal(other Value) bool {
	return v.equal(other, 0)
}

func (v Value) equal(other Value, tol float64) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return floatEqual(v.Num, other.Num, tol)
	case KindNumbers:
		return floatsEqual(v.Nums, other.Nums, tol)
	case KindString:
		return v.Str == other.Str
	case KindBool:
		return v.Flag == other.Flag
	default:
		return true
	}
}

// Interface returns the Go value held by v
// (float64, []float64, string, bool, or nil).
func (v Value) Interface() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindNumbers:
		out, _ := v.AsNumbers()
		return out
	case KindString:
		return v.Str
	case KindBool:
		return v.Flag
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return fmt.Sprintf("%v", v.Interface())
}

type valueJSON struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes v as {"kind": "...", "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindInvalid {
		return nil, latentErrors.NewValueError("Value.MarshalJSON", "cannot encode an invalid value")
	}
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, latentErrors.Wrapf(err, "encode %s value", v.Kind)
	}
	return json.Marshal(valueJSON{Kind: v.Kind.String(), Value: raw})
}

// UnmarshalJSON decodes the {"kind": "...", "value": ...} form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var wire valueJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return latentErrors.Wrap(err, "decode value")
	}
	kind, ok := parseKind(wire.Kind)
	if !ok {
		return latentErrors.NewValidationError("kind", "unknown value kind", wire.Kind)
	}

	var out Value
	var err error
	switch kind {
	case KindNumber:
		var f float64
		err = json.Unmarshal(wire.Value, &f)
		out = Number(f)
	case KindNumbers:
		var fs []float64
		err = json.Unmarshal(wire.Value, &fs)
		out = Value{Kind: KindNumbers, Nums: fs}
		if out.Nums == nil {
			out.Nums = []float64{}
		}
	case KindString:
		var s string
		err = json.Unmarshal(wire.Value, &s)
		out = String(s)
	case KindBool:
		var b bool
		err = json.Unmarshal(wire.Value, &b)
		out = Bool(b)
	}
	if err != nil {
		return latentErrors.Wrapf(err, "decode %s value", kind)
	}
	*v = out
	return nil
}

// ValueOf converts a plain Go value into a Value.
// Supported inputs are numbers, numeric slices ([]float64, []int, []any of numbers),
// strings and bools. Anything else is an InvalidConfig error.
func ValueOf(name string, raw any) (Value, error) {
	if f, ok := toFloat(raw); ok {
		return Number(f), nil
	}
	switch x := raw.(type) {
	case Value:
		return x.Clone(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case []float64:
		return Numbers(x), nil
	case []int:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return Value{Kind: KindNumbers, Nums: out}, nil
	case []any:
		out := make([]float64, len(x))
		for i, item := range x {
			f, ok := toFloat(item)
			if !ok {
				return Value{}, latentErrors.NewValidationError(name, "sequence parameters must contain only numbers", raw)
			}
			out[i] = f
		}
		return Value{Kind: KindNumbers, Nums: out}, nil
	}
	return Value{}, latentErrors.NewValidationError(name, fmt.Sprintf("unsupported parameter type %T", raw), raw)
}

func toFloat(raw any) (float64, bool) {
	switch x := raw.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// Params は名前から Value へのオープンなマッピングです。
type Params map[string]Value

// Clone returns a deep copy. The result is never nil.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether both bags hold the same names and values.
// A nil bag equals an empty one.
func (p Params) Equal(other Params) bool {
	return p.equal(other, 0)
}

func (p Params) equal(other Params, tol float64) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		o, ok := other[k]
		if !ok || !v.equal(o, tol) {
			return false
		}
	}
	return true
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap converts the bag into plain Go values.
func (p Params) ToMap() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

// Number returns the named scalar, if present and numeric.
func (p Params) Number(name string) (float64, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

func floatEqual(a, b, tol float64) bool {
	if a == b || (math.IsNaN(a) && math.IsNaN(b)) {
		return true
	}
	return math.Abs(a-b) <= tol
}

func floatsEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !floatEqual(a[i], b[i], tol) {
			return false
		}
	}
	return true
}
