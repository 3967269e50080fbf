package model

import (
	"fmt"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

// LatentDimKey is the mapping key carrying the target dimensionality.
const LatentDimKey = "latent_dim"

// Config は次元削減バリアントのハイパーパラメータを表す不変の値です。
//
// latent_dim と バリアント固有のパラメータを保持します。構築後に変更する
// 手段はなく、Params などの取得系メソッドは常にコピーを返します。
type Config struct {
	latentDim int
	params    Params
}

// NewConfig creates a Config. params is copied.
func NewConfig(latentDim int, params Params) Config {
	return Config{latentDim: latentDim, params: params.Clone()}
}

// ConfigFromMap builds a Config from a plain mapping such as one decoded from YAML.
//
// latent_dim is required and must be integral. Every other entry becomes a
// variant parameter; values that cannot be represented as a Value are rejected
// with an InvalidConfig error.
func ConfigFromMap(m map[string]any) (Config, error) {
	raw, ok := m[LatentDimKey]
	if !ok {
		return Config{}, latentErrors.NewValidationError(LatentDimKey, "latent_dim is required", nil)
	}
	v, err := ValueOf(LatentDimKey, raw)
	if err != nil {
		return Config{}, err
	}
	latentDim, ok := v.AsInt()
	if !ok {
		return Config{}, latentErrors.NewValidationError(LatentDimKey, "latent_dim must be an integer", raw)
	}

	params := make(Params, len(m))
	for name, rawParam := range m {
		if name == LatentDimKey {
			continue
		}
		pv, err := ValueOf(name, rawParam)
		if err != nil {
			return Config{}, err
		}
		params[name] = pv
	}
	return Config{latentDim: latentDim, params: params}, nil
}

// LatentDim returns the target number of output dimensions.
func (c Config) LatentDim() int { return c.latentDim }

// Params returns a copy of the variant parameters.
func (c Config) Params() Params { return c.params.Clone() }

// Param returns a copy of the named parameter.
func (c Config) Param(name string) (Value, bool) {
	v, ok := c.params[name]
	if !ok {
		return Value{}, false
	}
	return v.Clone(), true
}

// Has reports whether the named parameter is set.
func (c Config) Has(name string) bool {
	_, ok := c.params[name]
	return ok
}

// WithDefault returns a Config with name set to v unless it is already present.
func (c Config) WithDefault(name string, v Value) Config {
	if c.Has(name) {
		return c
	}
	params := c.params.Clone()
	params[name] = v.Clone()
	return Config{latentDim: c.latentDim, params: params}
}

// ToMap returns the configuration as a plain mapping, including latent_dim.
func (c Config) ToMap() map[string]any {
	out := c.params.ToMap()
	out[LatentDimKey] = c.latentDim
	return out
}

// Float returns the named numeric parameter or def when absent.
func (c Config) Float(name string, def float64) (float64, error) {
	v, ok := c.params[name]
	if !ok {
		return def, nil
	}
	f, ok := v.AsNumber()
	if !ok {
		return def, wrongKind(name, KindNumber, v)
	}
	return f, nil
}

// Int returns the named integral parameter or def when absent.
func (c Config) Int(name string, def int) (int, error) {
	v, ok := c.params[name]
	if !ok {
		return def, nil
	}
	n, ok := v.AsInt()
	if !ok {
		return def, latentErrors.NewValidationError(name, "must be an integer", v.Interface())
	}
	return n, nil
}

// String returns the named string parameter or def when absent.
func (c Config) String(name string, def string) (string, error) {
	v, ok := c.params[name]
	if !ok {
		return def, nil
	}
	s, ok := v.AsString()
	if !ok {
		return def, wrongKind(name, KindString, v)
	}
	return s, nil
}

// Bool returns the named boolean parameter or def when absent.
func (c Config) Bool(name string, def bool) (bool, error) {
	v, ok := c.params[name]
	if !ok {
		return def, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return def, wrongKind(name, KindBool, v)
	}
	return b, nil
}

// Validate checks latent_dim against the original dimensionality.
//
// latent_dim < 1 is an InvalidConfig error. latent_dim > originalDim is a
// DimensionError that matches both ErrDimensionMismatch and ErrInvalidConfig.
// originalDim <= 0 means the dimensionality is not known yet and only the
// lower bound is checked.
func (c Config) Validate(originalDim int) error {
	if c.latentDim < 1 {
		return latentErrors.NewValidationError(LatentDimKey, "must be at least 1", c.latentDim)
	}
	if originalDim > 0 && c.latentDim > originalDim {
		return latentErrors.NewLatentDimError("Config.Validate", originalDim, c.latentDim)
	}
	return nil
}

// Equal reports whether two configs carry the same latent_dim and params.
func (c Config) Equal(other Config) bool {
	return c.latentDim == other.latentDim && c.params.Equal(other.params)
}

func wrongKind(name string, want ValueKind, got Value) error {
	return latentErrors.NewValidationError(name, fmt.Sprintf("must be a %s, got %s", want, got.Kind), got.Interface())
}
