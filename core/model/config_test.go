package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

func TestNewConfigCopiesParams(t *testing.T) {
	params := Params{"scale": Bool(true)}
	cfg := NewConfig(3, params)
	params["scale"] = Bool(false)

	got, err := cfg.Bool("scale", false)
	require.NoError(t, err)
	assert.True(t, got)

	view := cfg.Params()
	view["scale"] = Bool(false)
	got, _ = cfg.Bool("scale", false)
	assert.True(t, got)
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"latent_dim":    float64(3),
		"activation":    "sigmoid",
		"learning_rate": 0.05,
		"max_iter":      200,
		"scale":         true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.LatentDim())
	assert.False(t, cfg.Has(LatentDimKey))

	act, err := cfg.String("activation", "tanh")
	require.NoError(t, err)
	assert.Equal(t, "sigmoid", act)

	lr, err := cfg.Float("learning_rate", 0.01)
	require.NoError(t, err)
	assert.Equal(t, 0.05, lr)

	iters, err := cfg.Int("max_iter", 500)
	require.NoError(t, err)
	assert.Equal(t, 200, iters)

	tol, err := cfg.Float("tol", 1e-6)
	require.NoError(t, err)
	assert.Equal(t, 1e-6, tol)

	m := cfg.ToMap()
	assert.Equal(t, 3, m[LatentDimKey])
	assert.Equal(t, "sigmoid", m["activation"])
}

func TestConfigFromMapErrors(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
	}{
		{"missing latent_dim", map[string]any{"scale": true}},
		{"fractional latent_dim", map[string]any{"latent_dim": 2.5}},
		{"string latent_dim", map[string]any{"latent_dim": "3"}},
		{"unsupported param", map[string]any{"latent_dim": 2, "layers": map[string]int{"a": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConfigFromMap(tt.in)
			require.Error(t, err)
			assert.True(t, latentErrors.Is(err, latentErrors.ErrInvalidConfig))
		})
	}
}

func TestConfigTypedHelpersRejectWrongKind(t *testing.T) {
	cfg := NewConfig(2, Params{
		"activation": Number(1),
		"max_iter":   Number(10.5),
		"scale":      String("yes"),
		"tol":        Bool(true),
	})

	_, err := cfg.String("activation", "tanh")
	assert.True(t, latentErrors.Is(err, latentErrors.ErrInvalidConfig))
	_, err = cfg.Int("max_iter", 1)
	assert.True(t, latentErrors.Is(err, latentErrors.ErrInvalidConfig))
	_, err = cfg.Bool("scale", false)
	assert.True(t, latentErrors.Is(err, latentErrors.ErrInvalidConfig))
	_, err = cfg.Float("tol", 0)
	assert.True(t, latentErrors.Is(err, latentErrors.ErrInvalidConfig))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		latentDim int
		original  int
		wantErr   bool
		mismatch  bool
	}{
		{"within bounds", 3, 10, false, false},
		{"equal to features", 3, 3, false, false},
		{"unknown dimensionality", 5, 0, false, false},
		{"zero", 0, 10, true, false},
		{"negative", -1, 0, true, false},
		{"exceeds features", 5, 3, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.latentDim, nil).Validate(tt.original)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, latentErrors.Is(err, latentErrors.ErrInvalidConfig))
			assert.Equal(t, tt.mismatch, latentErrors.Is(err, latentErrors.ErrDimensionMismatch))
		})
	}
}

func TestConfigWithDefault(t *testing.T) {
	cfg := NewConfig(2, Params{"noise_level": Number(0.3)})
	withNoise := cfg.WithDefault("noise_level", Number(0.1))
	n, _ := withNoise.Float("noise_level", 0)
	assert.Equal(t, 0.3, n)

	withScale := cfg.WithDefault("scale", Bool(true))
	assert.True(t, withScale.Has("scale"))
	assert.False(t, cfg.Has("scale"))
	assert.False(t, cfg.Equal(withScale))
	assert.True(t, cfg.Equal(withNoise))
}
