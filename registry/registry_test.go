package registry

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/decomposition"
	"github.com/YuminosukeSato/latent/pkg/errors"
	"github.com/YuminosukeSato/latent/pkg/log"
)

func sampleData() *mat.Dense {
	X := mat.NewDense(12, 4, nil)
	for i := 0; i < 12; i++ {
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64((i+1)*(j+2)%7)+0.1*float64(i*j))
		}
	}
	return X
}

func TestNewRegistersBundledVariants(t *testing.T) {
	reg := New()
	assert.Equal(t, []string{
		decomposition.VariantAutoencoder,
		decomposition.VariantDenoisingAutoencoder,
		decomposition.VariantPCA,
		decomposition.VariantQuantumAutoencoder,
		decomposition.VariantQuantumDenoisingAutoencoder,
		decomposition.VariantRandomProjection,
	}, reg.Variants())
	assert.Empty(t, Empty().Variants())
}

func TestBuildEveryVariant(t *testing.T) {
	reg := New()
	names := map[string]string{
		decomposition.VariantPCA:                         "PCA",
		decomposition.VariantAutoencoder:                 "Autoencoder",
		decomposition.VariantDenoisingAutoencoder:        "DenoisingAutoencoder",
		decomposition.VariantQuantumAutoencoder:          "QuantumAutoencoder",
		decomposition.VariantQuantumDenoisingAutoencoder: "QuantumDenoisingAutoencoder",
		decomposition.VariantRandomProjection:            "RandomProjection",
	}
	for _, id := range reg.Variants() {
		t.Run(id, func(t *testing.T) {
			est, err := reg.Build(id, map[string]any{"latent_dim": 2, "max_iter": 10, "random_state": 3})
			require.NoError(t, err)
			assert.Equal(t, names[id], est.Name())
			assert.Equal(t, 2, est.Config().LatentDim())

			require.NoError(t, est.Fit(sampleData()))
			state, ok := est.TrainedState()
			require.True(t, ok)
			assert.Len(t, state.Components, 2)
		})
	}
}

func TestBuildUnknownVariant(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelWarn)
	reg := New(WithLogger(logger))

	_, err := reg.Build("kernel_pca", map[string]any{"latent_dim": 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownVariant))
	assert.Contains(t, err.Error(), "kernel_pca")
	assert.True(t, logger.ContainsMessage("build rejected"))
	assert.True(t, logger.ContainsField(log.VariantKey, "kernel_pca"))
}

func TestBuildConfigErrors(t *testing.T) {
	reg := New()
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"missing latent_dim", map[string]any{"whiten": true}},
		{"fractional latent_dim", map[string]any{"latent_dim": 1.5}},
		{"unsupported value", map[string]any{"latent_dim": 2, "whiten": struct{}{}}},
		{"wrong kind", map[string]any{"latent_dim": 2, "whiten": "yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Build(decomposition.VariantPCA, tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestUnknownParamPolicy(t *testing.T) {
	cfg := map[string]any{"latent_dim": 2, "n_layers": 3}

	logger, _ := log.NewTestLogger(log.LevelWarn)
	lenient := New(WithLogger(logger))
	est, err := lenient.Build(decomposition.VariantPCA, cfg)
	require.NoError(t, err)
	assert.NotNil(t, est)
	assert.True(t, logger.ContainsMessage("ignoring unknown parameters"))

	strict := New(WithPolicy(Strict))
	_, err = strict.Build(decomposition.VariantPCA, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "n_layers")

	// n_layers は量子バリアントの既知パラメータ
	_, err = strict.Build(decomposition.VariantQuantumAutoencoder, cfg)
	assert.NoError(t, err)

	assert.Equal(t, "strict", Strict.String())
	assert.Equal(t, "lenient", Lenient.String())
}

func TestRegisterCustomVariant(t *testing.T) {
	reg := Empty(WithPolicy(Strict))
	calls := 0
	err := reg.Register("scaled_pca", Variant{
		Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
			calls++
			return decomposition.NewPCA(cfg.WithDefault(decomposition.ParamScale, model.Bool(true)), opts...)
		},
	})
	require.NoError(t, err)

	// Params が nil のバリアントは任意の名前を受け付ける
	est, err := reg.Build("scaled_pca", map[string]any{"latent_dim": 1, "anything": "goes"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.NoError(t, est.Fit(sampleData()))
	state, _ := est.TrainedState()
	assert.True(t, state.HasScale())

	assert.True(t, errors.Is(reg.Register(" ", Variant{Factory: func(model.Config, ...decomposition.Option) (model.Estimator, error) { return nil, nil }}), errors.ErrInvalidConfig))
	assert.True(t, errors.Is(reg.Register("nil_factory", Variant{}), errors.ErrInvalidConfig))
}

func TestRegisterEmptyParamsRejectsEverything(t *testing.T) {
	reg := Empty(WithPolicy(Strict))
	require.NoError(t, reg.Register("bare_pca", Variant{
		Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
			return decomposition.NewPCA(cfg, opts...)
		},
		Params: []string{},
	}))

	v, ok := reg.Lookup("bare_pca")
	require.True(t, ok)
	assert.NotNil(t, v.Params)
	assert.Empty(t, v.Params)

	_, err := reg.Build("bare_pca", map[string]any{"latent_dim": 2, "bogus": 1.0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "bogus")

	_, err = reg.Build("bare_pca", map[string]any{"latent_dim": 2})
	assert.NoError(t, err)
}

func TestRegisterReplaces(t *testing.T) {
	reg := New()
	err := reg.Register(decomposition.VariantPCA, Variant{
		Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
			return decomposition.NewRandomProjection(cfg, opts...)
		},
	})
	require.NoError(t, err)
	est, err := reg.Build(decomposition.VariantPCA, map[string]any{"latent_dim": 1})
	require.NoError(t, err)
	assert.Equal(t, "RandomProjection", est.Name())
	assert.Len(t, reg.Variants(), 6)
}

func TestBuiltEstimatorsLogWithVariant(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	reg := New(WithLogger(logger))
	est, err := reg.Build(decomposition.VariantRandomProjection, map[string]any{"latent_dim": 2})
	require.NoError(t, err)
	require.NoError(t, est.Fit(sampleData()))

	assert.True(t, logger.ContainsMessage("fit completed"))
	assert.True(t, logger.ContainsField(log.VariantKey, decomposition.VariantRandomProjection))
	assert.True(t, logger.ContainsField(log.ModelNameKey, "RandomProjection"))
}

func TestConcurrentRegistryUse(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := reg.Build(decomposition.VariantPCA, map[string]any{"latent_dim": 1})
				assert.NoError(t, err)
				return
			}
			id := "custom_" + strings.Repeat("x", i)
			assert.NoError(t, reg.Register(id, Variant{
				Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
					return decomposition.NewPCA(cfg, opts...)
				},
			}))
		}(i)
	}
	wg.Wait()
	assert.Len(t, reg.Variants(), 10)
}
