package decomposition

import (
	"io"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
	"github.com/YuminosukeSato/latent/pkg/log"
)

func TestAutoencoderLossDecreases(t *testing.T) {
	X := lowRankData(80, 6, 2, 4)
	ae, err := NewAutoencoder(model.NewConfig(2, model.Params{ParamMaxIter: model.Int(300)}))
	require.NoError(t, err)
	require.NoError(t, ae.Fit(X))

	state, _ := ae.TrainedState()
	stats := state.TrainingStatistics
	initial := mustNumber(t, stats, StatInitialLoss)
	final := mustNumber(t, stats, StatFinalLoss)
	assert.Less(t, final, initial)

	history, ok := stats[StatLossHistory].AsNumbers()
	require.True(t, ok)
	require.NotEmpty(t, history)
	assert.Equal(t, initial, history[0])
	assert.Equal(t, final, history[len(history)-1])
	assert.LessOrEqual(t, len(history), lossHistoryPoints+2)

	assert.Equal(t, 0.0, mustNumber(t, stats, StatRestartCount))
	assert.Equal(t, 0.0, mustNumber(t, stats, StatNoiseLevel))
	assert.Positive(t, mustNumber(t, stats, StatNIter))
	_, ok = stats[StatConverged].AsBool()
	assert.True(t, ok)
}

func TestAutoencoderStateParameters(t *testing.T) {
	X := lowRankData(40, 5, 2, 6)
	ae, err := NewAutoencoder(model.NewConfig(3, model.Params{ParamMaxIter: model.Int(100)}))
	require.NoError(t, err)
	require.NoError(t, ae.Fit(X))

	state, _ := ae.TrainedState()
	params := state.ModelParameters
	bias, ok := params[AEEncoderBias].AsNumbers()
	require.True(t, ok)
	assert.Len(t, bias, 3)
	decoder, ok := params[AEDecoderWeights].AsNumbers()
	require.True(t, ok)
	assert.Len(t, decoder, 5*3)
	decBias, ok := params[AEDecoderBias].AsNumbers()
	require.True(t, ok)
	assert.Len(t, decBias, 5)
	act, _ := params[ParamActivation].AsString()
	assert.Equal(t, ActivationTanh, act)

	// tanh の出力は (-1, 1) に収まる
	Z, err := ae.Transform(X)
	require.NoError(t, err)
	r, c := Z.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.Less(t, Z.At(i, j), 1.0)
			assert.Greater(t, Z.At(i, j), -1.0)
		}
	}
}

func TestAutoencoderAblationRatio(t *testing.T) {
	X := lowRankData(100, 6, 2, 13)
	ae, err := NewAutoencoder(model.NewConfig(2, model.Params{
		ParamActivation: model.String(ActivationLinear),
		ParamMaxIter:    model.Int(400),
	}))
	require.NoError(t, err)
	require.NoError(t, ae.Fit(X))

	state, _ := ae.TrainedState()
	method, _ := state.TrainingStatistics[StatVarianceRatioMethod].AsString()
	require.Equal(t, RatioAblation, method)

	gain := mustNumber(t, state.TrainingStatistics, StatReconstructGain)
	assert.Greater(t, gain, 0.0)
	assert.LessOrEqual(t, gain, 1.0)
	assert.InDelta(t, gain, state.VarianceRatioSum(), 1e-12)
	assert.GreaterOrEqual(t, state.ExplainedVarianceRatio[0], state.ExplainedVarianceRatio[1])
}

func TestAutoencoderReconstructionUsesDecoder(t *testing.T) {
	X := lowRankData(60, 4, 2, 19)
	ae, err := NewAutoencoder(model.NewConfig(2, model.Params{
		ParamActivation: model.String(ActivationLinear),
		ParamMaxIter:    model.Int(400),
	}))
	require.NoError(t, err)

	Z, err := ae.FitTransform(X)
	require.NoError(t, err)
	back, err := ae.InverseTransform(Z)
	require.NoError(t, err)

	state, _ := ae.TrainedState()
	var diff mat.Dense
	diff.Sub(X, back)
	sse := mat.Norm(&diff, 2)
	sse *= sse
	total := totalSquares(X)
	gain := mustNumber(t, state.TrainingStatistics, StatReconstructGain)
	assert.InDelta(t, gain, 1-sse/total, 1e-9)
}

func TestDenoisingAutoencoderNoiseLevel(t *testing.T) {
	X := lowRankData(40, 4, 2, 2)

	dae, err := NewDenoisingAutoencoder(model.NewConfig(2, model.Params{ParamMaxIter: model.Int(50)}))
	require.NoError(t, err)
	assert.Equal(t, "DenoisingAutoencoder", dae.Name())
	require.NoError(t, dae.Fit(X))
	state, _ := dae.TrainedState()
	assert.Equal(t, DefaultDenoisingNoiseLevel, mustNumber(t, state.TrainingStatistics, StatNoiseLevel))

	custom, err := NewDenoisingAutoencoder(model.NewConfig(2, model.Params{
		ParamMaxIter:    model.Int(50),
		ParamNoiseLevel: model.Number(0.3),
	}))
	require.NoError(t, err)
	require.NoError(t, custom.Fit(X))
	state, _ = custom.TrainedState()
	assert.Equal(t, 0.3, mustNumber(t, state.TrainingStatistics, StatNoiseLevel))

	// 構築時の Config はデフォルトの noise_level を含む
	noise, err := dae.Config().Float(ParamNoiseLevel, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDenoisingNoiseLevel, noise)
}

func TestAutoencoderInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params model.Params
	}{
		{"unknown activation", model.Params{ParamActivation: model.String("relu6")}},
		{"activation kind", model.Params{ParamActivation: model.Number(1)}},
		{"learning rate", model.Params{ParamLearningRate: model.Number(0)}},
		{"max iter", model.Params{ParamMaxIter: model.Int(0)}},
		{"momentum", model.Params{ParamMomentum: model.Number(1)}},
		{"negative noise", model.Params{ParamNoiseLevel: model.Number(-0.1)}},
		{"negative restarts", model.Params{ParamMaxRestarts: model.Int(-1)}},
		{"fractional max iter", model.Params{ParamMaxIter: model.Number(2.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAutoencoder(model.NewConfig(2, tt.params))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestAutoencoderDivergenceKeepsState(t *testing.T) {
	X := lowRankData(30, 4, 2, 23)

	ae, err := NewAutoencoder(model.NewConfig(2, model.Params{ParamMaxIter: model.Int(50)}))
	require.NoError(t, err)
	require.NoError(t, ae.Fit(X))
	before, _ := ae.TrainedState()

	unstable, err := NewAutoencoder(model.NewConfig(2, model.Params{
		ParamActivation:   model.String(ActivationLinear),
		ParamLearningRate: model.Number(1e6),
		ParamMomentum:     model.Number(0),
		ParamMaxIter:      model.Int(50),
		ParamMaxRestarts:  model.Int(1),
	}))
	require.NoError(t, err)

	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	log.SetProvider(provider)
	defer log.SetProvider(log.NewZerologProvider(io.Discard, log.LevelWarn))

	err = unstable.Fit(X)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNumericFailure), "got %v", err)
	_, ok := unstable.TrainedState()
	assert.False(t, ok)
	assert.True(t, provider.Logger().ContainsMessage("training diverged, re-initializing"))
	assert.True(t, provider.Logger().ContainsField(log.RestartKey, 2.0))

	after, _ := ae.TrainedState()
	assert.True(t, before.Equal(after, 0))
}

func TestAutoencoderConvergenceWarning(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelWarn)
	log.SetProvider(provider)
	defer log.SetProvider(log.NewZerologProvider(io.Discard, log.LevelWarn))

	ae, err := NewAutoencoder(model.NewConfig(2, model.Params{
		ParamMaxIter: model.Int(5),
		ParamTol:     model.Number(0),
	}))
	require.NoError(t, err)
	require.NoError(t, ae.Fit(lowRankData(20, 4, 2, 1)))

	state, _ := ae.TrainedState()
	converged, _ := state.TrainingStatistics[StatConverged].AsBool()
	assert.False(t, converged)
	assert.Equal(t, 5.0, mustNumber(t, state.TrainingStatistics, StatNIter))
	assert.True(t, provider.Logger().ContainsMessage("Autoencoder failed to converge after 5 iterations"))
	assert.True(t, provider.Logger().ContainsField(log.ComponentKey, "warnings"))
}

func TestAutoencoderRandomStateChangesInit(t *testing.T) {
	X := lowRankData(30, 4, 2, 3)
	fit := func(seed int) *model.TrainedState {
		ae, err := NewAutoencoder(model.NewConfig(2, model.Params{
			ParamMaxIter:     model.Int(20),
			ParamRandomState: model.Int(seed),
		}))
		require.NoError(t, err)
		require.NoError(t, ae.Fit(X))
		state, _ := ae.TrainedState()
		return state
	}
	assert.True(t, fit(7).Equal(fit(7), 0))
	assert.False(t, fit(7).Equal(fit(8), 0))
}

func TestAutoencoderRecordsRestartAfterDivergence(t *testing.T) {
	X := lowRankData(40, 5, 2, 8)
	logger, _ := log.NewTestLogger(log.LevelWarn)
	ae, err := NewAutoencoder(model.NewConfig(2, model.Params{
		ParamMaxIter:     model.Int(50),
		ParamMaxRestarts: model.Int(2),
	}), WithLogger(logger))
	require.NoError(t, err)

	// 最初の試行だけ NaN の重みから始める
	attempts := 0
	ae.newWeights = func(rng *rand.Rand, k, d int) *aeWeights {
		attempts++
		w := ae.initWeights(rng, k, d)
		if attempts == 1 {
			w.We.Set(0, 0, math.NaN())
		}
		return w
	}

	require.NoError(t, ae.Fit(X))
	assert.Equal(t, 2, attempts)

	state, _ := ae.TrainedState()
	assert.Equal(t, 1.0, mustNumber(t, state.TrainingStatistics, StatRestartCount))
	assert.NoError(t, state.Validate(false))
	assert.True(t, logger.ContainsMessage("training diverged, re-initializing"))
	assert.True(t, logger.ContainsField(log.RestartKey, 1.0))
}
