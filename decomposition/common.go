package decomposition

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/core/parallel"
	"github.com/YuminosukeSato/latent/pkg/errors"
	"github.com/YuminosukeSato/latent/pkg/log"
	"github.com/YuminosukeSato/latent/preprocessing"
)

// Registry identifiers of the bundled variants.
const (
	VariantPCA                         = "pca"
	VariantAutoencoder                 = "autoencoder"
	VariantDenoisingAutoencoder        = "denoising_autoencoder"
	VariantQuantumAutoencoder          = "quantum_autoencoder"
	VariantQuantumDenoisingAutoencoder = "quantum_denoising_autoencoder"
	VariantRandomProjection            = "random_projection"
)

// Hyperparameter names read from model.Config.
const (
	ParamScale        = "scale"
	ParamWhiten       = "whiten"
	ParamActivation   = "activation"
	ParamLearningRate = "learning_rate"
	ParamMaxIter      = "max_iter"
	ParamTol          = "tol"
	ParamMomentum     = "momentum"
	ParamRandomState  = "random_state"
	ParamNoiseLevel   = "noise_level"
	ParamMaxRestarts  = "max_restarts"
	ParamNLayers      = "n_layers"
)

// Keys written to TrainedState.TrainingStatistics.
const (
	StatNSamples            = "n_samples"
	StatNFeatures           = "n_features"
	StatVarianceRatioMethod = "variance_ratio_method"
	StatConverged           = "converged"
	StatNIter               = "n_iter"
	StatRestartCount        = "restart_count"
	StatNoiseLevel          = "noise_level"
)

// Values of StatVarianceRatioMethod.
const (
	RatioEigenvalue        = "eigenvalue"
	RatioAblation          = "ablation"
	RatioUniform           = "uniform"
	RatioProjectedVariance = "projected_variance"
)

// DefaultDenoisingNoiseLevel is the noise_level the denoising variants use
// when none is configured.
const DefaultDenoisingNoiseLevel = 0.1

// Option configures an estimator at construction.
type Option func(*base)

// WithLogger sets the logger used for fit diagnostics.
// By default a component logger is taken from the process-wide provider on every Fit.
func WithLogger(logger log.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// base holds what every variant shares: the fixed Config, the state slot
// and the lock serializing Fit calls.
type base struct {
	name      string
	component string
	cfg       model.Config
	slot      model.StateSlot
	fitMu     sync.Mutex
	logger    log.Logger
}

func (b *base) init(name, component string, cfg model.Config, opts []Option) {
	b.name = name
	b.component = component
	b.cfg = cfg
	for _, opt := range opts {
		opt(b)
	}
	if b.logger != nil {
		b.logger = b.logger.With(log.ModelNameKey, name)
	}
}

// Name returns the display name of the variant.
func (b *base) Name() string { return b.name }

// Config returns the configuration fixed at construction.
func (b *base) Config() model.Config { return b.cfg }

// TrainedState returns a copy of the current state, or false before the first successful Fit.
func (b *base) TrainedState() (*model.TrainedState, bool) { return b.slot.Load() }

// IsFitted reports whether Fit has succeeded at least once.
func (b *base) IsFitted() bool { return b.slot.IsFitted() }

func (b *base) log() log.Logger {
	if b.logger != nil {
		return b.logger
	}
	return log.GetLoggerWithName(b.component).With(log.ModelNameKey, b.name)
}

// prepared is the standardized training input handed to a variant's numeric core.
type prepared struct {
	X     *mat.Dense // centred (and optionally scaled) data, n × d
	Mean  []float64
	Scale []float64
	N, D  int
}

// prepare validates X against the config and standardizes it.
func (b *base) prepare(op string, X mat.Matrix, withScale bool) (*prepared, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewEmptyDataError(op)
	}
	if err := b.cfg.Validate(c); err != nil {
		return nil, err
	}
	scaler := preprocessing.NewStandardScaler(true, withScale)
	if err := scaler.Fit(X); err != nil {
		return nil, err
	}
	return &prepared{
		X:     preprocessing.Standardize(X, scaler.Mean, scaler.Scale),
		Mean:  scaler.Mean,
		Scale: scaler.Scale,
		N:     r,
		D:     c,
	}, nil
}

// fit runs the shared fit protocol: validate and standardize, run compute off
// to the side, validate the result and publish it with one atomic store.
// Any error returns before the store, leaving the previous state in place.
func (b *base) fit(X mat.Matrix, withScale, linear bool, compute func(p *prepared) (*model.TrainedState, error)) error {
	b.fitMu.Lock()
	defer b.fitMu.Unlock()

	op := b.name + ".Fit"
	logger := b.log()
	start := time.Now()

	p, err := b.prepare(op, X, withScale)
	if err != nil {
		logger.Debug("fit rejected input", log.OperationKey, log.OperationFit, log.ErrAttrKey, err)
		return err
	}
	if logger.Enabled(context.Background(), log.LevelDebug) {
		logger.Debug("fit started",
			log.OperationKey, log.OperationFit,
			log.SamplesKey, p.N,
			log.FeaturesKey, p.D,
			log.LatentDimKey, b.cfg.LatentDim(),
			log.ScaledKey, withScale,
		)
	}

	var state *model.TrainedState
	err = errors.SafeExecute(op, func() error {
		s, err := compute(p)
		state = s
		return err
	})
	if err != nil {
		logger.Debug("fit failed", log.OperationKey, log.OperationFit, log.ErrAttrKey, err)
		return err
	}

	state.Mean = p.Mean
	state.Scale = p.Scale
	if state.QuantumParameters == nil {
		state.QuantumParameters = model.Params{}
	}
	if state.ModelParameters == nil {
		state.ModelParameters = model.Params{}
	}
	if state.TrainingStatistics == nil {
		state.TrainingStatistics = model.Params{}
	}
	state.TrainingStatistics[StatNSamples] = model.Int(p.N)
	state.TrainingStatistics[StatNFeatures] = model.Int(p.D)

	if err := state.Validate(linear); err != nil {
		err = errors.NewNumericFailureError(op, "fitted state violates its invariants", err)
		logger.Debug("fit failed", log.OperationKey, log.OperationFit, log.ErrAttrKey, err)
		return err
	}

	b.slot.Store(state)
	logger.Info("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, p.N,
		log.FeaturesKey, p.D,
		log.LatentDimKey, state.LatentDim(),
		log.ExplainedVarianceKey, state.VarianceRatioSum(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// input returns the current state together with X standardized by it.
func (b *base) input(method string, X mat.Matrix) (*model.TrainedState, *mat.Dense, error) {
	state, err := b.slot.RequireFitted(b.name, method)
	if err != nil {
		return nil, nil, err
	}
	r, c := X.Dims()
	if c != state.NFeatures() {
		return nil, nil, errors.NewDimensionError(b.name+"."+method, state.NFeatures(), c, 1)
	}
	if r == 0 {
		return nil, nil, errors.NewEmptyDataError(b.name + "." + method)
	}
	return state, preprocessing.Standardize(X, state.Mean, state.Scale), nil
}

// latentInput returns the current state after checking Z has latent_dim columns.
func (b *base) latentInput(method string, Z mat.Matrix) (*model.TrainedState, error) {
	state, err := b.slot.RequireFitted(b.name, method)
	if err != nil {
		return nil, err
	}
	r, c := Z.Dims()
	if c != state.LatentDim() {
		return nil, errors.NewDimensionError(b.name+"."+method, state.LatentDim(), c, 1)
	}
	if r == 0 {
		return nil, errors.NewEmptyDataError(b.name + "." + method)
	}
	return state, nil
}

// project computes act(X · Wᵀ + bias) row by row. bias and act may be nil.
func project(X *mat.Dense, W [][]float64, bias []float64, act func(float64) float64) *mat.Dense {
	n, d := X.Dims()
	k := len(W)
	out := mat.NewDense(n, k, nil)
	parallel.ForEachRow(n, func(i int) {
		x := X.RawRowView(i)
		z := out.RawRowView(i)
		for j := 0; j < k; j++ {
			w := W[j]
			var s float64
			for f := 0; f < d; f++ {
				s += w[f] * x[f]
			}
			if bias != nil {
				s += bias[j]
			}
			if act != nil {
				s = act(s)
			}
			z[j] = s
		}
	})
	return out
}

// reconstruct computes Z · C (+ bias) and undoes the standardization.
// C has one row per latent column of Z.
func reconstruct(Z mat.Matrix, C [][]float64, bias []float64, state *model.TrainedState) *mat.Dense {
	n, k := Z.Dims()
	d := state.NFeatures()
	out := mat.NewDense(n, d, nil)
	parallel.ForEachRow(n, func(i int) {
		row := out.RawRowView(i)
		for j := 0; j < k; j++ {
			z := Z.At(i, j)
			for f, c := range C[j] {
				row[f] += z * c
			}
		}
		if bias != nil {
			for f := range row {
				row[f] += bias[f]
			}
		}
	})
	return preprocessing.Destandardize(out, state.Mean, state.Scale)
}

// uniformRatio returns k copies of 1/k.
func uniformRatio(k int) []float64 {
	out := make([]float64, k)
	for i := range out {
		out[i] = 1 / float64(k)
	}
	return out
}

// rowsOf copies the rows of m into a slice of slices.
func rowsOf(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// transpose returns the columns of rows as rows.
func transpose(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]float64, len(rows[0]))
	for j := range out {
		out[j] = make([]float64, len(rows))
		for i := range rows {
			out[j][i] = rows[i][j]
		}
	}
	return out
}

// numbers reads a Numbers parameter of the given length from a state bag.
func numbers(bag model.Params, name string, want int, op string) ([]float64, error) {
	v, ok := bag[name]
	if !ok {
		return nil, errors.NewValidationError(name, "missing from trained state", nil)
	}
	out, ok := v.AsNumbers()
	if !ok {
		return nil, errors.NewValidationError(name, "must be a numeric sequence", v.Interface())
	}
	if len(out) != want {
		return nil, errors.NewDimensionError(op, want, len(out), 1)
	}
	return out, nil
}

func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return errors.NewValidationError(name, "must be positive and finite", v)
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if !(v >= 0) || math.IsInf(v, 0) {
		return errors.NewValidationError(name, "must be non-negative and finite", v)
	}
	return nil
}
