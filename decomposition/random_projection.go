package decomposition

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

// Random projection model parameter keys.
const (
	RPDensity       = "density"
	DensityGaussian = "gaussian"
)

// RandomProjectionParams lists the hyperparameters RandomProjection reads.
var RandomProjectionParams = []string{ParamRandomState, ParamScale}

var _ model.Estimator = (*RandomProjection)(nil)

// RandomProjection projects onto latent_dim Gaussian random directions
// drawn from N(0, 1/latent_dim). The projection has no inverse.
type RandomProjection struct {
	base
	randomState int
	scale       bool
}

// NewRandomProjection creates a Gaussian random projection.
func NewRandomProjection(cfg model.Config, opts ...Option) (*RandomProjection, error) {
	rp := &RandomProjection{}
	var err error
	if rp.randomState, err = cfg.Int(ParamRandomState, 0); err != nil {
		return nil, err
	}
	if rp.scale, err = cfg.Bool(ParamScale, false); err != nil {
		return nil, err
	}
	rp.init("RandomProjection", "decomposition.random_projection", cfg, opts)
	return rp, nil
}

// Fit draws the projection matrix. Only the shape and statistics of X are used.
func (rp *RandomProjection) Fit(X mat.Matrix) error {
	return rp.fit(X, rp.scale, false, rp.compute)
}

func (rp *RandomProjection) compute(in *prepared) (*model.TrainedState, error) {
	k := rp.cfg.LatentDim()
	seed := uint64(rp.randomState)
	rng := rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
	std := 1 / math.Sqrt(float64(k))

	components := make([][]float64, k)
	for i := range components {
		row := make([]float64, in.D)
		for j := range row {
			row[j] = rng.NormFloat64() * std
		}
		components[i] = row
	}

	return &model.TrainedState{
		Components:             components,
		ExplainedVarianceRatio: uniformRatio(k),
		ModelParameters: model.Params{
			RPDensity:        model.String(DensityGaussian),
			ParamRandomState: model.Int(rp.randomState),
		},
		TrainingStatistics: model.Params{
			StatVarianceRatioMethod: model.String(RatioUniform),
			StatConverged:           model.Bool(true),
		},
	}, nil
}

// Transform projects X onto the random directions.
func (rp *RandomProjection) Transform(X mat.Matrix) (mat.Matrix, error) {
	state, Xs, err := rp.input("Transform", X)
	if err != nil {
		return nil, err
	}
	return project(Xs, state.Components, nil, nil), nil
}

// FitTransform draws the projection and applies it to X.
func (rp *RandomProjection) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := rp.Fit(X); err != nil {
		return nil, err
	}
	return rp.Transform(X)
}

// InverseTransform always fails: a random projection has no inverse.
func (rp *RandomProjection) InverseTransform(Z mat.Matrix) (mat.Matrix, error) {
	return nil, errors.NewUnsupportedOperationError(rp.name, "InverseTransform")
}
