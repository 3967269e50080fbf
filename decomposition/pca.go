package decomposition

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

// PCA model parameter keys.
const (
	PCAExplainedVariance = "explained_variance"
	PCASingularValues    = "singular_values"
	PCANoiseVariance     = "noise_variance"
	StatTotalVariance    = "total_variance"
)

// PCAParams lists the hyperparameters PCA reads.
var PCAParams = []string{ParamScale, ParamWhiten}

// minWhitenVariance is the eigenvalue below which whitening leaves a component unscaled.
const minWhitenVariance = 1e-12

var _ model.LinearEstimator = (*PCA)(nil)

// PCA は共分散行列の固有値分解による主成分分析です。
//
// 成分は固有値の降順に並び、各成分の符号は絶対値最大の要素が正になるように
// 揃えられるため、同じ入力に対する Fit は常に同じ結果を返します。
//
// 使用例:
//
//	pca, _ := decomposition.NewPCA(model.NewConfig(2, nil))
//	if err := pca.Fit(X); err != nil {
//	    return err
//	}
//	Z, _ := pca.Transform(X)
type PCA struct {
	base
	scale  bool
	whiten bool
}

// NewPCA creates a PCA estimator. Recognised params: scale (bool), whiten (bool).
func NewPCA(cfg model.Config, opts ...Option) (*PCA, error) {
	scale, err := cfg.Bool(ParamScale, false)
	if err != nil {
		return nil, err
	}
	whiten, err := cfg.Bool(ParamWhiten, false)
	if err != nil {
		return nil, err
	}
	p := &PCA{scale: scale, whiten: whiten}
	p.init("PCA", "decomposition.pca", cfg, opts)
	return p, nil
}

// IsLinear reports that PCA ratios are true variance ratios.
func (p *PCA) IsLinear() bool { return true }

// Fit computes the principal axes of X.
func (p *PCA) Fit(X mat.Matrix) error {
	return p.fit(X, p.scale, true, p.compute)
}

func (p *PCA) compute(in *prepared) (*model.TrainedState, error) {
	k := p.cfg.LatentDim()

	cov := mat.NewSymDense(in.D, nil)
	if in.N > 1 {
		stat.CovarianceMatrix(cov, in.X, nil)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, errors.NewNumericFailureError("PCA.Fit", "eigendecomposition did not converge", errors.ErrSingularMatrix)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// 固有値の降順に並べ替える（丸め誤差による負値は 0 に切り上げる）
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
		if values[i] < 0 {
			values[i] = 0
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	var total float64
	for _, v := range values {
		total += v
	}

	components := make([][]float64, k)
	ratio := make([]float64, k)
	explained := make([]float64, k)
	singular := make([]float64, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		components[i] = orientSign(mat.Col(nil, idx, &vectors))
		explained[i] = values[idx]
		singular[i] = math.Sqrt(values[idx] * float64(in.N-1))
		if total > 0 {
			ratio[i] = values[idx] / total
		}
	}

	var noise float64
	if k < in.D {
		for _, idx := range order[k:] {
			noise += values[idx]
		}
		noise /= float64(in.D - k)
	}

	return &model.TrainedState{
		Components:             components,
		ExplainedVarianceRatio: ratio,
		ModelParameters: model.Params{
			PCAExplainedVariance: model.Numbers(explained),
			PCASingularValues:    model.Numbers(singular),
			PCANoiseVariance:     model.Number(noise),
			ParamWhiten:          model.Bool(p.whiten),
		},
		TrainingStatistics: model.Params{
			StatTotalVariance:       model.Number(total),
			StatVarianceRatioMethod: model.String(RatioEigenvalue),
			StatConverged:           model.Bool(true),
		},
	}, nil
}

// orientSign flips v so that its largest-magnitude entry is positive.
func orientSign(v []float64) []float64 {
	best := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[best]) {
			best = i
		}
	}
	if v[best] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
	return v
}

// Transform projects X onto the principal axes.
func (p *PCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	state, Xs, err := p.input("Transform", X)
	if err != nil {
		return nil, err
	}
	Z := project(Xs, state.Components, nil, nil)
	if p.whiten {
		scales, err := whitenScales(state)
		if err != nil {
			return nil, err
		}
		for j, s := range scales {
			col := Z.ColView(j).(*mat.VecDense)
			col.ScaleVec(1/s, col)
		}
	}
	return Z, nil
}

// FitTransform fits PCA on X and returns the projection of X.
func (p *PCA) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// InverseTransform maps principal-axis coordinates back to feature space.
func (p *PCA) InverseTransform(Z mat.Matrix) (mat.Matrix, error) {
	state, err := p.latentInput("InverseTransform", Z)
	if err != nil {
		return nil, err
	}
	if p.whiten {
		scales, err := whitenScales(state)
		if err != nil {
			return nil, err
		}
		var unwhitened mat.Dense
		unwhitened.CloneFrom(Z)
		for j, s := range scales {
			col := unwhitened.ColView(j).(*mat.VecDense)
			col.ScaleVec(s, col)
		}
		Z = &unwhitened
	}
	return reconstruct(Z, state.Components, nil, state), nil
}

func whitenScales(state *model.TrainedState) ([]float64, error) {
	variances, err := numbers(state.ModelParameters, PCAExplainedVariance, state.LatentDim(), "PCA.whiten")
	if err != nil {
		return nil, err
	}
	scales := make([]float64, len(variances))
	for i, v := range variances {
		if v < minWhitenVariance {
			scales[i] = 1
			continue
		}
		scales[i] = math.Sqrt(v)
	}
	return scales, nil
}
