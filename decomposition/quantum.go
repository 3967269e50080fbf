package decomposition

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/core/parallel"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

// Quantum parameter and statistic keys.
const (
	QATheta             = "theta"
	QANLayers           = "n_layers"
	QANQubitsEquivalent = "n_qubits_equivalent"
	QACircuit           = "circuit"
	QAGatePairs         = "gate_pairs"
	StatFinalCost       = "final_cost"
	StatInitialCost     = "initial_cost"
	StatCostHistory     = "cost_history"
	StatFidelity        = "fidelity"
)

// CircuitGivensBrick names the brick layout of adjacent Givens rotations.
const CircuitGivensBrick = "givens_brick"

// QuantumAutoencoderParams lists the hyperparameters QuantumAutoencoder reads.
var QuantumAutoencoderParams = []string{
	ParamNLayers, ParamLearningRate, ParamMaxIter, ParamTol,
	ParamRandomState, ParamNoiseLevel, ParamScale,
}

// The cost is a trigonometric polynomial of degree two in every single
// rotation angle, so four shifted evaluations give the exact derivative:
//
//	f'(θ) = Σ_μ f(θ + x_μ) (-1)^(μ-1) / (8 sin²(x_μ/2)),  x_μ = (2μ-1)π/4
var shiftAngles, shiftCoeffs = func() ([4]float64, [4]float64) {
	var angles, coeffs [4]float64
	for mu := 1; mu <= 4; mu++ {
		x := float64(2*mu-1) * math.Pi / 4
		sign := 1.0
		if mu%2 == 0 {
			sign = -1
		}
		half := math.Sin(x / 2)
		angles[mu-1] = x
		coeffs[mu-1] = sign / (8 * half * half)
	}
	return angles, coeffs
}()

// initAngleStd is the standard deviation of the initial rotation angles.
const initAngleStd = 0.1

var _ model.LinearEstimator = (*QuantumAutoencoder)(nil)

// gate is one Givens rotation acting on coordinates p and q.
type gate struct{ p, q int }

// QuantumAutoencoder は量子オートエンコーダの古典シミュレーションです。
//
// エンコーダは隣接する特徴量ペアに作用する Givens 回転（RY ゲート相当）を
// レンガ状に n_layers 層並べた直交回路 U(θ) です。U(θ)x の先頭 latent_dim
// 座標を潜在表現とし、残りの「trash」座標のエネルギー平均を最小化するよう θ を
// パラメータシフト則による厳密勾配で学習します。
//
// noise_level > 0 の場合は入力にノイズを加え、U^T P U x̃ ときれいな x の
// 再構成誤差をコストとするデノイジング版になります。
//
// 回路は直交変換なので explained_variance_ratio は真の射影分散比です。
type QuantumAutoencoder struct {
	base
	nLayers      int
	learningRate float64
	maxIter      int
	tol          float64
	randomState  int
	noiseLevel   float64
	scale        bool
}

// NewQuantumAutoencoder creates a circuit-based autoencoder.
func NewQuantumAutoencoder(cfg model.Config, opts ...Option) (*QuantumAutoencoder, error) {
	return newQuantumAutoencoder("QuantumAutoencoder", cfg, opts)
}

// NewQuantumDenoisingAutoencoder creates a circuit-based autoencoder whose
// noise_level defaults to DefaultDenoisingNoiseLevel.
func NewQuantumDenoisingAutoencoder(cfg model.Config, opts ...Option) (*QuantumAutoencoder, error) {
	cfg = cfg.WithDefault(ParamNoiseLevel, model.Number(DefaultDenoisingNoiseLevel))
	return newQuantumAutoencoder("QuantumDenoisingAutoencoder", cfg, opts)
}

func newQuantumAutoencoder(name string, cfg model.Config, opts []Option) (*QuantumAutoencoder, error) {
	q := &QuantumAutoencoder{}
	var err error
	if q.nLayers, err = cfg.Int(ParamNLayers, 2); err != nil {
		return nil, err
	}
	if q.learningRate, err = cfg.Float(ParamLearningRate, 0.05); err != nil {
		return nil, err
	}
	if q.maxIter, err = cfg.Int(ParamMaxIter, 300); err != nil {
		return nil, err
	}
	if q.tol, err = cfg.Float(ParamTol, 1e-8); err != nil {
		return nil, err
	}
	if q.randomState, err = cfg.Int(ParamRandomState, 0); err != nil {
		return nil, err
	}
	if q.noiseLevel, err = cfg.Float(ParamNoiseLevel, 0); err != nil {
		return nil, err
	}
	if q.scale, err = cfg.Bool(ParamScale, false); err != nil {
		return nil, err
	}

	if q.nLayers < 1 {
		return nil, errors.NewValidationError(ParamNLayers, "must be at least 1", q.nLayers)
	}
	if err := positive(ParamLearningRate, q.learningRate); err != nil {
		return nil, err
	}
	if q.maxIter < 1 {
		return nil, errors.NewValidationError(ParamMaxIter, "must be at least 1", q.maxIter)
	}
	if err := nonNegative(ParamTol, q.tol); err != nil {
		return nil, err
	}
	if err := nonNegative(ParamNoiseLevel, q.noiseLevel); err != nil {
		return nil, err
	}

	q.init(name, "decomposition.quantum", cfg, opts)
	return q, nil
}

// IsLinear reports that the circuit is an orthogonal projection, so its
// ratios are true variance ratios.
func (q *QuantumAutoencoder) IsLinear() bool { return true }

// Fit trains the rotation angles on X.
func (q *QuantumAutoencoder) Fit(X mat.Matrix) error {
	return q.fit(X, q.scale, true, q.compute)
}

// brickGates lays out nLayers layers of rotations on adjacent pairs,
// alternating between even and odd offsets.
func brickGates(d, nLayers int) []gate {
	var gates []gate
	for l := 0; l < nLayers; l++ {
		for p := l % 2; p+1 < d; p += 2 {
			gates = append(gates, gate{p: p, q: p + 1})
		}
	}
	return gates
}

// applyCircuit rotates x in place by every gate in order.
func applyCircuit(x []float64, gates []gate, theta []float64) {
	for g, gt := range gates {
		c, s := math.Cos(theta[g]), math.Sin(theta[g])
		xp, xq := x[gt.p], x[gt.q]
		x[gt.p] = c*xp - s*xq
		x[gt.q] = s*xp + c*xq
	}
}

// unitary returns U(θ) as a d × d matrix.
func unitary(d int, gates []gate, theta []float64) *mat.Dense {
	U := mat.NewDense(d, d, nil)
	col := make([]float64, d)
	for j := 0; j < d; j++ {
		for i := range col {
			col[i] = 0
		}
		col[j] = 1
		applyCircuit(col, gates, theta)
		U.SetCol(j, col)
	}
	return U
}

// qaeCost evaluates the normalized reconstruction cost
//
//	(1/E) Σ_s ||Uᵀ P U x̃_s - x_s||²  =  (1/E) Σ_s [ Σ_{i<k} (y_i² - 2 z_i y_i) + ||x_s||² ]
//
// with y = U x̃, z = U x and E = Σ_s ||x_s||². Without noise this is the
// trash-energy share of the data.
type qaeCost struct {
	clean  *mat.Dense
	noisy  *mat.Dense // nil when noise_level == 0
	gates  []gate
	k      int
	energy float64
}

func (c *qaeCost) eval(theta []float64) float64 {
	n, d := c.clean.Dims()
	y := make([]float64, d)
	z := make([]float64, d)
	var total float64
	for s := 0; s < n; s++ {
		x := c.clean.RawRowView(s)
		copy(z, x)
		applyCircuit(z, c.gates, theta)
		if c.noisy == nil {
			for i := c.k; i < d; i++ {
				total += z[i] * z[i]
			}
			continue
		}
		copy(y, c.noisy.RawRowView(s))
		applyCircuit(y, c.gates, theta)
		sample := floats.Dot(x, x)
		for i := 0; i < c.k; i++ {
			sample += y[i]*y[i] - 2*z[i]*y[i]
		}
		total += sample
	}
	return total / c.energy
}

// gradient fills grad with exact partial derivatives via the parameter-shift rule.
func (c *qaeCost) gradient(theta, grad []float64) {
	parallel.Parallelize(len(theta), func(start, end int) {
		shifted := append([]float64(nil), theta...)
		for g := start; g < end; g++ {
			orig := shifted[g]
			var d float64
			for i, x := range shiftAngles {
				shifted[g] = orig + x
				d += shiftCoeffs[i] * c.eval(shifted)
			}
			shifted[g] = orig
			grad[g] = d
		}
	})
}

func (q *QuantumAutoencoder) compute(in *prepared) (*model.TrainedState, error) {
	k := q.cfg.LatentDim()
	d := in.D
	gates := brickGates(d, q.nLayers)

	rng := rand.New(rand.NewPCG(uint64(q.randomState), uint64(q.randomState)^0x5851f42d4c957f2d))
	theta := make([]float64, len(gates))
	for i := range theta {
		theta[i] = rng.NormFloat64() * initAngleStd
	}

	energy := floats.Dot(in.X.RawMatrix().Data, in.X.RawMatrix().Data)
	cost := &qaeCost{clean: in.X, gates: gates, k: k, energy: energy}
	if q.noiseLevel > 0 {
		cost.noisy = mat.NewDense(in.N, d, nil)
	}

	var initialCost, finalCost float64
	var history []float64
	nIter := 0
	converged := false
	switch {
	case energy == 0 || len(theta) == 0 || k == d:
		// 学習するものがない（分散ゼロ・単一特徴量・trash 座標なし）
		converged = true
	default:
		grad := make([]float64, len(theta))
		every := q.maxIter / lossHistoryPoints
		if every < 1 {
			every = 1
		}
		prev := math.Inf(1)
		for iter := 0; iter < q.maxIter; iter++ {
			if cost.noisy != nil {
				raw := cost.noisy.RawMatrix().Data
				clean := in.X.RawMatrix().Data
				for i := range raw {
					raw[i] = clean[i] + q.noiseLevel*rng.NormFloat64()
				}
			}
			cur := cost.eval(theta)
			if err := errors.CheckScalar(q.name+".cost", cur, iter); err != nil {
				return nil, err
			}
			if iter == 0 {
				initialCost = cur
			}
			if iter%every == 0 {
				history = append(history, cur)
			}
			finalCost = cur
			nIter = iter + 1
			if math.Abs(prev-cur) < q.tol {
				converged = true
				break
			}
			prev = cur

			cost.gradient(theta, grad)
			if err := errors.CheckNumericalStability(q.name+".gradient", grad, iter); err != nil {
				return nil, err
			}
			floats.AddScaled(theta, -q.learningRate, grad)
		}
		if !converged {
			errors.Warn(errors.NewConvergenceWarning(q.name, nIter,
				fmt.Sprintf("cost change stayed above tol=%g", q.tol)))
		}
	}

	U := unitary(d, gates, theta)

	// 先頭 k 行を射影分散の降順に並べ替える
	variances := make([]float64, k)
	var captured mat.Dense
	captured.Mul(in.X, U.Slice(0, k, 0, d).T())
	for i := 0; i < k; i++ {
		col := captured.ColView(i)
		variances[i] = mat.Dot(col, col) / float64(in.N)
	}
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return variances[order[a]] > variances[order[b]] })

	totalVar := energy / float64(in.N)
	components := make([][]float64, k)
	ratio := make([]float64, k)
	var fidelity float64
	for i, r := range order {
		components[i] = mat.Row(nil, r, U)
		if totalVar > 0 {
			ratio[i] = variances[r] / totalVar
		}
		fidelity += ratio[i]
	}
	if energy == 0 {
		fidelity = 1
	}
	if len(history) == 0 {
		finalCost = 1 - fidelity
		initialCost = finalCost
		history = []float64{finalCost}
	}

	pairs := make([]float64, 0, 2*len(gates))
	for _, g := range gates {
		pairs = append(pairs, float64(g.p), float64(g.q))
	}

	return &model.TrainedState{
		Components:             components,
		ExplainedVarianceRatio: ratio,
		QuantumParameters: model.Params{
			QATheta:             model.Numbers(theta),
			QANLayers:           model.Int(q.nLayers),
			QANQubitsEquivalent: model.Int(qubitsFor(d)),
			QACircuit:           model.String(CircuitGivensBrick),
			QAGatePairs:         model.Numbers(pairs),
		},
		TrainingStatistics: model.Params{
			StatFinalCost:           model.Number(finalCost),
			StatInitialCost:         model.Number(initialCost),
			StatCostHistory:         model.Numbers(history),
			StatNIter:               model.Int(nIter),
			StatConverged:           model.Bool(converged),
			StatFidelity:            model.Number(fidelity),
			StatNoiseLevel:          model.Number(q.noiseLevel),
			StatVarianceRatioMethod: model.String(RatioProjectedVariance),
		},
	}, nil
}

// qubitsFor returns ⌈log2 d⌉, the register size an amplitude encoding of d features needs.
func qubitsFor(d int) int {
	n := 0
	for 1<<n < d {
		n++
	}
	return n
}

// Transform returns the latent coordinates of X.
func (q *QuantumAutoencoder) Transform(X mat.Matrix) (mat.Matrix, error) {
	state, Xs, err := q.input("Transform", X)
	if err != nil {
		return nil, err
	}
	return project(Xs, state.Components, nil, nil), nil
}

// FitTransform trains on X and returns its latent coordinates.
func (q *QuantumAutoencoder) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := q.Fit(X); err != nil {
		return nil, err
	}
	return q.Transform(X)
}

// InverseTransform applies the adjoint circuit to zero-padded latent coordinates.
func (q *QuantumAutoencoder) InverseTransform(Z mat.Matrix) (mat.Matrix, error) {
	state, err := q.latentInput("InverseTransform", Z)
	if err != nil {
		return nil, err
	}
	return reconstruct(Z, state.Components, nil, state), nil
}
