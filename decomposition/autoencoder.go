package decomposition

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/metrics"
	"github.com/YuminosukeSato/latent/pkg/errors"
	"github.com/YuminosukeSato/latent/pkg/log"
)

// Autoencoder model parameter and statistic keys.
const (
	AEEncoderBias       = "encoder_bias"
	AEDecoderWeights    = "decoder_weights"
	AEDecoderBias       = "decoder_bias"
	StatFinalLoss       = "final_loss"
	StatInitialLoss     = "initial_loss"
	StatLossHistory     = "loss_history"
	StatReconstructGain = "reconstruction_gain"
)

// Supported encoder activations.
const (
	ActivationTanh    = "tanh"
	ActivationLinear  = "linear"
	ActivationSigmoid = "sigmoid"
)

// AutoencoderParams lists the hyperparameters Autoencoder reads.
var AutoencoderParams = []string{
	ParamActivation, ParamLearningRate, ParamMaxIter, ParamTol, ParamMomentum,
	ParamRandomState, ParamNoiseLevel, ParamMaxRestarts, ParamScale,
}

const (
	// lossHistoryPoints は loss_history に残すおおよその点数
	lossHistoryPoints = 50
	// divergenceLoss を超える損失は発散とみなす
	divergenceLoss = 1e12
	// gradientClipNorm は各勾配行列のノルム上限
	gradientClipNorm = 1e3
)

type activation struct {
	name  string
	f     func(float64) float64
	deriv func(a, h float64) float64 // a: pre-activation, h: f(a)
}

var activations = map[string]activation{
	ActivationTanh: {
		name:  ActivationTanh,
		f:     math.Tanh,
		deriv: func(_, h float64) float64 { return 1 - h*h },
	},
	ActivationLinear: {
		name:  ActivationLinear,
		f:     func(a float64) float64 { return a },
		deriv: func(_, _ float64) float64 { return 1 },
	},
	ActivationSigmoid: {
		name:  ActivationSigmoid,
		f:     func(a float64) float64 { return 1 / (1 + math.Exp(-a)) },
		deriv: func(_, h float64) float64 { return h * (1 - h) },
	},
}

var _ model.Estimator = (*Autoencoder)(nil)

// Autoencoder は一層のエンコーダ h = act(W_e x + b_e) と線形デコーダ
// x̂ = W_d h + b_d を全バッチ勾配降下法（モーメンタム付き）で学習します。
//
// noise_level > 0 の場合は各エポックで入力にガウスノイズを加え、
// きれいなデータの再構成を学習するデノイジングオートエンコーダになります。
// 損失が発散した場合は別のシードで最大 max_restarts 回まで再初期化します。
//
// explained_variance_ratio は真の分散比ではなく、各ユニットを平均値で
// 置き換えたときに失われる再構成ゲインの割合（ablation share）です。
type Autoencoder struct {
	base
	activation   activation
	learningRate float64
	maxIter      int
	tol          float64
	momentum     float64
	randomState  int
	noiseLevel   float64
	maxRestarts  int
	scale        bool

	// newWeights draws the starting weights of one training attempt.
	newWeights func(rng *rand.Rand, k, d int) *aeWeights
}

// NewAutoencoder creates an autoencoder estimator.
func NewAutoencoder(cfg model.Config, opts ...Option) (*Autoencoder, error) {
	return newAutoencoder("Autoencoder", cfg, opts)
}

// NewDenoisingAutoencoder creates an autoencoder whose noise_level defaults to
// DefaultDenoisingNoiseLevel.
func NewDenoisingAutoencoder(cfg model.Config, opts ...Option) (*Autoencoder, error) {
	cfg = cfg.WithDefault(ParamNoiseLevel, model.Number(DefaultDenoisingNoiseLevel))
	return newAutoencoder("DenoisingAutoencoder", cfg, opts)
}

func newAutoencoder(name string, cfg model.Config, opts []Option) (*Autoencoder, error) {
	ae := &Autoencoder{}
	ae.newWeights = ae.initWeights
	actName, err := cfg.String(ParamActivation, ActivationTanh)
	if err != nil {
		return nil, err
	}
	act, ok := activations[actName]
	if !ok {
		return nil, errors.NewValidationError(ParamActivation, "must be one of tanh, linear, sigmoid", actName)
	}
	ae.activation = act

	if ae.learningRate, err = cfg.Float(ParamLearningRate, 0.01); err != nil {
		return nil, err
	}
	if ae.maxIter, err = cfg.Int(ParamMaxIter, 500); err != nil {
		return nil, err
	}
	if ae.tol, err = cfg.Float(ParamTol, 1e-6); err != nil {
		return nil, err
	}
	if ae.momentum, err = cfg.Float(ParamMomentum, 0.9); err != nil {
		return nil, err
	}
	if ae.randomState, err = cfg.Int(ParamRandomState, 0); err != nil {
		return nil, err
	}
	if ae.noiseLevel, err = cfg.Float(ParamNoiseLevel, 0); err != nil {
		return nil, err
	}
	if ae.maxRestarts, err = cfg.Int(ParamMaxRestarts, 2); err != nil {
		return nil, err
	}
	if ae.scale, err = cfg.Bool(ParamScale, false); err != nil {
		return nil, err
	}

	if err := positive(ParamLearningRate, ae.learningRate); err != nil {
		return nil, err
	}
	if ae.maxIter < 1 {
		return nil, errors.NewValidationError(ParamMaxIter, "must be at least 1", ae.maxIter)
	}
	if err := nonNegative(ParamTol, ae.tol); err != nil {
		return nil, err
	}
	if !(ae.momentum >= 0 && ae.momentum < 1) {
		return nil, errors.NewValidationError(ParamMomentum, "must be in [0, 1)", ae.momentum)
	}
	if err := nonNegative(ParamNoiseLevel, ae.noiseLevel); err != nil {
		return nil, err
	}
	if ae.maxRestarts < 0 {
		return nil, errors.NewValidationError(ParamMaxRestarts, "must be non-negative", ae.maxRestarts)
	}

	ae.init(name, "decomposition.autoencoder", cfg, opts)
	return ae, nil
}

// Fit trains the encoder and decoder on X.
func (ae *Autoencoder) Fit(X mat.Matrix) error {
	return ae.fit(X, ae.scale, false, ae.compute)
}

// aeWeights are the trainable parameters of one run.
type aeWeights struct {
	We *mat.Dense // k × d
	Be []float64  // k
	Wd *mat.Dense // d × k
	Bd []float64  // d
}

// aeRun is the outcome of one training run.
type aeRun struct {
	w           *aeWeights
	initialLoss float64
	finalLoss   float64
	history     []float64
	nIter       int
	converged   bool
}

func (ae *Autoencoder) compute(in *prepared) (*model.TrainedState, error) {
	k := ae.cfg.LatentDim()
	logger := ae.log()

	var run *aeRun
	var lastErr error
	restarts := 0
	for attempt := 0; attempt <= ae.maxRestarts; attempt++ {
		seed := uint64(ae.randomState) + uint64(attempt)
		r, err := ae.train(in, k, seed)
		if err == nil {
			run = r
			break
		}
		if !errors.Is(err, errors.ErrNumericFailure) {
			return nil, err
		}
		lastErr = err
		restarts = attempt + 1
		logger.Warn("training diverged, re-initializing",
			log.RestartKey, restarts,
			log.RandomSeedKey, seed+1,
			log.ErrAttrKey, err,
		)
	}
	if run == nil {
		return nil, errors.NewNumericFailureError(ae.name+".Fit",
			fmt.Sprintf("training diverged after %d restarts", ae.maxRestarts), lastErr)
	}
	if !run.converged {
		errors.Warn(errors.NewConvergenceWarning(ae.name, run.nIter,
			fmt.Sprintf("loss change stayed above tol=%g", ae.tol)))
	}

	ratio, method, gain := ae.ablationRatio(in.X, run.w)
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ratio[order[a]] > ratio[order[b]] })

	components := make([][]float64, k)
	sortedRatio := make([]float64, k)
	encBias := make([]float64, k)
	decoder := make([]float64, 0, in.D*k)
	for i, u := range order {
		components[i] = mat.Row(nil, u, run.w.We)
		sortedRatio[i] = ratio[u]
		encBias[i] = run.w.Be[u]
	}
	for f := 0; f < in.D; f++ {
		for _, u := range order {
			decoder = append(decoder, run.w.Wd.At(f, u))
		}
	}

	return &model.TrainedState{
		Components:             components,
		ExplainedVarianceRatio: sortedRatio,
		ModelParameters: model.Params{
			AEEncoderBias:    model.Numbers(encBias),
			AEDecoderWeights: model.Numbers(decoder),
			AEDecoderBias:    model.Numbers(run.w.Bd),
			ParamActivation:  model.String(ae.activation.name),
		},
		TrainingStatistics: model.Params{
			StatFinalLoss:           model.Number(run.finalLoss),
			StatInitialLoss:         model.Number(run.initialLoss),
			StatLossHistory:         model.Numbers(run.history),
			StatNIter:               model.Int(run.nIter),
			StatConverged:           model.Bool(run.converged),
			StatRestartCount:        model.Int(restarts),
			StatNoiseLevel:          model.Number(ae.noiseLevel),
			StatVarianceRatioMethod: model.String(method),
			StatReconstructGain:     model.Number(gain),
		},
	}, nil
}

func (ae *Autoencoder) initWeights(rng *rand.Rand, k, d int) *aeWeights {
	w := &aeWeights{
		We: mat.NewDense(k, d, nil),
		Be: make([]float64, k),
		Wd: mat.NewDense(d, k, nil),
		Bd: make([]float64, d),
	}
	// Xavier 初期化
	encStd := math.Sqrt(2 / float64(d+k))
	for i, raw := 0, w.We.RawMatrix().Data; i < len(raw); i++ {
		raw[i] = rng.NormFloat64() * encStd
	}
	for i, raw := 0, w.Wd.RawMatrix().Data; i < len(raw); i++ {
		raw[i] = rng.NormFloat64() * encStd
	}
	return w
}

// forward computes pre-activations A, hidden H and reconstruction Y for input X.
func (ae *Autoencoder) forward(w *aeWeights, X *mat.Dense) (A, H, Y *mat.Dense) {
	n, _ := X.Dims()
	k, d := w.We.Dims()

	A = mat.NewDense(n, k, nil)
	A.Mul(X, w.We.T())
	H = mat.NewDense(n, k, nil)
	H.Apply(func(_, j int, v float64) float64 { return ae.activation.f(v + w.Be[j]) }, A)
	A.Apply(func(_, j int, v float64) float64 { return v + w.Be[j] }, A)

	Y = mat.NewDense(n, d, nil)
	Y.Mul(H, w.Wd.T())
	Y.Apply(func(_, j int, v float64) float64 { return v + w.Bd[j] }, Y)
	return A, H, Y
}

func mse(Y, T *mat.Dense) float64 {
	n, d := Y.Dims()
	var diff mat.Dense
	diff.Sub(Y, T)
	norm := mat.Norm(&diff, 2)
	return norm * norm / float64(n*d)
}

// train runs one full training from seed. A non-finite or exploding loss is
// reported as a NumericFailure so the caller can restart.
func (ae *Autoencoder) train(in *prepared, k int, seed uint64) (*aeRun, error) {
	n, d := in.N, in.D
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	w := ae.newWeights(rng, k, d)

	vWe := mat.NewDense(k, d, nil)
	vWd := mat.NewDense(d, k, nil)
	vBe := make([]float64, k)
	vBd := make([]float64, d)

	gWe := mat.NewDense(k, d, nil)
	gWd := mat.NewDense(d, k, nil)
	gBe := make([]float64, k)
	gBd := make([]float64, d)
	dH := mat.NewDense(n, k, nil)
	noisy := mat.NewDense(n, d, nil)

	every := ae.maxIter / lossHistoryPoints
	if every < 1 {
		every = 1
	}

	run := &aeRun{w: w}
	prev := math.Inf(1)
	for iter := 0; iter < ae.maxIter; iter++ {
		input := in.X
		if ae.noiseLevel > 0 {
			raw := noisy.RawMatrix().Data
			clean := in.X.RawMatrix().Data
			for i := range raw {
				raw[i] = clean[i] + ae.noiseLevel*rng.NormFloat64()
			}
			input = noisy
		}

		A, H, Y := ae.forward(w, input)
		loss := mse(Y, in.X)
		if err := errors.CheckScalar(ae.name+".loss", loss, iter); err != nil {
			return nil, err
		}
		if loss > divergenceLoss {
			return nil, errors.NewNumericalInstabilityError(ae.name+".loss", []float64{loss}, iter)
		}
		if iter == 0 {
			run.initialLoss = loss
		}
		if iter%every == 0 {
			run.history = append(run.history, loss)
		}
		run.finalLoss = loss
		run.nIter = iter + 1
		if math.Abs(prev-loss) < ae.tol {
			run.converged = true
			break
		}
		prev = loss

		// dL/dY = 2(Y - X) / (n·d)
		dY := Y
		dY.Sub(Y, in.X)
		dY.Scale(2/float64(n*d), dY)

		gWd.Mul(dY.T(), H)
		colSums(gBd, dY)

		dH.Mul(dY, w.Wd)
		dH.Apply(func(i, j int, v float64) float64 {
			return v * ae.activation.deriv(A.At(i, j), H.At(i, j))
		}, dH)
		gWe.Mul(dH.T(), input)
		colSums(gBe, dH)

		errors.ClipGradient(gWe.RawMatrix().Data, gradientClipNorm)
		errors.ClipGradient(gWd.RawMatrix().Data, gradientClipNorm)

		momentumStep(vWe.RawMatrix().Data, gWe.RawMatrix().Data, w.We.RawMatrix().Data, ae.momentum, ae.learningRate)
		momentumStep(vWd.RawMatrix().Data, gWd.RawMatrix().Data, w.Wd.RawMatrix().Data, ae.momentum, ae.learningRate)
		momentumStep(vBe, gBe, w.Be, ae.momentum, ae.learningRate)
		momentumStep(vBd, gBd, w.Bd, ae.momentum, ae.learningRate)
	}
	if err := errors.CheckMatrix(ae.name+".encoder", w.We, k, d, run.nIter); err != nil {
		return nil, err
	}
	if len(run.history) == 0 || run.history[len(run.history)-1] != run.finalLoss {
		run.history = append(run.history, run.finalLoss)
	}
	return run, nil
}

// momentumStep applies v = μv - lr·g, w += v element-wise.
func momentumStep(v, g, w []float64, mu, lr float64) {
	floats.Scale(mu, v)
	floats.AddScaled(v, -lr, g)
	floats.Add(w, v)
}

func colSums(dst []float64, m *mat.Dense) {
	r, _ := m.Dims()
	for j := range dst {
		dst[j] = 0
	}
	for i := 0; i < r; i++ {
		floats.Add(dst, m.RawRowView(i))
	}
}

// ablationRatio attributes the reconstruction gain of the trained network to
// its hidden units. Each unit is replaced by its mean activation in turn and
// the lost gain becomes that unit's share. Falls back to 1/k when the network
// does not beat the mean predictor.
func (ae *Autoencoder) ablationRatio(X *mat.Dense, w *aeWeights) ([]float64, string, float64) {
	k, _ := w.We.Dims()
	_, H, Y := ae.forward(w, X)
	gain, err := metrics.ReconstructionGain(X, Y)
	if err != nil || !(gain > 0) {
		return uniformRatio(k), RatioUniform, math.Max(0, gain)
	}
	if gain > 1 {
		gain = 1
	}

	n, _ := H.Dims()
	drops := make([]float64, k)
	var total float64
	ablated := mat.NewDense(n, k, nil)
	recon := &mat.Dense{}
	for u := 0; u < k; u++ {
		ablated.Copy(H)
		col := mat.Col(nil, u, H)
		mean := floats.Sum(col) / float64(n)
		for i := 0; i < n; i++ {
			ablated.Set(i, u, mean)
		}
		recon.Reset()
		recon.Mul(ablated, w.Wd.T())
		recon.Apply(func(_, j int, v float64) float64 { return v + w.Bd[j] }, recon)

		g, err := metrics.ReconstructionGain(X, recon)
		if err != nil {
			return uniformRatio(k), RatioUniform, gain
		}
		drops[u] = math.Max(0, gain-g)
		total += drops[u]
	}
	if total <= 0 {
		return uniformRatio(k), RatioUniform, gain
	}
	for u := range drops {
		drops[u] = gain * drops[u] / total
	}
	return drops, RatioAblation, gain
}

// encoder rebuilds the encoder bias from a trained state.
func (ae *Autoencoder) encoder(state *model.TrainedState) ([]float64, activation, error) {
	bias, err := numbers(state.ModelParameters, AEEncoderBias, state.LatentDim(), ae.name+".Transform")
	if err != nil {
		return nil, activation{}, err
	}
	act := ae.activation
	if v, ok := state.ModelParameters[ParamActivation]; ok {
		if name, ok := v.AsString(); ok {
			if a, ok := activations[name]; ok {
				act = a
			}
		}
	}
	return bias, act, nil
}

// Transform encodes X into the hidden layer.
func (ae *Autoencoder) Transform(X mat.Matrix) (mat.Matrix, error) {
	state, Xs, err := ae.input("Transform", X)
	if err != nil {
		return nil, err
	}
	bias, act, err := ae.encoder(state)
	if err != nil {
		return nil, err
	}
	return project(Xs, state.Components, bias, act.f), nil
}

// FitTransform trains on X and returns its encoding.
func (ae *Autoencoder) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := ae.Fit(X); err != nil {
		return nil, err
	}
	return ae.Transform(X)
}

// InverseTransform decodes hidden activations back to feature space.
func (ae *Autoencoder) InverseTransform(Z mat.Matrix) (mat.Matrix, error) {
	state, err := ae.latentInput("InverseTransform", Z)
	if err != nil {
		return nil, err
	}
	k, d := state.LatentDim(), state.NFeatures()
	flat, err := numbers(state.ModelParameters, AEDecoderWeights, d*k, ae.name+".InverseTransform")
	if err != nil {
		return nil, err
	}
	bias, err := numbers(state.ModelParameters, AEDecoderBias, d, ae.name+".InverseTransform")
	if err != nil {
		return nil, err
	}
	// decoder_weights は d × k の行優先。reconstruct には k × d で渡す
	decoder := transpose(rowsOf(mat.NewDense(d, k, flat)))
	return reconstruct(Z, decoder, bias, state), nil
}
