package instrument

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/decomposition"
	"github.com/YuminosukeSato/latent/pkg/errors"
	"github.com/YuminosukeSato/latent/pkg/log"
)

func data(n, d int) *mat.Dense {
	X := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			X.Set(i, j, float64(i*(j+1)%5)+0.25*float64(j*i))
		}
	}
	return X
}

func newPCA(t *testing.T, k int) model.Estimator {
	t.Helper()
	pca, err := decomposition.NewPCA(model.NewConfig(k, nil))
	require.NoError(t, err)
	return pca
}

func TestWrapRecordsFit(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	est, err := Wrap(newPCA(t, 2), reg, WithVariant(decomposition.VariantPCA))
	require.NoError(t, err)

	require.NoError(t, est.Fit(data(20, 4)))
	require.Error(t, est.Fit(data(20, 1)))

	m, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FitTotal.WithLabelValues("pca", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FitTotal.WithLabelValues("pca", StatusFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FitDuration))

	state, ok := est.TrainedState()
	require.True(t, ok)
	assert.InDelta(t, state.VarianceRatioSum(), testutil.ToFloat64(m.VarianceRatioSum.WithLabelValues("pca")), 1e-12)
}

func TestWrapRecordsTransforms(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger, _ := log.NewTestLogger(log.LevelWarn)
	rp, err := decomposition.NewRandomProjection(model.NewConfig(2, nil))
	require.NoError(t, err)
	est, err := Wrap(rp, reg, WithLogger(logger))
	require.NoError(t, err)

	_, err = est.Transform(data(5, 4))
	assert.True(t, errors.Is(err, errors.ErrNotFitted))

	Z, err := est.FitTransform(data(10, 4))
	require.NoError(t, err)
	_, err = est.InverseTransform(Z)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedOperation))

	m, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransformTotal.WithLabelValues("RandomProjection", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransformTotal.WithLabelValues("RandomProjection", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InverseTransformTotal.WithLabelValues("RandomProjection", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FitTotal.WithLabelValues("RandomProjection", StatusSuccess)))

	assert.True(t, logger.ContainsMessage("transform failed"))
	assert.True(t, logger.ContainsMessage("inverse_transform failed"))
	assert.True(t, logger.ContainsField(log.VariantKey, "RandomProjection"))
}

func TestWrappersShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := Wrap(newPCA(t, 1), reg, WithVariant("a"))
	require.NoError(t, err)
	b, err := Wrap(newPCA(t, 1), reg, WithVariant("b"))
	require.NoError(t, err)

	require.NoError(t, a.Fit(data(8, 3)))
	require.NoError(t, b.Fit(data(8, 3)))
	require.NoError(t, b.Fit(data(8, 3)))

	assert.Same(t, a.metrics.FitTotal, b.metrics.FitTotal)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.FitTotal.WithLabelValues("a", StatusSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.metrics.FitTotal.WithLabelValues("b", StatusSuccess)))
}

func TestRegisterConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	// 同名で型の異なるコレクタが登録済みなら失敗する
	require.NoError(t, reg.Register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "latent_fit_total",
		Help: "conflicting",
	})))
	_, err := Wrap(newPCA(t, 1), reg)
	assert.Error(t, err)
}

func TestWrapperForwardsContract(t *testing.T) {
	inner := newPCA(t, 2)
	est := WrapWith(inner, newMetrics(promauto.With(nil)))

	assert.Same(t, inner, est.Unwrap())
	assert.Equal(t, "PCA", est.Name())
	assert.Equal(t, 2, est.Config().LatentDim())
	assert.True(t, model.IsLinear(est))

	ae, err := decomposition.NewAutoencoder(model.NewConfig(1, nil))
	require.NoError(t, err)
	assert.False(t, model.IsLinear(WrapWith(ae, est.metrics)))

	_, ok := est.TrainedState()
	assert.False(t, ok)
	X := data(12, 3)
	Z, err := est.FitTransform(X)
	require.NoError(t, err)
	back, err := est.InverseTransform(Z)
	require.NoError(t, err)
	r, c := back.Dims()
	assert.Equal(t, 12, r)
	assert.Equal(t, 3, c)
}
