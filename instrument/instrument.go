// Package instrument は任意の model.Estimator に Prometheus メトリクスを付与する
// デコレータを提供します。
//
// 記録されるメトリクス:
//
//	latent_fit_total{variant,status}                 Fit の回数
//	latent_fit_duration_seconds{variant}             Fit の所要時間
//	latent_transform_total{variant,status}           Transform の回数
//	latent_inverse_transform_total{variant,status}   InverseTransform の回数
//	latent_explained_variance_ratio_sum{variant}     直近の Fit の分散比合計
package instrument

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
	"github.com/YuminosukeSato/latent/pkg/log"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the collectors shared by every wrapped estimator of one registry.
type Metrics struct {
	FitTotal              *prometheus.CounterVec
	FitDuration           *prometheus.HistogramVec
	TransformTotal        *prometheus.CounterVec
	InverseTransformTotal *prometheus.CounterVec
	VarianceRatioSum      *prometheus.GaugeVec
}

// newMetrics builds the collectors with f. promauto.With(nil) leaves them unregistered.
func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		FitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "latent_fit_total",
			Help: "The total number of Fit calls",
		}, []string{"variant", "status"}), // status: success, failure
		FitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "latent_fit_duration_seconds",
			Help:    "Duration of Fit calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"variant"}),
		TransformTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "latent_transform_total",
			Help: "The total number of Transform calls",
		}, []string{"variant", "status"}),
		InverseTransformTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "latent_inverse_transform_total",
			Help: "The total number of InverseTransform calls",
		}, []string{"variant", "status"}),
		VarianceRatioSum: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "latent_explained_variance_ratio_sum",
			Help: "Sum of explained_variance_ratio of the latest successful Fit",
		}, []string{"variant"}),
	}
}

// NewMetrics registers the collectors with reg. Collectors already registered
// by an earlier call are reused, so several wrappers can share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := newMetrics(promauto.With(nil))
	var err error
	if m.FitTotal, err = register(reg, m.FitTotal); err != nil {
		return nil, err
	}
	if m.FitDuration, err = register(reg, m.FitDuration); err != nil {
		return nil, err
	}
	if m.TransformTotal, err = register(reg, m.TransformTotal); err != nil {
		return nil, err
	}
	if m.InverseTransformTotal, err = register(reg, m.InverseTransformTotal); err != nil {
		return nil, err
	}
	if m.VarianceRatioSum, err = register(reg, m.VarianceRatioSum); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "registering estimator metrics")
	}
	return c, nil
}

// Default returns the metrics registered with prometheus.DefaultRegisterer.
var Default = sync.OnceValue(func() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
})

// Option configures a wrapper.
type Option func(*Estimator)

// WithVariant sets the variant label. It defaults to the estimator's Name.
func WithVariant(id string) Option {
	return func(e *Estimator) {
		e.variant = id
	}
}

// WithLogger sets the logger failures are reported to.
func WithLogger(logger log.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger
	}
}

var _ model.LinearEstimator = (*Estimator)(nil)

// Estimator records metrics around every call and otherwise behaves exactly
// like the estimator it wraps.
type Estimator struct {
	inner   model.Estimator
	metrics *Metrics
	variant string
	logger  log.Logger
}

// Wrap instruments est with collectors registered on reg.
// A nil reg uses the process-wide Default metrics.
func Wrap(est model.Estimator, reg prometheus.Registerer, opts ...Option) (*Estimator, error) {
	if reg == nil {
		return WrapWith(est, Default(), opts...), nil
	}
	m, err := NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	return WrapWith(est, m, opts...), nil
}

// WrapWith instruments est with existing collectors.
func WrapWith(est model.Estimator, m *Metrics, opts ...Option) *Estimator {
	e := &Estimator{inner: est, metrics: m, variant: est.Name()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.GetLoggerWithName("instrument")
	}
	e.logger = e.logger.With(log.VariantKey, e.variant)
	return e
}

// Unwrap returns the wrapped estimator.
func (e *Estimator) Unwrap() model.Estimator { return e.inner }

// Name returns the wrapped estimator's name.
func (e *Estimator) Name() string { return e.inner.Name() }

// Config returns the wrapped estimator's config.
func (e *Estimator) Config() model.Config { return e.inner.Config() }

// IsLinear forwards the wrapped estimator's linearity.
func (e *Estimator) IsLinear() bool { return model.IsLinear(e.inner) }

// TrainedState returns the wrapped estimator's state.
func (e *Estimator) TrainedState() (*model.TrainedState, bool) { return e.inner.TrainedState() }

// Fit fits the wrapped estimator and records the outcome.
func (e *Estimator) Fit(X mat.Matrix) error {
	start := time.Now()
	err := e.inner.Fit(X)
	e.metrics.FitDuration.WithLabelValues(e.variant).Observe(time.Since(start).Seconds())
	e.recordFit(err)
	return err
}

func (e *Estimator) recordFit(err error) {
	if err != nil {
		e.metrics.FitTotal.WithLabelValues(e.variant, StatusFailure).Inc()
		e.logger.Warn("fit failed", log.OperationKey, log.OperationFit, log.ErrAttrKey, err)
		return
	}
	e.metrics.FitTotal.WithLabelValues(e.variant, StatusSuccess).Inc()
	if state, ok := e.inner.TrainedState(); ok {
		e.metrics.VarianceRatioSum.WithLabelValues(e.variant).Set(state.VarianceRatioSum())
	}
}

// Transform transforms X with the wrapped estimator and records the outcome.
func (e *Estimator) Transform(X mat.Matrix) (mat.Matrix, error) {
	Z, err := e.inner.Transform(X)
	e.count(e.metrics.TransformTotal, log.OperationTransform, err)
	return Z, err
}

// FitTransform records a fit and, when it succeeds, a transform.
func (e *Estimator) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := e.Fit(X); err != nil {
		return nil, err
	}
	return e.Transform(X)
}

// InverseTransform maps Z back with the wrapped estimator and records the outcome.
func (e *Estimator) InverseTransform(Z mat.Matrix) (mat.Matrix, error) {
	X, err := e.inner.InverseTransform(Z)
	e.count(e.metrics.InverseTransformTotal, log.OperationInverseTransform, err)
	return X, err
}

func (e *Estimator) count(c *prometheus.CounterVec, op string, err error) {
	if err != nil {
		c.WithLabelValues(e.variant, StatusFailure).Inc()
		e.logger.Warn(op+" failed", log.OperationKey, op, log.ErrAttrKey, err)
		return
	}
	c.WithLabelValues(e.variant, StatusSuccess).Inc()
}
