// Package registry は次元削減バリアントの識別子と構築関数を対応付けます。
//
// 呼び出し側はバリアント名と設定マッピングを渡すだけで、共通の
// model.Estimator 契約を満たすインスタンスを得られます。
//
//	reg := registry.New()
//	est, err := reg.Build("pca", map[string]any{"latent_dim": 3, "whiten": true})
package registry

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/decomposition"
	"github.com/YuminosukeSato/latent/pkg/errors"
	"github.com/YuminosukeSato/latent/pkg/log"
)

// Factory constructs an estimator from a validated Config.
type Factory func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error)

// Policy decides what happens to parameter names a variant does not read.
type Policy int

const (
	// Lenient ignores unknown parameter names after logging them.
	Lenient Policy = iota
	// Strict rejects unknown parameter names with an InvalidConfig error.
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Variant is a registered estimator constructor.
type Variant struct {
	Factory Factory
	// Params lists the parameter names the variant reads. nil accepts any name;
	// an empty non-nil list accepts none.
	Params []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy sets the unknown-parameter policy. The default is Lenient.
func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithLogger sets the logger for build diagnostics. Estimators built by the
// registry log through it with their variant id attached.
func WithLogger(logger log.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry maps variant identifiers to factories. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
	policy   Policy
	logger   log.Logger
}

// New returns a Registry preloaded with every bundled variant.
func New(opts ...Option) *Registry {
	r := Empty(opts...)
	for id, v := range builtins() {
		r.variants[id] = v
	}
	return r
}

// Empty returns a Registry with no variants registered.
func Empty(opts ...Option) *Registry {
	r := &Registry{variants: make(map[string]Variant)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func builtins() map[string]Variant {
	return map[string]Variant{
		decomposition.VariantPCA: {
			Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
				return decomposition.NewPCA(cfg, opts...)
			},
			Params: decomposition.PCAParams,
		},
		decomposition.VariantAutoencoder: {
			Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
				return decomposition.NewAutoencoder(cfg, opts...)
			},
			Params: decomposition.AutoencoderParams,
		},
		decomposition.VariantDenoisingAutoencoder: {
			Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
				return decomposition.NewDenoisingAutoencoder(cfg, opts...)
			},
			Params: decomposition.AutoencoderParams,
		},
		decomposition.VariantQuantumAutoencoder: {
			Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
				return decomposition.NewQuantumAutoencoder(cfg, opts...)
			},
			Params: decomposition.QuantumAutoencoderParams,
		},
		decomposition.VariantQuantumDenoisingAutoencoder: {
			Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
				return decomposition.NewQuantumDenoisingAutoencoder(cfg, opts...)
			},
			Params: decomposition.QuantumAutoencoderParams,
		},
		decomposition.VariantRandomProjection: {
			Factory: func(cfg model.Config, opts ...decomposition.Option) (model.Estimator, error) {
				return decomposition.NewRandomProjection(cfg, opts...)
			},
			Params: decomposition.RandomProjectionParams,
		},
	}
}

// Register adds or replaces the variant under id.
func (r *Registry) Register(id string, v Variant) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.NewValidationError("variant", "identifier must not be empty", id)
	}
	if v.Factory == nil {
		return errors.NewValidationError("variant", "factory must not be nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.variants[id]
	r.variants[id] = Variant{Factory: v.Factory, Params: slices.Clone(v.Params)}
	if replaced {
		r.log().Debug("variant replaced", log.VariantKey, id)
	}
	return nil
}

// Variants returns the registered identifiers in sorted order.
func (r *Registry) Variants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.variants))
	for id := range r.variants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the variant registered under id.
func (r *Registry) Lookup(id string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[id]
	return v, ok
}

// Build constructs the variant id from a plain configuration mapping.
// cfg must carry latent_dim; every other entry is a variant parameter.
func (r *Registry) Build(id string, cfg map[string]any) (model.Estimator, error) {
	if _, ok := r.Lookup(id); !ok {
		err := errors.NewUnknownVariantError(id, r.Variants())
		r.log().Warn("build rejected", log.VariantKey, id, log.ErrAttrKey, err)
		return nil, err
	}
	c, err := model.ConfigFromMap(cfg)
	if err != nil {
		r.log().Warn("build rejected", log.VariantKey, id, log.ErrAttrKey, err)
		return nil, err
	}
	return r.BuildConfig(id, c)
}

// BuildConfig constructs the variant id from an already built Config.
func (r *Registry) BuildConfig(id string, cfg model.Config) (model.Estimator, error) {
	v, ok := r.Lookup(id)
	if !ok {
		err := errors.NewUnknownVariantError(id, r.Variants())
		r.log().Warn("build rejected", log.VariantKey, id, log.ErrAttrKey, err)
		return nil, err
	}
	logger := r.log().With(log.VariantKey, id)

	if unknown := unknownParams(cfg, v.Params); len(unknown) > 0 {
		if r.policy == Strict {
			err := errors.NewValidationError(strings.Join(unknown, ","),
				"parameter is not recognised by variant "+id, unknown)
			logger.Warn("build rejected", log.ErrAttrKey, err)
			return nil, err
		}
		logger.Warn("ignoring unknown parameters", "params", unknown)
	}

	est, err := v.Factory(cfg, decomposition.WithLogger(logger))
	if err != nil {
		logger.Warn("build rejected", log.ErrAttrKey, err)
		return nil, err
	}
	logger.Debug("estimator built", log.ModelNameKey, est.Name(), log.LatentDimKey, cfg.LatentDim())
	return est, nil
}

func (r *Registry) log() log.Logger {
	if r.logger != nil {
		return r.logger
	}
	return log.GetLoggerWithName("registry")
}

// unknownParams returns the sorted parameter names of cfg missing from known.
// A nil known list accepts everything.
func unknownParams(cfg model.Config, known []string) []string {
	if known == nil {
		return nil
	}
	allowed := make(map[string]bool, len(known))
	for _, name := range known {
		allowed[name] = true
	}
	var unknown []string
	for _, name := range cfg.Params().Keys() {
		if !allowed[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
