// Package engine orchestrates detection, quality, liveness and anti-spoofing
// into a verification decision.
package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/saturnino-fabrica-de-software/presenca/internal/antispoof"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/cache"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/liveness"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/quality"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
	"github.com/saturnino-fabrica-de-software/presenca/internal/symmetry"
)

const detectNamespace = "detect"

// Engine is safe for concurrent use. Build one per process and share it.
type Engine struct {
	cfg   config.Engine
	model provider.FaceModel

	registry  *registry.Registry
	detected  *cache.ResultCache[[]domain.DetectionResult]
	quality   *quality.Assessor
	liveness  *liveness.Scorer
	antispoof *antispoof.Fusion

	sem       *semaphore.Weighted
	audit     audit.Logger
	modelName string
	clock     registry.Clock
	logger    *slog.Logger
}

type options struct {
	logger     *slog.Logger
	clock      registry.Clock
	store      cache.Store
	audit      audit.Logger
	modelName  string
	regOptions []registry.Option
}

// Option configures an Engine.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock for the registry, the cache and timings.
func WithClock(c registry.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCacheStore adds a shared second level to the detection cache.
func WithCacheStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

func WithAuditLogger(a audit.Logger) Option {
	return func(o *options) { o.audit = a }
}

// WithModelName labels audit events with the face model backend.
func WithModelName(name string) Option {
	return func(o *options) { o.modelName = name }
}

// WithModels overrides the model names the registry loads.
func WithModels(names ...string) Option {
	return func(o *options) { o.regOptions = append(o.regOptions, registry.WithModels(names...)) }
}

// New validates cfg and wires the components. An invalid configuration,
// including every anti-spoofing analysis disabled, fails here with
// domain.ErrConfiguration.
func New(cfg config.Engine, model provider.FaceModel, opts ...Option) (*Engine, error) {
	o := options{
		clock: registry.SystemClock{},
		audit: &audit.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fusion, err := antispoof.New(cfg.AntiSpoof(), o.logger)
	if err != nil {
		return nil, err
	}

	regOpts := append([]registry.Option{registry.WithClock(o.clock)}, o.regOptions...)

	e := &Engine{
		cfg:       cfg,
		model:     model,
		registry:  registry.New(model, cfg.RetryPolicy(), o.logger, regOpts...),
		quality:   quality.New(cfg.Quality(), o.logger),
		liveness:  liveness.New(cfg.Liveness(), symmetry.New(o.logger), o.logger),
		antispoof: fusion,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentProcesses)),
		audit:     o.audit,
		modelName: o.modelName,
		clock:     o.clock,
		logger:    o.logger.With("component", "engine"),
	}

	e.detected = cache.New[[]domain.DetectionResult](detectNamespace, cache.Options{
		Enabled: cfg.CacheEnabled,
		MaxSize: cfg.CacheMaxSize,
		TTL:     cfg.CacheTTL,
		Store:   o.store,
		Now:     o.clock.Now,
		// a shared detection never outlives one request budget
		ComputeTimeout: cfg.TimeoutDuration,
	}, o.logger)

	return e, nil
}

// Warmup loads every model now instead of on the first request.
func (e *Engine) Warmup(ctx context.Context) error {
	start := e.clock.Now()
	if err := e.registry.EnsureReady(ctx); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "engine warmed up", "duration", e.clock.Now().Sub(start).String())
	return nil
}

// Registry exposes model states for readiness probes.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// DetectionCache is swept by the background cache worker.
func (e *Engine) DetectionCache() *cache.ResultCache[[]domain.DetectionResult] {
	return e.detected
}

// Config returns the settings the engine was built with.
func (e *Engine) Config() config.Engine {
	return e.cfg
}

func (e *Engine) elapsed(start time.Time) int64 {
	return e.clock.Now().Sub(start).Milliseconds()
}
