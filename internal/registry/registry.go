// Package registry owns the lifecycle of the face models the engine depends on.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Names of the models a verification needs.
const (
	ModelDetector    = "detector"
	ModelLandmark    = "landmark"
	ModelRecognition = "recognition"
	ModelExpression  = "expression"
	ModelAgeGender   = "age_gender"
)

// DefaultModels is the set loaded by EnsureReady unless overridden.
var DefaultModels = []string{
	ModelDetector,
	ModelLandmark,
	ModelRecognition,
	ModelExpression,
	ModelAgeGender,
}

// State is the load state of a single model.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loader loads one named model. It is satisfied by the face model adapters.
type Loader interface {
	Load(ctx context.Context, name string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, name string) error

func (f LoaderFunc) Load(ctx context.Context, name string) error { return f(ctx, name) }

// Policy bounds the retry loop. MaxRetries counts retries after the first
// attempt, so a model that never loads is attempted MaxRetries+1 times.
type Policy struct {
	MaxRetries int
	RetryDelay time.Duration
}

// Handle is a snapshot of one model's lifecycle.
type Handle struct {
	Name     string    `json:"name"`
	State    State     `json:"-"`
	Status   string    `json:"state"`
	Attempts int       `json:"attempts"`
	LastErr  string    `json:"last_error,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

// LoadError names the models still unavailable after the retry budget.
type LoadError struct {
	Models   []string
	Attempts int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("models unavailable after %d attempts: %s: %v",
		e.Attempts, strings.Join(e.Models, ", "), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Registry loads every required model once and caches the result for the
// process lifetime.
type Registry struct {
	loader Loader
	names  []string
	policy Policy
	clock  Clock
	logger *slog.Logger

	mu      sync.RWMutex
	handles map[string]*Handle

	flight singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithModels replaces DefaultModels.
func WithModels(names ...string) Option {
	return func(r *Registry) { r.names = append([]string(nil), names...) }
}

// New creates a registry with every model Unloaded.
func New(loader Loader, policy Policy, logger *slog.Logger, opts ...Option) *Registry {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	r := &Registry{
		loader: loader,
		names:  append([]string(nil), DefaultModels...),
		policy: policy,
		clock:  SystemClock{},
		logger: logger.With("component", "model_registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.handles = make(map[string]*Handle, len(r.names))
	for _, name := range r.names {
		r.handles[name] = &Handle{Name: name, State: StateUnloaded}
	}

	return r
}

// Ready reports whether every model is loaded.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.handles {
		if h.State != StateReady {
			return false
		}
	}
	return true
}

// EnsureReady loads any model that is not Ready. Concurrent callers share
// one in-flight batch. The batch runs detached from ctx: a caller giving up
// does not abort loading for the others.
func (r *Registry) EnsureReady(ctx context.Context) error {
	if r.Ready() {
		return nil
	}

	ch := r.flight.DoChan("ensure", func() (interface{}, error) {
		return nil, r.loadAll(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("ensure models ready: %w", ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

// Invalidate marks a model Unloaded so the next EnsureReady reloads it.
// A model currently loading is left alone.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[name]; ok && h.State != StateLoading {
		h.State = StateUnloaded
		h.Attempts = 0
		h.LastErr = ""
	}
}

// Reset invalidates every model.
func (r *Registry) Reset() {
	for _, name := range r.names {
		r.Invalidate(name)
	}
}

// States returns a snapshot of every handle sorted by name.
func (r *Registry) States() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		snap := *h
		snap.Status = h.State.String()
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range r.names {
		if r.handles[name].State != StateReady {
			names = append(names, name)
		}
	}
	return names
}

func (r *Registry) loadAll(ctx context.Context) error {
	var lastErrs map[string]error
	attempts := 0

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		pending := r.pending()
		if len(pending) == 0 {
			return nil
		}

		if attempt > 0 {
			if err := r.clock.Sleep(ctx, r.policy.RetryDelay); err != nil {
				break
			}
		}

		attempts++
		r.logger.Info("loading models",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", r.policy.MaxRetries+1),
			slog.Any("models", pending),
		)

		start := r.clock.Now()
		lastErrs = r.loadBatch(ctx, pending, attempt+1)
		if len(lastErrs) == 0 {
			r.logger.Info("models ready",
				slog.Int("attempt", attempt+1),
				slog.Duration("elapsed", r.clock.Now().Sub(start)),
			)
			return nil
		}

		r.logger.Warn("model load attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Any("failed", sortedKeys(lastErrs)),
		)
	}

	failed := sortedKeys(lastErrs)
	if len(failed) == 0 {
		failed = r.pending()
	}

	errs := make([]error, 0, len(failed))
	for _, name := range failed {
		if err := lastErrs[name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	loadErr := &LoadError{Models: failed, Attempts: attempts, Err: errors.Join(errs...)}
	r.logger.Error("models unavailable", slog.Any("models", failed), slog.Int("attempts", attempts))
	return domain.ErrModelLoad.WithError(loadErr)
}

// loadBatch loads names concurrently and returns the failures by name.
func (r *Registry) loadBatch(ctx context.Context, names []string, attempt int) map[string]error {
	r.mu.Lock()
	for _, name := range names {
		h := r.handles[name]
		h.State = StateLoading
		h.Attempts = attempt
	}
	r.mu.Unlock()

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = make(map[string]error)
	)

	for _, name := range names {
		g.Go(func() error {
			err := r.loader.Load(ctx, name)

			r.mu.Lock()
			h := r.handles[name]
			if err != nil {
				h.State = StateFailed
				h.LastErr = err.Error()
			} else {
				h.State = StateReady
				h.LastErr = ""
				h.LoadedAt = r.clock.Now()
			}
			r.mu.Unlock()

			if err != nil {
				r.logger.Debug("model load failed", slog.String("model", name), slog.Any("error", err))
				mu.Lock()
				failed[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failed
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
