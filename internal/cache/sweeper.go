package cache

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is an in-memory cache that drops expired entries on demand.
type Sweepable interface {
	Sweep(now time.Time) int
}

// ExpiringStore is a second-level store that can purge expired rows.
type ExpiringStore interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper evicts expired cache entries periodically
type Sweeper struct {
	caches   []Sweepable
	stores   []ExpiringStore
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a new cache sweeper
func NewSweeper(logger *slog.Logger, interval time.Duration, caches ...Sweepable) *Sweeper {
	return &Sweeper{
		caches:   caches,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// WithStore adds a second-level store to purge on every tick.
func (s *Sweeper) WithStore(store ExpiringStore) *Sweeper {
	s.stores = append(s.stores, store)
	return s
}

// Run starts the sweeper loop
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("cache sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := s.now()
	removed := 0
	for _, c := range s.caches {
		removed += c.Sweep(now)
	}

	var purged int64
	for _, st := range s.stores {
		n, err := st.CleanupExpired(ctx)
		if err != nil {
			s.logger.Warn("failed to purge expired cache entries", "error", err)
			continue
		}
		purged += n
	}

	s.logger.Debug("cache sweep completed", "removed", removed, "purged", purged)
}
