package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB interface for database operations (compatible with pgxpool.Pool and pgxmock)
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// PGStore keeps cache entries in the cache_entries table so detections
// survive restarts and are shared between replicas.
type PGStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a store backed by the pool
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return NewPGStoreWithDB(db)
}

// NewPGStoreWithDB creates a store with a custom DB interface
func NewPGStoreWithDB(db DB) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

// Get retrieves a value by key
func (s *PGStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value, expires_at
		FROM cache_entries
		WHERE key = $1
	`

	var value []byte
	var expiresAt time.Time

	err := s.db.QueryRow(ctx, query, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	if !s.now().Before(expiresAt) {
		_ = s.Delete(ctx, key)
		return nil, ErrCacheExpired
	}

	return value, nil
}

// Set stores a value with TTL
func (s *PGStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at,
		    created_at = NOW()
	`

	if _, err := s.db.Exec(ctx, query, key, value, s.now().Add(ttl)); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Delete removes a key
func (s *PGStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM cache_entries WHERE key = $1`
	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteNamespace removes every key written under a namespace
func (s *PGStore) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	query := `DELETE FROM cache_entries WHERE key LIKE $1`
	result, err := s.db.Exec(ctx, query, namespace+":%")
	if err != nil {
		return 0, fmt.Errorf("delete cache namespace: %w", err)
	}
	return result.RowsAffected(), nil
}

// CleanupExpired removes all expired entries
func (s *PGStore) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM cache_entries WHERE expires_at < NOW()`
	result, err := s.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("cleanup cache entries: %w", err)
	}
	return result.RowsAffected(), nil
}
