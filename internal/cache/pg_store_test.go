package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "detect:abc123"

var storeNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*PGStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := NewPGStoreWithDB(mock)
	store.now = func() time.Time { return storeNow }
	return store, mock
}

func TestPGStore_Set(t *testing.T) {
	store, mock := newTestStore(t)
	value := []byte(`{"value":1}`)

	mock.ExpectExec("INSERT INTO cache_entries").
		WithArgs(testKey, value, storeNow.Add(5*time.Minute)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Set(context.Background(), testKey, value, 5*time.Minute)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_Get(t *testing.T) {
	t.Run("hit", func(t *testing.T) {
		store, mock := newTestStore(t)
		value := []byte("payload")

		rows := pgxmock.NewRows([]string{"value", "expires_at"}).
			AddRow(value, storeNow.Add(time.Minute))
		mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
			WithArgs(testKey).
			WillReturnRows(rows)

		result, err := store.Get(context.Background(), testKey)
		assert.NoError(t, err)
		assert.Equal(t, value, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		result, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.Nil(t, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired entry is deleted", func(t *testing.T) {
		store, mock := newTestStore(t)

		rows := pgxmock.NewRows([]string{"value", "expires_at"}).
			AddRow([]byte("old"), storeNow.Add(-time.Second))
		mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
			WithArgs(testKey).
			WillReturnRows(rows)
		mock.ExpectExec("DELETE FROM cache_entries WHERE key").
			WithArgs(testKey).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		result, err := store.Get(context.Background(), testKey)
		assert.ErrorIs(t, err, ErrCacheExpired)
		assert.Nil(t, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
			WithArgs(testKey).
			WillReturnError(errors.New("connection reset"))

		_, err := store.Get(context.Background(), testKey)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPGStore_Delete(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM cache_entries WHERE key").
		WithArgs(testKey).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, store.Delete(context.Background(), testKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_DeleteNamespace(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM cache_entries WHERE key LIKE").
		WithArgs("detect:%").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	deleted, err := store.DeleteNamespace(context.Background(), "detect")
	assert.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_CleanupExpired(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM cache_entries WHERE expires_at").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	deleted, err := store.CleanupExpired(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
