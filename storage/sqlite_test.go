package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := NewSQLite(t.Context(), path, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSetGetDelete(t *testing.T) {
	s := newTestSQLite(t, "")
	ctx := t.Context()

	_, ok, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "key", Entry{Value: []string{"a", "b"}, ExpiresAt: time.Now().Add(time.Minute)}))
	e, ok, err := s.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)

	var got []string
	require.NoError(t, msgpack.Unmarshal(e.Value.(Raw), &got))
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, s.Delete(ctx, "key"))
	require.NoError(t, s.Delete(ctx, "key"))
	_, ok, err = s.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteExpiredRowIsMiss(t *testing.T) {
	s := newTestSQLite(t, "")
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "key", Entry{Value: 1, ExpiresAt: time.Now().Add(-time.Millisecond)}))
	_, ok, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteUpsertOverwrites(t *testing.T) {
	s := newTestSQLite(t, "")
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "key", Entry{Value: "old"}))
	require.NoError(t, s.Set(ctx, "key", Entry{Value: "new"}))

	e, ok, err := s.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	var got string
	require.NoError(t, msgpack.Unmarshal(e.Value.(Raw), &got))
	assert.Equal(t, "new", got)
	assert.True(t, e.ExpiresAt.IsZero())
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := t.Context()

	s, err := NewSQLite(ctx, path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "key", Entry{Value: 42}))
	require.NoError(t, s.Close())

	s = newTestSQLite(t, path)
	_, ok, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteCloseIsIdempotent(t *testing.T) {
	s, err := NewSQLite(t.Context(), "", 0)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestSQLiteExpiryFollowsClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSQLite(t.Context(), "", time.Hour, WithSQLiteClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "live", Entry{Value: 1, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Set(ctx, "dead", Entry{Value: 2, ExpiresAt: now}))

	_, ok, err := s.Get(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)

	s.sweep()
	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fusioncache`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteSweepFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s, err := NewSQLite(t.Context(), "", 10*time.Millisecond, WithSQLiteLogger(zap.New(core)))
	require.NoError(t, err)
	require.NoError(t, s.db.Close())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("sqlite expiry sweep failed").Len() > 0
	}, time.Second, 10*time.Millisecond)
	assert.NoError(t, s.Close())
}
