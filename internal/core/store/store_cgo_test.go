//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core"
)

func openTestStore(t *testing.T, now *time.Time) *Store {
	t.Helper()

	s, err := OpenMigrated(context.Background(), config.StoreConfig{
		Driver: "libsql",
		Path:   filepath.Join(t.TempDir(), "cache.db"),
	})
	require.NoError(t, err)
	s.Clock = func() time.Time { return *now }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, "libsql", s.Driver())
	require.NoError(t, s.Close())
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.Error(t, err)
}

func TestStoreGetSetExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", version)

	key := core.DeriveCacheKey("Australia", "Victoria", "2025")

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, key, "## Plan", time.Hour))

	value, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "## Plan", value)

	now = now.Add(time.Hour)
	has, err := s.Has(ctx, key)
	require.NoError(t, err)
	require.False(t, has, "entry must be absent once expires_at is reached")

	require.NoError(t, s.Set(ctx, key, "## Plan v2", time.Hour))
	value, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "## Plan v2", value)
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	cfg := config.StoreConfig{Path: path}
	key := core.DeriveCacheKey("Canada", "Ontario", "2026")

	first, err := OpenMigrated(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, key, "cached", time.Hour))
	require.NoError(t, first.Close())

	second, err := OpenMigrated(ctx, cfg)
	require.NoError(t, err)
	defer second.Close() // nolint:errcheck

	value, ok, err := second.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cached", value)
}

func TestStoreListAndPurge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)

	start := now
	require.NoError(t, s.Set(ctx, core.DeriveCacheKey("Australia", "Victoria", "2025"), "a", time.Minute))
	now = now.Add(time.Second)
	require.NoError(t, s.Set(ctx, core.DeriveCacheKey("Canada", "Ontario", "2025"), "b", time.Hour))

	entries, err := s.List(ctx, CacheQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, core.DeriveCacheKey("Australia", "Victoria", "2025"), entries[0].Key)
	require.Equal(t, start.Add(time.Minute), entries[0].ExpiresAt)
	require.Equal(t, core.DeriveCacheKey("Canada", "Ontario", "2025"), entries[1].Key)

	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Set(ctx, core.DeriveCacheKey("Brazil", "Bahia", "2025"), "c", time.Hour))
	require.NoError(t, s.Set(ctx, core.DeriveCacheKey("Austria", "Tirol", "2025"), "d", time.Hour))

	entries, err = s.List(ctx, CacheQuery{Prefix: "plan:v1:"})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	// Same created_at: keys compare on the length prefix first.
	require.Equal(t, core.DeriveCacheKey("Brazil", "Bahia", "2025"), entries[2].Key)
	require.Equal(t, core.DeriveCacheKey("Austria", "Tirol", "2025"), entries[3].Key)

	limited, err := s.List(ctx, CacheQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, limited, 3)

	expired, err := s.List(ctx, CacheQuery{ExpiredOnly: true})
	require.NoError(t, err)
	require.Len(t, expired, 1)

	_, err = s.Purge(ctx, CacheQuery{})
	require.Error(t, err)

	removed, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	removed, err = s.Purge(ctx, CacheQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, int64(3), removed)

	entries, err = s.List(ctx, CacheQuery{})
	require.NoError(t, err)
	require.Empty(t, entries)
}
