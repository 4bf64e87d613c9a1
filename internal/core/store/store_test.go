package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leaveopt/leaveopt/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingToken", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?authToken=abc",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=abc", dsn)
	})

	t.Run("PlainPathGetsFilePrefix", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "leaveopt.db")

		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: path})
		require.NoError(t, err)
		require.Equal(t, "file:"+filepath.Clean(path), dsn)
		require.DirExists(t, filepath.Dir(path))
	})

	t.Run("PathMissing", func(t *testing.T) {
		_, err := buildLibsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestCacheQuery(t *testing.T) {
	require.Error(t, CacheQuery{}.Validate())
	require.NoError(t, CacheQuery{All: true}.Validate())
	require.NoError(t, CacheQuery{ExpiredOnly: true}.Validate())
	require.NoError(t, CacheQuery{Prefix: "plan:v1:9:Australia"}.Validate())

	now := time.UnixMilli(1_000)
	where, args := CacheQuery{ExpiredOnly: true, Prefix: "plan:"}.whereClause(now)
	require.Equal(t, "WHERE expires_at <= ? AND substr(cache_key, 1, ?) = ?", where)
	require.Equal(t, []any{int64(1_000), 5, "plan:"}, args)

	where, args = CacheQuery{All: true}.whereClause(now)
	require.Empty(t, where)
	require.Nil(t, args)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, _, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	require.NoError(t, s.Close())
	require.Equal(t, "", s.Driver())
}
