// Package cache holds the plan cache backends.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core"
	"github.com/leaveopt/leaveopt/internal/core/store"
)

// Store is a key/value cache whose entries expire on their own. A Get or Has
// after an entry's expiry reports it absent.
type Store interface {
	Get(ctx context.Context, key core.CacheKey) (string, bool, error)
	Set(ctx context.Context, key core.CacheKey, value string, ttl time.Duration) error
	Has(ctx context.Context, key core.CacheKey) (bool, error)
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by backends that hold connections or goroutines.
type Closer interface {
	Close() error
}

// Open builds the backend selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	switch cfg.Cache.Backend {
	case "", config.BackendMemory:
		return NewMemoryStore(MemoryOptions{SweepInterval: cfg.Cache.SweepInterval}), nil
	case config.BackendLibsql:
		s, err := store.OpenMigrated(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open libsql cache: %w", err)
		}
		return s, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis cache ping: %w", err)
		}
		return NewRedisStore(rdb, WithPrefix(cfg.Redis.Prefix)), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", cfg.Cache.Backend)
	}
}

// Ping checks s when the backend supports it.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases s when the backend holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
