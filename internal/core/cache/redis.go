package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leaveopt/leaveopt/internal/core"
)

// RedisStore shares the plan cache across replicas. Expiry is delegated to
// redis through SET ... PX.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix namespaces every key. Surrounding colons are trimmed.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	}
}

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "leaveopt"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key core.CacheKey) string {
	if s.prefix == "" {
		return key.String()
	}
	return s.prefix + ":" + key.String()
}

// Get returns the cached value for key.
func (s *RedisStore) Get(ctx context.Context, key core.CacheKey) (string, bool, error) {
	if s == nil || s.rdb == nil {
		return "", false, errors.New("redis cache is not initialized")
	}
	value, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// Has reports whether key is present.
func (s *RedisStore) Has(ctx context.Context, key core.CacheKey) (bool, error) {
	if s == nil || s.rdb == nil {
		return false, errors.New("redis cache is not initialized")
	}
	n, err := s.rdb.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Set stores value with a millisecond-precision expiry.
func (s *RedisStore) Set(ctx context.Context, key core.CacheKey, value string, ttl time.Duration) error {
	if s == nil || s.rdb == nil {
		return errors.New("redis cache is not initialized")
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return errors.New("redis cache is not initialized")
	}
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
