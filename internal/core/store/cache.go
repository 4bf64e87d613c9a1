package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leaveopt/leaveopt/internal/core"
)

// Get returns the cached plan for key when present and unexpired.
func (s *Store) Get(ctx context.Context, key core.CacheKey) (string, bool, error) {
	if s == nil || s.DB == nil {
		return "", false, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var value string
	row := s.DB.QueryRowContext(ctx, `
		SELECT value
		FROM plan_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key.String(), s.now().UnixMilli())

	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fetch cached plan: %w", err)
	}

	return value, true, nil
}

// Has reports whether an unexpired entry exists for key.
func (s *Store) Has(ctx context.Context, key core.CacheKey) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Set stores value under key for ttl, replacing any previous entry.
func (s *Store) Set(ctx context.Context, key core.CacheKey, value string, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if ttl <= 0 {
		return nil
	}

	now := s.now()
	expires := now.Add(ttl)

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO plan_cache (cache_key, value, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key.String(), value, now.UnixMilli(), expires.UnixMilli())
	if err != nil {
		return fmt.Errorf("store cached plan: %w", err)
	}

	return nil
}

// CacheQuery selects cache rows for listing and purging.
type CacheQuery struct {
	All         bool
	ExpiredOnly bool
	Prefix      string
	Limit       int
}

// Validate requires an explicit selection so a bare purge never wipes the table.
func (q CacheQuery) Validate() error {
	if q.All || q.ExpiredOnly || strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --expired, or --prefix")
}

func (q CacheQuery) whereClause(now time.Time) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.ExpiredOnly {
		clauses = append(clauses, "expires_at <= ?")
		args = append(args, now.UnixMilli())
	}
	if prefix := strings.TrimSpace(q.Prefix); prefix != "" {
		clauses = append(clauses, "substr(cache_key, 1, ?) = ?")
		args = append(args, len(prefix), prefix)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// List returns cache entries matching q, oldest first with ties broken by key.
// A zero query lists everything.
func (s *Store) List(ctx context.Context, q CacheQuery) ([]core.CacheEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause(s.now())
	query := fmt.Sprintf(`
		SELECT cache_key, value, created_at, expires_at
		FROM plan_cache
		%s
		ORDER BY created_at, cache_key
	`, where)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cached plans: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.CacheEntry{}
	for rows.Next() {
		var (
			key       string
			value     string
			createdAt int64
			expiresAt int64
		)
		if err := rows.Scan(&key, &value, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan cached plan: %w", err)
		}
		entries = append(entries, core.CacheEntry{
			Key:       core.CacheKey(key),
			Value:     value,
			CreatedAt: time.UnixMilli(createdAt).UTC(),
			ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cached plans: %w", err)
	}

	return entries, nil
}

// Purge deletes entries matching q and returns how many were removed.
func (s *Store) Purge(ctx context.Context, q CacheQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause(s.now())
	res, err := s.DB.ExecContext(ctx, "DELETE FROM plan_cache "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("purge cached plans: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cached plans: %w", err)
	}
	return affected, nil
}

// PurgeExpired removes rows past their expiry. Reads already ignore them;
// this only reclaims space.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.Purge(ctx, CacheQuery{ExpiredOnly: true})
}
