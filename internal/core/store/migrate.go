package store

import (
	"context"
	"errors"
	"fmt"
)

// Timestamps are unix milliseconds so sub-second TTLs behave.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS plan_cache (
		cache_key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_plan_cache_expires ON plan_cache(expires_at);`,
	`CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`INSERT INTO schema_meta (key, value) VALUES ('version', '1')
		ON CONFLICT(key) DO NOTHING;`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}

// SchemaVersion reports the recorded schema version.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New("store is not initialized")
	}
	var version string
	if err := s.DB.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&version); err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
