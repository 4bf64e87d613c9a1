package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and purge cached plans in the libsql store",
	Long: `Inspect and purge cached plans persisted by the libsql backend.

The memory backend lives only inside a running server, and redis
entries expire on their own, so these commands read the store
configured under store.* regardless of cache.backend.`,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStoreWith(ctx, cfg)
}

func openStoreWith(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.OpenMigrated(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return db, nil
}
