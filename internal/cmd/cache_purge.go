package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leaveopt/leaveopt/internal/core/store"
	"github.com/leaveopt/leaveopt/internal/output"
)

var (
	cachePurgeAll     bool
	cachePurgeExpired bool
	cachePurgePrefix  string
	cachePurgeYes     bool
	cachePurgeDryRun  bool
	cachePurgeOutput  string
)

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached plans",
	Long: `Delete cached plans from the libsql store. Expired rows are already
ignored on read; --expired only reclaims space.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(cachePurgeOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.CacheQuery{
			All:         cachePurgeAll,
			ExpiredOnly: cachePurgeExpired,
			Prefix:      strings.TrimSpace(cachePurgePrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !cachePurgeYes && !cachePurgeDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.List(cmd.Context(), query)
		if err != nil {
			return err
		}

		if cachePurgeDryRun {
			return writeCachePurgeResult(format, cmd.OutOrStdout(), len(matched), 0, true)
		}

		deleted, err := db.Purge(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeCachePurgeResult(format, cmd.OutOrStdout(), len(matched), deleted, false)
	},
}

func writeCachePurgeResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d cached plan(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d cached plan(s)\n", deleted, matched)
	return err
}

func init() {
	cachePurgeCmd.Flags().BoolVar(&cachePurgeAll, "all", false, "Purge every cached plan")
	cachePurgeCmd.Flags().BoolVar(&cachePurgeExpired, "expired", false, "Purge only expired plans")
	cachePurgeCmd.Flags().StringVar(&cachePurgePrefix, "prefix", "", "Purge keys with matching prefix")
	cachePurgeCmd.Flags().BoolVar(&cachePurgeYes, "yes", false, "Confirm destructive purge")
	cachePurgeCmd.Flags().BoolVar(&cachePurgeDryRun, "dry-run", false, "Show what would be deleted")
	cachePurgeCmd.Flags().StringVar(&cachePurgeOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
