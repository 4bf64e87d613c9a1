package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/leaveopt/leaveopt/internal/core"
	"github.com/leaveopt/leaveopt/internal/core/store"
	"github.com/leaveopt/leaveopt/internal/output"
)

var (
	cacheListOutput  string
	cacheListOut     string
	cacheListOutDir  string
	cacheListExpired bool
	cacheListPrefix  string
	cacheListLimit   int
)

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(cacheListOutput)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.CacheQuery{
			All:         !cacheListExpired && strings.TrimSpace(cacheListPrefix) == "",
			ExpiredOnly: cacheListExpired,
			Prefix:      strings.TrimSpace(cacheListPrefix),
			Limit:       cacheListLimit,
		}

		entries, err := db.List(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(cacheListOut)
		outDir := strings.TrimSpace(cacheListOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}
		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("cache.list.%s", outputExtension(format)))
		}

		sink, err := openSink(outPath, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeCacheList(sink.writer, format, entries, time.Now().UTC())
	},
}

func writeCacheList(w io.Writer, format output.Format, entries []core.CacheEntry, now time.Time) error {
	if len(entries) == 0 && format == output.FormatTable {
		_, err := fmt.Fprint(w, ascii.DrawBox("Cached Plans\n\n(no cached plans)", 0))
		return err
	}

	rendered, err := output.NewFormatter(format).FormatEntries(entries, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func init() {
	cacheListCmd.Flags().StringVar(&cacheListOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cacheListCmd.Flags().StringVar(&cacheListOut, "out", "", "Write output to a file (default stdout)")
	cacheListCmd.Flags().StringVar(&cacheListOutDir, "out-dir", "", "Write output to a directory")
	cacheListCmd.Flags().BoolVar(&cacheListExpired, "expired", false, "List only expired entries")
	cacheListCmd.Flags().StringVar(&cacheListPrefix, "prefix", "", "List keys with matching prefix (e.g. plan:v1:9:Australia)")
	cacheListCmd.Flags().IntVar(&cacheListLimit, "limit", 0, "Maximum entries to list (0 = no limit)")
}
