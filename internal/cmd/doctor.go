package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/leaveopt/leaveopt/internal/ailink/prompt"
	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core/cache"
	errwrap "github.com/leaveopt/leaveopt/internal/errors"
)

// doctorCheck is one diagnostic line.
type doctorCheck struct {
	Name   string
	OK     bool
	Warn   bool
	Detail string
}

func (c doctorCheck) symbol() string {
	switch {
	case c.OK:
		return "✅"
	case c.Warn:
		return "⚠️ "
	default:
		return "❌"
	}
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check configuration, credentials, prompt and cache backend before serving.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed")
		}

		checks := runDoctorChecks(cmd.Context(), cfg)
		failed := writeDoctorReport(cmd.OutOrStdout(), checks)
		if failed > 0 {
			ExitWithCode(nil, foundry.ExitConfigInvalid, fmt.Sprintf("%d diagnostic check(s) failed", failed), nil)
		}
		return nil
	},
}

func runDoctorChecks(ctx context.Context, cfg *config.Config) []doctorCheck {
	var checks []doctorCheck

	checks = append(checks, doctorCheck{Name: "Go version", OK: true, Detail: runtime.Version()})

	version := crucible.GetVersion()
	checks = append(checks, doctorCheck{
		Name:   "Gofulmen / Crucible",
		OK:     version.Gofulmen != "" && version.Crucible != "",
		Detail: fmt.Sprintf("gofulmen %s, crucible %s", version.Gofulmen, version.Crucible),
	})

	if err := cfg.Validate(); err != nil {
		checks = append(checks, doctorCheck{Name: "Configuration", Detail: err.Error()})
	} else {
		checks = append(checks, doctorCheck{Name: "Configuration", OK: true, Detail: "valid"})
	}

	if p, err := prompt.Resolve(cfg.Upstream.PromptFile); err != nil {
		checks = append(checks, doctorCheck{Name: "Prompt", Detail: err.Error()})
	} else {
		checks = append(checks, doctorCheck{Name: "Prompt", OK: true, Detail: fmt.Sprintf("%s (%s)", p.Slug(), p.Source)})
	}

	checks = append(checks, checkCacheBackend(ctx, cfg))

	if cfg.Store.URL == "" {
		path, _ := filepath.Abs(cfg.Store.Path)
		if info, err := os.Stat(path); err == nil {
			checks = append(checks, doctorCheck{Name: "Store file", OK: true, Detail: fmt.Sprintf("%s (%d bytes)", path, info.Size())})
		} else {
			checks = append(checks, doctorCheck{Name: "Store file", Warn: true, Detail: path + " (not created yet)"})
		}
	}

	return checks
}

func checkCacheBackend(ctx context.Context, cfg *config.Config) doctorCheck {
	name := "Cache backend"
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := cache.Open(pingCtx, cfg)
	if err != nil {
		return doctorCheck{Name: name, Detail: err.Error()}
	}
	defer func() { _ = cache.Close(s) }()

	if err := cache.Ping(pingCtx, s); err != nil {
		return doctorCheck{Name: name, Detail: fmt.Sprintf("%s: %v", cfg.Cache.Backend, err)}
	}
	return doctorCheck{Name: name, OK: true, Detail: cfg.Cache.Backend}
}

// writeDoctorReport prints checks and returns how many failed.
func writeDoctorReport(w io.Writer, checks []doctorCheck) int {
	failed := 0
	fmt.Fprintf(w, "=== %s doctor ===\n\n", config.AppName)
	for i, c := range checks {
		fmt.Fprintf(w, "[%d/%d] %s... %s %s\n", i+1, len(checks), c.Name, c.symbol(), c.Detail)
		if !c.OK && !c.Warn {
			failed++
		}
	}
	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "✅ All checks passed")
	}
	return failed
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
