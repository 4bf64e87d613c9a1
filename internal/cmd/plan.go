package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core"
	errwrap "github.com/leaveopt/leaveopt/internal/errors"
	"github.com/leaveopt/leaveopt/internal/output"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a leave plan from the command line",
	Long: `Generate a leave plan for one selection using the same cache and
upstream settings as the server. A cached plan is printed without
calling upstream.`,
	Example: `  leaveopt plan --country Australia --state Victoria --year 2025
  leaveopt plan --country Canada --state Quebec --output-format json --trace plan.ndjson`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}

		req, err := planRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		tracePath, _ := cmd.Flags().GetString("trace")
		plan, err := runPlan(cmd.Context(), cfg, req, tracePath)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatPlan(output.NewPlanResult(req, plan))
		if err != nil {
			return err
		}

		if outDir != "" {
			dir, err := ensureOutDir(outDir)
			if err != nil {
				return err
			}
			name := sanitizeFilename(strings.Join([]string{req.Country, req.State, req.Year.String()}, "-"))
			outPath = filepath.Join(dir, name+"."+outputExtension(format))
		}

		sink, err := openSink(outPath, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, strings.TrimRight(rendered, "\n"))
		return err
	},
}

// runPlan resolves one plan through the configured cache and upstream.
func runPlan(ctx context.Context, cfg *config.Config, req core.LeaveRequest, tracePath string) (string, error) {
	stack, err := buildPlanStack(ctx, cfg, tracePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = stack.Close() }()

	return stack.planner.Plan(ctx, req)
}

func planRequestFromFlags(cmd *cobra.Command) (core.LeaveRequest, error) {
	country, _ := cmd.Flags().GetString("country")
	state, _ := cmd.Flags().GetString("state")
	year, _ := cmd.Flags().GetString("year")

	year = strings.TrimSpace(year)
	if year == "" {
		year = strconv.Itoa(time.Now().Year())
	}
	if _, err := strconv.Atoi(year); err != nil {
		return core.LeaveRequest{}, fmt.Errorf("--year must be a number, got %q", year)
	}

	return core.LeaveRequest{
		Country: strings.TrimSpace(country),
		State:   strings.TrimSpace(state),
		Year:    core.Year(year),
	}, nil
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().String("country", "", "country name as shown on the form (e.g. Australia)")
	planCmd.Flags().String("state", "", "state or region name (e.g. Victoria)")
	planCmd.Flags().String("year", "", "plan year (default current year)")
	planCmd.Flags().String("trace", "", "append upstream requests/responses to an NDJSON file")
	planCmd.Flags().String("output-format", string(output.FormatMarkdown), "Output format: markdown|table|json")
	planCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	planCmd.Flags().String("out-dir", "", "Write output to a directory")

	_ = planCmd.MarkFlagRequired("country")
	_ = planCmd.MarkFlagRequired("state")
}
