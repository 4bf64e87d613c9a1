//go:build cgo

package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core"
	"github.com/leaveopt/leaveopt/internal/core/store"
)

func TestRunPlanUsesLibsqlCacheAcrossRuns(t *testing.T) {
	upstream, calls := fakeUpstream(t, "## Take Easter off")
	cfg := testConfig(t, upstream.URL, map[string]any{"cache.backend": config.BackendLibsql})
	req := core.LeaveRequest{Country: "Australia", State: "Victoria", Year: "2025"}

	plan, err := runPlan(context.Background(), cfg, req, "")
	require.NoError(t, err)
	require.Equal(t, "## Take Easter off", plan)

	// A fresh stack reads the persisted entry.
	plan, err = runPlan(context.Background(), cfg, req, "")
	require.NoError(t, err)
	require.Equal(t, "## Take Easter off", plan)
	require.Equal(t, int32(1), calls.Load())
}

func TestCacheCommandsReadPlanStore(t *testing.T) {
	upstream, _ := fakeUpstream(t, "plan")
	cfg := testConfig(t, upstream.URL, map[string]any{"cache.backend": config.BackendLibsql})

	_, err := runPlan(context.Background(), cfg, core.LeaveRequest{Country: "Canada", State: "Quebec", Year: "2025"}, "")
	require.NoError(t, err)

	db, err := openStoreWith(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close() // nolint:errcheck // best-effort cleanup

	entries, err := db.List(context.Background(), store.CacheQuery{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.DeriveCacheKey("Canada", "Quebec", "2025"), entries[0].Key)
}
