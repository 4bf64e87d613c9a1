package cmd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/leaveopt/leaveopt/internal/config"
)

// fakeUpstream answers chat completions with content and counts calls.
func fakeUpstream(t *testing.T, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"`+content+`"}}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// testConfig returns a validated config pointing at baseURL with overrides applied.
func testConfig(t *testing.T, baseURL string, overrides map[string]any) *config.Config {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("upstream.api_key", "test-key")
	v.Set("upstream.base_url", baseURL)
	v.Set("server.host", "127.0.0.1")
	v.Set("server.port", 0)
	v.Set("metrics.enabled", false)
	v.Set("store.path", filepath.Join(t.TempDir(), "leaveopt.db"))
	for key, value := range overrides {
		v.Set(key, value)
	}

	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}
