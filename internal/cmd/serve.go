package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	publicassets "github.com/leaveopt/leaveopt/internal/assets/public"
	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core/cache"
	"github.com/leaveopt/leaveopt/internal/core/engine"
	errwrap "github.com/leaveopt/leaveopt/internal/errors"
	"github.com/leaveopt/leaveopt/internal/metrics"
	"github.com/leaveopt/leaveopt/internal/observability"
	"github.com/leaveopt/leaveopt/internal/server"
	"github.com/leaveopt/leaveopt/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
	serveTrace string
)

// serveApp is a configured server and the resources behind it.
type serveApp struct {
	cfg     *config.Config
	stack   *planStack
	limiter *engine.RateLimiter
	health  *handlers.HealthManager
	srv     *server.Server
}

// newServeApp wires everything serve needs without binding a port.
// cfg must already be validated.
func newServeApp(ctx context.Context, cfg *config.Config, tracePath string) (*serveApp, error) {
	stack, err := buildPlanStack(ctx, cfg, tracePath)
	if err != nil {
		return nil, err
	}

	var limiter *engine.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = engine.NewRateLimiter(cfg.RateLimit.Window, cfg.RateLimit.Max)
		limiter.SweepInterval = cfg.RateLimit.SweepInterval
	}

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("cache", handlers.CheckerFunc(func(ctx context.Context) error {
		return cache.Ping(ctx, stack.store)
	}))
	health.RegisterChecker("upstream_credentials", handlers.CheckerFunc(func(context.Context) error {
		if cfg.Upstream.APIKey == "" {
			return config.ErrMissingCredential
		}
		return nil
	}))
	if cfg.Metrics.Enabled {
		health.RegisterChecker("telemetry", handlers.CheckerFunc(func(context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errwrap.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
	}

	srv, err := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		TrustProxy:   cfg.Server.TrustProxy,
		Planner:      stack.planner,
		Limiter:      limiter,
		Health:       health,
		AdminToken:   cfg.Server.AdminToken,
		Assets:       publicassets.FS(),
	})
	if err != nil {
		_ = stack.Close()
		return nil, err
	}

	return &serveApp{
		cfg:     cfg,
		stack:   stack,
		limiter: limiter,
		health:  health,
		srv:     srv,
	}, nil
}

// run binds the listen address and serves until ctx is done or the server
// fails, then shuts down within the configured timeout.
func (a *serveApp) run(ctx context.Context) error {
	ln, err := a.srv.Listen()
	if err != nil {
		return err
	}

	if a.limiter != nil {
		a.limiter.Start(ctx, metrics.SetRateLimitWindows)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := a.cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return errwrap.WrapInternal(ctx, err, "server shutdown failed")
	}
	return <-errChan
}

// Close releases the cache and trace file.
func (a *serveApp) Close() error {
	return a.stack.Close()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

The server refuses to start when no upstream API key is configured
(LEAVEOPT_UPSTREAM_API_KEY or PERPLEXITY_API_KEY).

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (restart to apply changes)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed")
		}
		if err := cfg.Validate(); err != nil {
			ExitWithCode(observability.CLILogger, ExitCodeFor(err), "Refusing to start server", err)
		}

		logLevel := cfg.Logging.Level
		if verbose {
			logLevel = "debug"
		}
		observability.InitServerLogger(config.AppName, logLevel)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		} else {
			observability.DisableMetrics()
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		app, err := newServeApp(ctx, cfg, serveTrace)
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "server initialization failed")
		}
		defer func() {
			if err := app.Close(); err != nil {
				logger.Warn("Failed to release resources", zap.Error(err))
			}
		}()

		logger.Info("Initializing server",
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("cache_backend", cfg.Cache.Backend),
			zap.Duration("cache_ttl", cfg.Cache.TTL),
			zap.String("model", cfg.Upstream.Model),
			zap.String("prompt", app.stack.prompt.Slug()),
			zap.Bool("rate_limit", cfg.RateLimit.Enabled),
			zap.Int("metrics_port", observability.GetMetricsPort()))

		// LIFO: cancel the serve context first, flush the logger last.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutdown signal received")
			cancel()
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("Config file re-read; restart to apply changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		go func() {
			if err := signals.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Signal handler error", zap.Error(err))
				cancel()
			}
		}()

		if err := app.run(ctx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 3000, "server port")
	serveCmd.Flags().StringVar(&serveTrace, "trace", "", "append upstream requests/responses to an NDJSON file")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
