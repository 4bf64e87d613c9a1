package server

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leaveopt/leaveopt/internal/observability"
	"github.com/leaveopt/leaveopt/internal/server/handlers"
	servermw "github.com/leaveopt/leaveopt/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health

	// Operational endpoints are not rate limited.
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.registerAdminEndpoint()

	// The form page and the plan API share one limiter per client address.
	s.router.Group(func(r chi.Router) {
		r.Use(servermw.RateLimit(s.opts.Limiter))

		r.Method(http.MethodPost, "/optimize-leave", &handlers.PlanHandler{Planner: s.opts.Planner})

		if s.opts.Assets != nil {
			static := http.FileServer(http.FS(s.opts.Assets))
			r.Get("/", static.ServeHTTP)
			r.Get("/*", static.ServeHTTP)
		}
	})
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	logger := observability.Logger()

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no server.admin_token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil, // default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
