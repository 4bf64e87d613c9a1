package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/leaveopt/leaveopt/internal/core/engine"
	apperrors "github.com/leaveopt/leaveopt/internal/errors"
	"github.com/leaveopt/leaveopt/internal/observability"
	"github.com/leaveopt/leaveopt/internal/server/handlers"
	servermw "github.com/leaveopt/leaveopt/internal/server/middleware"
)

// Options configures a Server. Planner is required; everything else has a
// usable zero value.
type Options struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	Planner handlers.LeavePlanner
	Limiter *engine.RateLimiter
	Health  *handlers.HealthManager

	// AdminToken enables the signal endpoint when non-empty.
	AdminToken string

	// Assets is served at / for the form page.
	Assets fs.FS
}

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	opts     Options
	mu       sync.Mutex
	listener net.Listener
}

// New creates a new HTTP server instance
func New(opts Options) (*Server, error) {
	if opts.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.AppVersion)
	}

	r := chi.NewRouter()

	// Only behind a trusted proxy may forwarding headers rewrite RemoteAddr.
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		opts:   opts,
	}
	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  orDefault(opts.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(opts.WriteTimeout, 90*time.Second),
		IdleTimeout:  orDefault(opts.IdleTimeout, 120*time.Second),
	}

	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s, nil
}

// Start binds the listen address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Listen binds the configured address without serving, so callers can
// report the bound port before traffic arrives.
func (s *Server) Listen() (net.Listener, error) {
	addr := net.JoinHostPort(s.opts.Host, fmt.Sprintf("%d", s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return ln, nil
}

// Serve serves HTTP on ln. It returns nil after a graceful Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if logger := observability.Logger(); logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("addr", ln.Addr().String()),
			zap.Bool("trust_proxy", s.opts.TrustProxy),
			zap.Bool("rate_limited", s.opts.Limiter != nil))
	}

	s.opts.Health.MarkStarted()

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if logger := observability.Logger(); logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the bound port once listening, else the configured port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.opts.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
