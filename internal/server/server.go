// Package server exposes the sensors, manual refresh and export actions of
// every configured account over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/coordinator"
	"github.com/Sternrassler/discogs-sync/pkg/export"
	"github.com/Sternrassler/discogs-sync/pkg/sensor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Poller is the account state behind the sensor, refresh and options
// routes. *coordinator.Coordinator implements it.
type Poller interface {
	sensor.Source
	Refresh(ctx context.Context, category cache.Category, now time.Time) error
	Options() coordinator.Options
	SetEnabled(enabled bool)
	SetIntervals(intervals map[cache.Category]time.Duration) error
}

// Exporter runs export actions. *export.Action implements it.
type Exporter interface {
	Invoke(ctx context.Context, req export.Request) (*export.Result, error)
}

// Account is one served account.
type Account struct {
	Name     string
	Poller   Poller
	Exporter Exporter
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used for snapshots and refreshes.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server is the HTTP server.
type Server struct {
	router   *chi.Mux
	mu       sync.Mutex
	server   *http.Server
	accounts map[string]Account
	order    []string
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a server for accounts.
func New(accounts []Account, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		accounts: make(map[string]Account, len(accounts)),
		now:      time.Now,
		logger:   logger.With().Str("component", "server").Logger(),
	}
	for _, a := range accounts {
		s.accounts[a.Name] = a
		s.order = append(s.order, a.Name)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.registerRoutes()
	return s
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Exports page through the whole list inside one request.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Int("accounts", len(s.order)).Msg("Starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down HTTP server")
	return srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", pattern).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
