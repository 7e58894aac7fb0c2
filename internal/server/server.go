package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/server/handler"
	"github.com/alanyoungcy/bondwizard/internal/server/middleware"
	"github.com/alanyoungcy/bondwizard/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Wizards   *handler.WizardHandler
	Offerings *handler.OfferingHandler
	Bonds     *handler.BondHandler
}

// Server is the HTTP + WebSocket API of the bond wizard backend.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain applied. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status stay outside auth.
	public := http.NewServeMux()
	public.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		public.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	// Wizard sessions.
	mux.HandleFunc("POST /api/wizards", handlers.Wizards.Create)
	mux.HandleFunc("GET /api/wizards/{id}", handlers.Wizards.Get)
	mux.HandleFunc("DELETE /api/wizards/{id}", handlers.Wizards.Discard)
	mux.HandleFunc("PUT /api/wizards/{id}/fields", handlers.Wizards.SetFields)
	mux.HandleFunc("POST /api/wizards/{id}/next", handlers.Wizards.Next)
	mux.HandleFunc("POST /api/wizards/{id}/back", handlers.Wizards.Back)
	mux.HandleFunc("POST /api/wizards/{id}/prepare", handlers.Wizards.Prepare)
	mux.HandleFunc("POST /api/wizards/{id}/steps/{step}", handlers.Wizards.RunStep)
	mux.HandleFunc("GET /api/wizards/{id}/events", handlers.Wizards.Events)

	// Issuance history.
	mux.HandleFunc("GET /api/issuances", handlers.Wizards.ListIssuances)
	mux.HandleFunc("GET /api/issuances/{id}", handlers.Wizards.GetIssuance)

	// Offerings table.
	mux.HandleFunc("GET /api/offerings", handlers.Offerings.ListOfferings)

	// Indexed bonds and actions.
	mux.HandleFunc("GET /api/bonds", handlers.Bonds.ListBonds)
	mux.HandleFunc("GET /api/bonds/{id}", handlers.Bonds.GetBond)
	mux.HandleFunc("POST /api/bonds/{id}/actions/{action}", handlers.Bonds.Execute)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var api http.Handler = mux
	api = middleware.Auth(cfg.APIKey)(api)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		api = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(api)
	}

	root := http.NewServeMux()
	root.Handle("/api/health", public)
	root.Handle("/api/status", public)
	root.Handle("/", api)

	var h http.Handler = root
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // step submission waits for a receipt
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
