// Package server hosts the HTTP + WebSocket API surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomebridge/ooadapter/internal/domain"
	"github.com/outcomebridge/ooadapter/internal/server/handler"
	"github.com/outcomebridge/ooadapter/internal/server/middleware"
	"github.com/outcomebridge/ooadapter/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the per-client request budget per RateWindow. Zero
	// disables rate limiting even when a limiter is provided.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Questions *handler.QuestionHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the resolution adapter.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, auth, caller identity, logging,
// CORS) and attaches the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Question lifecycle.
	mux.HandleFunc("POST /api/questions", handlers.Questions.Create)
	mux.HandleFunc("GET /api/questions", handlers.Questions.List)
	mux.HandleFunc("GET /api/questions/{id}", handlers.Questions.Get)
	mux.HandleFunc("PUT /api/questions/{id}", handlers.Questions.Update)
	mux.HandleFunc("GET /api/questions/{id}/ready", handlers.Questions.Ready)
	mux.HandleFunc("GET /api/questions/{id}/payouts", handlers.Questions.Payouts)
	mux.HandleFunc("POST /api/questions/{id}/resolve", handlers.Questions.Resolve)
	mux.HandleFunc("POST /api/questions/{id}/settle", handlers.Questions.Settle)
	mux.HandleFunc("POST /api/questions/{id}/report", handlers.Questions.Report)

	// Privileged question management.
	mux.HandleFunc("POST /api/questions/{id}/flag", handlers.Admin.Flag)
	mux.HandleFunc("POST /api/questions/{id}/unflag", handlers.Admin.Unflag)
	mux.HandleFunc("POST /api/questions/{id}/pause", handlers.Admin.Pause)
	mux.HandleFunc("POST /api/questions/{id}/unpause", handlers.Admin.Unpause)
	mux.HandleFunc("POST /api/questions/{id}/emergency", handlers.Admin.EmergencyResolve)

	// Admin set management and audit trail.
	mux.HandleFunc("GET /api/admins/{address}", handlers.Admin.CheckAdmin)
	mux.HandleFunc("POST /api/admins", handlers.Admin.Rely)
	mux.HandleFunc("DELETE /api/admins/{address}", handlers.Admin.Deny)
	mux.HandleFunc("GET /api/audit", handlers.Admin.AuditTrail)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Resolve the caller principal before handlers run.
	h = middleware.Caller()(h)

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply rate limiting when configured.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

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
