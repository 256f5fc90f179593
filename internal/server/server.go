// Package server exposes the purchase pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/guildxyz/tokenbuyer/internal/server/handler"
	"github.com/guildxyz/tokenbuyer/internal/server/middleware"
	"github.com/guildxyz/tokenbuyer/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Quotes    *handler.QuoteHandler
	Purchases *handler.PurchaseHandler
}

// Server is the headless HTTP + WebSocket API for the token buyer.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limit, logging, CORS, auth) and attaches the
// WebSocket hub. limiter may be nil, which disables per-client throttling.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter middleware.Limiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required via the ordinary chain: auth is skipped
	// when no API key is configured, and monitoring setups inject the key).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Quotation.
	mux.HandleFunc("POST /api/quote", handlers.Quotes.Quote)

	// Purchase flow.
	mux.HandleFunc("POST /api/purchase", handlers.Purchases.Purchase)
	mux.HandleFunc("GET /api/purchase/{id}", handlers.Purchases.GetAttempt)
	mux.HandleFunc("GET /api/purchases", handlers.Purchases.ListAttempts)

	// WebSocket status stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil {
		h = middleware.RateLimit(limiter, 20, time.Second)(h)
	}

	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		// Purchase responses wait for on-chain confirmation.
		WriteTimeout: 5 * time.Minute,
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
