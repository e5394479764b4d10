// Package server assembles the HTTP and WebSocket API for the marketplace.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Vardominator/moltmarket/internal/domain"
	"github.com/Vardominator/moltmarket/internal/server/handler"
	"github.com/Vardominator/moltmarket/internal/server/middleware"
	"github.com/Vardominator/moltmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // gates /api/admin/* routes; if empty, admin auth is disabled

	// RateLimit caps requests per caller per window when a limiter is
	// provided. Zero values disable rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Registry *handler.RegistryHandler
	Listings *handler.ListingHandler
	Trades   *handler.TradeHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the agent marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Identity, rate limiting, logging, and CORS apply to every route; the
// API-key gate applies only to the admin and arbitration endpoints.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Privileged routes carry their own auth gate on top of the global chain.
	admin := middleware.Auth(cfg.APIKey)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Agent name registry.
	mux.HandleFunc("POST /api/agents", handlers.Registry.Register)
	mux.HandleFunc("GET /api/agents/{address}", handlers.Registry.GetByAddress)
	mux.HandleFunc("GET /api/agents/by-name/{name}", handlers.Registry.GetByName)

	// Listings.
	mux.HandleFunc("POST /api/listings", handlers.Listings.Create)
	mux.HandleFunc("GET /api/listings", handlers.Listings.Browse)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.Get)
	mux.HandleFunc("DELETE /api/listings/{id}", handlers.Listings.Cancel)

	// Escrow lifecycle.
	mux.HandleFunc("POST /api/listings/{id}/purchase", handlers.Trades.Purchase)
	mux.HandleFunc("POST /api/listings/{id}/deliver", handlers.Trades.MarkDelivered)
	mux.HandleFunc("POST /api/listings/{id}/confirm", handlers.Trades.ConfirmReceipt)
	mux.HandleFunc("POST /api/listings/{id}/dispute", handlers.Trades.RaiseDispute)
	mux.HandleFunc("POST /api/listings/{id}/release", handlers.Trades.AutoRelease)
	mux.Handle("POST /api/listings/{id}/resolve", admin(http.HandlerFunc(handlers.Trades.ResolveDispute)))
	mux.HandleFunc("GET /api/escrows/{id}", handlers.Trades.GetEscrow)

	// Per-agent query endpoints.
	mux.HandleFunc("GET /api/agents/{address}/listings", handlers.Listings.SellerListings)
	mux.HandleFunc("GET /api/agents/{address}/purchases", handlers.Listings.BuyerPurchases)
	mux.HandleFunc("GET /api/balances/{address}", handlers.Trades.Balance)

	// Marketplace administration.
	mux.Handle("GET /api/admin/fee", admin(http.HandlerFunc(handlers.Admin.GetFee)))
	mux.Handle("PUT /api/admin/fee", admin(http.HandlerFunc(handlers.Admin.UpdateFee)))
	mux.Handle("PUT /api/admin/owner", admin(http.HandlerFunc(handlers.Admin.TransferOwner)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}

	h = middleware.Identity()(h)
	h = middleware.Logging(logger)(h)
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

// Handler exposes the fully-wired handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
