package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/omenmarkets/core/internal/domain"
	"github.com/omenmarkets/core/internal/server/handler"
	"github.com/omenmarkets/core/internal/server/middleware"
	"github.com/omenmarkets/core/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKeys         []string // if empty, authentication is disabled
	RateLimitPerMin int      // requests per minute per client IP; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Trades  *handler.TradeHandler
	Claims  *handler.ClaimHandler
	Risk    *handler.RiskHandler
	Archive *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the exchange engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, auth, logging, CORS) and attaches the
// WebSocket hub. A nil limiter disables rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market and option endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/options", handlers.Markets.ListOptions)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/options/{id}/quote", handlers.Markets.Quote)
	mux.HandleFunc("POST /api/options/{id}/resolve", handlers.Markets.ResolveOption)

	// Trade execution.
	mux.HandleFunc("POST /api/trades", handlers.Trades.ExecuteTrade)

	// Settlement endpoints.
	mux.HandleFunc("POST /api/claims", handlers.Claims.Claim)
	mux.HandleFunc("GET /api/claims/preview", handlers.Claims.PreviewClaim)
	mux.HandleFunc("GET /api/positions", handlers.Claims.ListPositions)

	// Risk audit trail.
	mux.HandleFunc("GET /api/risk/records", handlers.Risk.ListRecords)

	// Archive trigger.
	if handlers.Archive != nil {
		mux.HandleFunc("POST /api/archive/trigger", handlers.Archive.TriggerArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKeys)(h)

	if limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}

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
