package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/identity"
	"github.com/outcomex/settle/internal/server/handler"
	"github.com/outcomex/settle/internal/server/middleware"
	"github.com/outcomex/settle/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // guards admin endpoints; empty disables the check
	RateLimit   int    // signed requests per window per account; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Clob     *handler.ClobHandler
	Accounts *handler.AccountHandler
}

// Server is the HTTP + WebSocket API for the settlement engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// Mutating trading routes pass through signature auth, then per-account rate
// limiting; the deposit route is guarded by the admin API key; reads are
// open.
func NewServer(cfg Config, handlers Handlers, verifier *identity.Verifier, limiter domain.RateLimiter, clock domain.Clock, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Signature verification runs first so the rate limiter can key on the
	// verified account.
	signed := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		if limiter != nil && cfg.RateLimit > 0 {
			wrapped = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(wrapped)
		}
		return middleware.Signature(verifier, clock)(wrapped)
	}
	admin := middleware.APIKey(cfg.APIKey)

	// Health check (no auth required).
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	// Parimutuel market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.Handle("POST /api/markets", signed(handlers.Markets.CreateMarket))
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.Handle("POST /api/markets/{id}/buy", signed(handlers.Markets.Buy))
	mux.Handle("POST /api/markets/{id}/resolve", signed(handlers.Markets.Resolve))
	mux.Handle("POST /api/markets/{id}/claim", signed(handlers.Markets.Claim))
	mux.HandleFunc("GET /api/markets/{id}/positions/{account}", handlers.Markets.GetPosition)

	// Order-book market endpoints.
	mux.HandleFunc("GET /api/clob/markets", handlers.Clob.ListMarkets)
	mux.Handle("POST /api/clob/markets", signed(handlers.Clob.CreateMarket))
	mux.HandleFunc("GET /api/clob/markets/{id}", handlers.Clob.GetMarket)
	mux.HandleFunc("GET /api/clob/markets/{id}/book", handlers.Clob.GetBook)
	mux.Handle("POST /api/clob/markets/{id}/orders", signed(handlers.Clob.PlaceOrder))
	mux.Handle("DELETE /api/clob/markets/{id}/orders/{side}/{index}", signed(handlers.Clob.CancelOrder))
	mux.Handle("POST /api/clob/markets/{id}/resolve", signed(handlers.Clob.Resolve))
	mux.Handle("POST /api/clob/markets/{id}/claim", signed(handlers.Clob.Claim))
	mux.HandleFunc("GET /api/clob/markets/{id}/positions/{account}", handlers.Clob.GetPosition)
	mux.HandleFunc("GET /api/clob/markets/{id}/fills", handlers.Clob.ListFills)

	// Account endpoints.
	mux.HandleFunc("GET /api/accounts/{account}/balance", handlers.Accounts.Balance)
	mux.Handle("POST /api/accounts/{account}/deposit", admin(http.HandlerFunc(handlers.Accounts.Deposit)))
	mux.Handle("POST /api/accounts/{account}/withdraw", signed(handlers.Accounts.Withdraw))

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Global chain: CORS outermost so preflights never hit auth, then
	// request logging.
	var h http.Handler = mux
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
