package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/server/handler"
	"github.com/alanyoungcy/friendbet/internal/server/middleware"
	"github.com/alanyoungcy/friendbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, API-key authentication is disabled
	RequireSig      bool   // when true, mutating requests must carry an EIP-191 signature
	RateLimit       int    // requests per window per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Acceptance *handler.AcceptanceHandler
	Resolution *handler.ResolutionHandler
	Oracle     *handler.OracleHandler
	Vault      *handler.VaultHandler
	Audit      *handler.AuditHandler
	Archives   *handler.ArchiveHandler // nil when blob storage is not configured
}

// Server is the headless HTTP + WebSocket API server for the friend market
// engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting, signature
// verification) and attaches the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market creation and lifecycle.
	mux.HandleFunc("POST /api/markets/one-vs-one", handlers.Markets.CreateOneVsOne)
	mux.HandleFunc("POST /api/markets/small-group", handlers.Markets.CreateSmallGroup)
	mux.HandleFunc("POST /api/markets/bookmaker", handlers.Markets.CreateBookmaker)
	mux.HandleFunc("GET /api/markets", handlers.Markets.List)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.Get)
	mux.HandleFunc("POST /api/markets/status", handlers.Markets.BatchStatus)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Markets.Cancel)
	mux.HandleFunc("POST /api/markets/{id}/expire", handlers.Markets.Expire)

	// Acceptance phase.
	mux.HandleFunc("POST /api/markets/{id}/accept", handlers.Acceptance.Accept)
	mux.HandleFunc("GET /api/markets/{id}/acceptance", handlers.Acceptance.Status)
	mux.HandleFunc("GET /api/markets/{id}/acceptances", handlers.Acceptance.ListAcceptances)
	mux.HandleFunc("GET /api/markets/{id}/stake", handlers.Acceptance.StakeRequirement)
	mux.HandleFunc("GET /api/markets/{id}/pending", handlers.Acceptance.PendingParticipants)

	// Resolution flow.
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Resolution.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/challenge", handlers.Resolution.Challenge)
	mux.HandleFunc("POST /api/markets/{id}/dispute/resolve", handlers.Resolution.ResolveDispute)
	mux.HandleFunc("POST /api/markets/{id}/finalize", handlers.Resolution.Finalize)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Resolution.Claim)

	// Oracle bridge.
	mux.HandleFunc("GET /api/oracles", handlers.Oracle.ListOracles)
	mux.HandleFunc("POST /api/markets/{id}/peg", handlers.Oracle.Peg)
	mux.HandleFunc("POST /api/markets/{id}/resolve-from-oracle", handlers.Oracle.ResolveFromOracle)
	mux.HandleFunc("POST /api/oracles/{oracle}/conditions", handlers.Oracle.CreateCondition)
	mux.HandleFunc("GET /api/oracles/{oracle}/conditions/{condition}", handlers.Oracle.GetCondition)
	mux.HandleFunc("POST /api/oracles/{oracle}/conditions/{condition}/assert", handlers.Oracle.AssertOutcome)
	mux.HandleFunc("POST /api/oracles/{oracle}/conditions/{condition}/settle", handlers.Oracle.SettleCondition)

	// Vault inspection and operator controls.
	mux.HandleFunc("GET /api/markets/{id}/vault", handlers.Vault.Buckets)
	mux.HandleFunc("GET /api/markets/{id}/vault/balance", handlers.Vault.Balance)
	mux.HandleFunc("GET /api/vault/status", handlers.Vault.Status)
	mux.HandleFunc("POST /api/vault/pause", handlers.Vault.Pause)
	mux.HandleFunc("POST /api/vault/resume", handlers.Vault.Resume)

	// Audit trail.
	mux.HandleFunc("GET /api/markets/{id}/audit", handlers.Audit.Trail)

	// Archived audit trails and market snapshots.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.List)
		mux.HandleFunc("GET /api/archives/{key...}", handlers.Archives.Get)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Verify EIP-191 request signatures when present (or always, when
	// required).
	h = middleware.SigAuth(cfg.RequireSig)(h)

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when a limiter is wired.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
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
