package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/friendbet/internal/server"
	"github.com/alanyoungcy/friendbet/internal/server/handler"
	"github.com/alanyoungcy/friendbet/internal/server/ws"
	"github.com/alanyoungcy/friendbet/internal/service"
	"github.com/alanyoungcy/friendbet/internal/sweeper"
)

// services bundles the domain services shared by the HTTP server and the
// sweeper.
type services struct {
	emitter    *service.Emitter
	market     *service.MarketService
	acceptance *service.AcceptanceService
	resolution *service.ResolutionService
	oracle     *service.OracleService
}

// buildServices constructs the domain service layer on top of the wired
// dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	emitter := service.NewEmitter(deps.AuditStore, deps.SignalBus, deps.Notifier, deps.Clock, a.logger)

	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.AcceptanceStore, deps.MarketCache,
		deps.Vault, deps.Capability, deps.LockManager,
		emitter, deps.Clock, a.logger,
	)
	acceptanceSvc := service.NewAcceptanceService(
		deps.MarketStore, deps.AcceptanceStore, deps.MarketCache,
		deps.Vault, deps.LockManager,
		emitter, deps.Clock, a.logger,
	)
	resolutionSvc := service.NewResolutionService(
		deps.MarketStore, deps.AcceptanceStore, deps.MarketCache,
		deps.Vault, deps.LockManager,
		emitter, deps.Clock,
		service.ResolutionConfig{
			ChallengePeriod: a.cfg.Resolution.ChallengePeriod.Duration,
			ChallengeBond:   a.cfg.ResolutionChallengeBond(),
			BondToken:       a.cfg.Resolution.BondToken,
			Operator:        a.cfg.Resolution.Operator,
		},
		a.logger,
	)
	oracleSvc := service.NewOracleService(
		deps.MarketStore, deps.AcceptanceStore, deps.MarketCache,
		deps.Bridge, deps.LockManager,
		emitter, a.logger,
	)

	return &services{
		emitter:    emitter,
		market:     marketSvc,
		acceptance: acceptanceSvc,
		resolution: resolutionSvc,
		oracle:     oracleSvc,
	}
}

// ServeMode runs the HTTP + WebSocket API server only. Deadline-gated
// transitions rely on a separate sweep-mode process (or on clients invoking
// the expire/finalize endpoints directly).
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// SweepMode runs only the deadline worker: pending-acceptance expiry,
// challenge-window finalization, oracle settlement, and pegged-market
// resolution.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startSweeper(ctx, g, deps, svcs)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server and the sweeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	a.startSweeper(ctx, g, deps, svcs)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer builds the handler set, WebSocket hub, and HTTP server,
// and registers their goroutines on g. Does nothing when the server is
// disabled in config.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Markets:    handler.NewMarketHandler(svcs.market, a.logger),
		Acceptance: handler.NewAcceptanceHandler(svcs.acceptance, a.logger),
		Resolution: handler.NewResolutionHandler(svcs.resolution, a.logger),
		Oracle:     handler.NewOracleHandler(svcs.oracle, a.logger),
		Vault:      handler.NewVaultHandler(deps.Vault, a.logger),
		Audit:      handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RequireSig:      a.cfg.Server.RequireSig,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startSweeper registers the deadline worker loop on g. Does nothing when
// the sweeper is disabled in config.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Sweeper.Enabled {
		a.logger.InfoContext(ctx, "sweeper disabled")
		return
	}

	sw := sweeper.New(
		deps.MarketStore,
		svcs.market,
		svcs.resolution,
		svcs.oracle,
		deps.Optimistic,
		deps.Clock,
		a.logger,
	)
	interval := a.cfg.Sweeper.Interval.Duration
	g.Go(func() error {
		return sw.RunLoop(ctx, interval)
	})
}

// startArchiver registers the daily archival loop on g when archival is
// enabled and blob storage is wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archiver.Enabled || deps.Archiver == nil {
		return
	}

	retention := time.Duration(a.cfg.Archiver.RetentionDays) * 24 * time.Hour
	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.runArchival(ctx, deps, retention)
			}
		}
	})
}

// runArchival performs one archival pass: the audit trail older than the
// retention window, then a snapshot of resolved markets.
func (a *App) runArchival(ctx context.Context, deps *Dependencies, retention time.Duration) {
	now := deps.Clock.Now()

	n, err := deps.Archiver.ArchiveAuditTrail(ctx, now.Add(-retention))
	if err != nil {
		a.logger.ErrorContext(ctx, "audit archival failed", slog.String("error", err.Error()))
	} else if n > 0 {
		a.logger.InfoContext(ctx, "archived audit entries", slog.Int64("count", n))
	}

	n, err = deps.Archiver.ArchiveResolvedMarkets(ctx, now)
	if err != nil {
		a.logger.ErrorContext(ctx, "market archival failed", slog.String("error", err.Error()))
	} else if n > 0 {
		a.logger.InfoContext(ctx, "archived resolved markets", slog.Int64("count", n))
	}
}
