// Package sweeper runs the pull-based deadline worker. None of the engine's
// time-triggered transitions fire on their own: the sweeper periodically
// scans for markets past a deadline and drives each one through the
// corresponding service call.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/oracle"
	"github.com/alanyoungcy/friendbet/internal/service"
)

// Sweeper scans for expired acceptance deadlines, finalizable proposals,
// settleable oracle conditions, and resolvable pegged markets.
type Sweeper struct {
	markets    domain.MarketStore
	marketSvc  *service.MarketService
	resolution *service.ResolutionService
	oracleSvc  *service.OracleService
	optimistic *oracle.Optimistic
	clock      domain.Clock
	logger     *slog.Logger
}

// New creates a Sweeper. optimistic may be nil when the in-house oracle is
// not wired.
func New(
	markets domain.MarketStore,
	marketSvc *service.MarketService,
	resolution *service.ResolutionService,
	oracleSvc *service.OracleService,
	optimistic *oracle.Optimistic,
	clock domain.Clock,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		markets:    markets,
		marketSvc:  marketSvc,
		resolution: resolution,
		oracleSvc:  oracleSvc,
		optimistic: optimistic,
		clock:      clock,
		logger:     logger.With(slog.String("component", "sweeper")),
	}
}

// Run executes one full sweep. Per-market failures are logged and skipped so
// one stuck market cannot block the rest of the batch.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sweeper context cancelled: %w", err)
	}
	s.expirePending(ctx)
	s.finalizeProposals(ctx)
	s.settleConditions(ctx)
	s.resolvePegged(ctx)
	return nil
}

// RunLoop runs the sweeper on a repeating interval until the context is
// cancelled.
func (s *Sweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := s.Run(ctx); err != nil {
		s.logger.Error("sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Sweeper) expirePending(ctx context.Context) {
	expired, err := s.markets.ListExpiredPending(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("list expired pending markets", slog.String("error", err.Error()))
		return
	}
	for _, m := range expired {
		err := s.marketSvc.ProcessExpiredDeadline(ctx, m.ID)
		switch {
		case err == nil:
			s.logger.Info("expired pending market refunded", slog.Int64("market_id", m.ID))
		case errors.Is(err, domain.ErrNotPending):
			// Lost the race to a concurrent acceptance or cancellation.
		default:
			s.logger.Error("expire pending market",
				slog.Int64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Sweeper) finalizeProposals(ctx context.Context) {
	finalizable, err := s.markets.ListFinalizable(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("list finalizable markets", slog.String("error", err.Error()))
		return
	}
	for _, m := range finalizable {
		err := s.resolution.FinalizeResolution(ctx, m.ID)
		switch {
		case err == nil:
			s.logger.Info("proposal finalized", slog.Int64("market_id", m.ID))
		case errors.Is(err, domain.ErrAlreadyResolved),
			errors.Is(err, domain.ErrDisputePending),
			errors.Is(err, domain.ErrChallengeWindowOpen):
			// Raced a manual finalization or a late challenge.
		default:
			s.logger.Error("finalize proposal",
				slog.Int64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Sweeper) settleConditions(ctx context.Context) {
	if s.optimistic == nil {
		return
	}
	conds, err := s.optimistic.ListSettleable(ctx)
	if err != nil {
		s.logger.Error("list settleable conditions", slog.String("error", err.Error()))
		return
	}
	for _, cond := range conds {
		_, err := s.oracleSvc.SettleCondition(ctx, oracle.OptimisticID, cond.ID)
		switch {
		case err == nil:
			s.logger.Info("condition settled", slog.String("condition_id", cond.ID))
		case errors.Is(err, domain.ErrAlreadyResolved):
			// Raced a manual settlement.
		default:
			s.logger.Error("settle condition",
				slog.String("condition_id", cond.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Sweeper) resolvePegged(ctx context.Context) {
	pegged, err := s.markets.ListPegged(ctx)
	if err != nil {
		s.logger.Error("list pegged markets", slog.String("error", err.Error()))
		return
	}
	for _, m := range pegged {
		err := s.oracleSvc.ResolveFromOracle(ctx, m.ID)
		switch {
		case err == nil:
			s.logger.Info("pegged market resolved", slog.Int64("market_id", m.ID))
		case errors.Is(err, domain.ErrConditionNotResolved),
			errors.Is(err, domain.ErrAlreadyResolved):
			// Condition still open, or raced a manual resolution.
		default:
			s.logger.Error("resolve pegged market",
				slog.Int64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
