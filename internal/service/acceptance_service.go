package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/vault"
)

// AcceptanceService enforces the per-market-type invitation and quorum rules
// that gate the pending -> active transition.
type AcceptanceService struct {
	markets domain.MarketStore
	accs    domain.AcceptanceStore
	cache   domain.MarketCache
	vault   *vault.Vault
	locks   domain.LockManager
	emitter *Emitter
	clock   domain.Clock
	logger  *slog.Logger
}

// NewAcceptanceService creates an AcceptanceService. cache and locks may be
// nil.
func NewAcceptanceService(
	markets domain.MarketStore,
	accs domain.AcceptanceStore,
	cache domain.MarketCache,
	v *vault.Vault,
	locks domain.LockManager,
	emitter *Emitter,
	clock domain.Clock,
	logger *slog.Logger,
) *AcceptanceService {
	return &AcceptanceService{
		markets: markets,
		accs:    accs,
		cache:   cache,
		vault:   v,
		locks:   locks,
		emitter: emitter,
		clock:   clock,
		logger:  logger.With(slog.String("component", "acceptance_service")),
	}
}

// AcceptMarket records caller's acceptance with the given payment. The
// payment must equal the caller's required stake exactly (zero for the
// arbitrator). Activation happens the moment quorum is reached.
func (s *AcceptanceService) AcceptMarket(ctx context.Context, marketID int64, caller string, payment *big.Int) error {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("acceptance_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	if payment == nil {
		payment = big.NewInt(0)
	}

	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.markets.GetByID(ctx, marketID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrInvalidMarketID
			}
			return fmt.Errorf("acceptance_service: get market %d: %w", marketID, err)
		}
		if m.Status != domain.StatusPendingAcceptance {
			return domain.ErrNotPending
		}
		if !s.clock.Now().Before(m.AcceptanceDeadline) {
			return domain.ErrDeadlinePassed
		}

		isArbitrator := m.Arbitrator != "" && caller == m.Arbitrator
		if !m.IsInvited(caller) {
			return domain.ErrNotInvited
		}
		// One-vs-one and bookmaker markets admit only the named opponent
		// (and the arbitrator, when one is required).
		if (m.Type == domain.MarketOneVsOne || m.Type == domain.MarketBookmaker) &&
			!isArbitrator && caller != m.Opponent() && caller != m.Creator {
			return domain.ErrNotInvited
		}

		// Duplicates are rejected before anything else so a repeat
		// acceptance never surfaces as a payment problem.
		rec, err := s.accs.Get(ctx, marketID, caller)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotInvited
			}
			return fmt.Errorf("acceptance_service: get acceptance: %w", err)
		}
		if rec.HasAccepted {
			return domain.ErrAlreadyAccepted
		}

		required := m.RequiredStake(caller)
		if payment.Cmp(required) != 0 {
			return fmt.Errorf("acceptance_service: required %s, got %s: %w",
				required.String(), payment.String(), domain.ErrInsufficientPayment)
		}

		now := s.clock.Now()
		// Conditional flip: rejects duplicates regardless of market type.
		if err := s.accs.MarkAccepted(ctx, marketID, caller, payment, now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotInvited
			}
			return fmt.Errorf("acceptance_service: mark accepted: %w", err)
		}
		if payment.Sign() > 0 {
			if err := s.vault.DepositCollateral(ctx, marketID, m.StakeToken, payment); err != nil {
				return fmt.Errorf("acceptance_service: deposit stake: %w", err)
			}
		}

		eventType := domain.EventParticipantAccepted
		if isArbitrator {
			eventType = domain.EventArbitratorAccepted
		}
		s.emitter.Emit(ctx, eventType, marketID, map[string]string{
			"participant": caller,
			"amount":      payment.String(),
			"token":       m.StakeToken,
		})

		return s.maybeActivate(ctx, &m)
	})
}

// maybeActivate checks quorum and flips pending -> active when reached.
func (s *AcceptanceService) maybeActivate(ctx context.Context, m *domain.FriendMarket) error {
	records, err := s.accs.ListByMarket(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("acceptance_service: list acceptances: %w", err)
	}

	accepted := 0
	arbitratorAccepted := false
	for _, rec := range records {
		if !rec.HasAccepted {
			continue
		}
		if rec.IsArbitrator {
			arbitratorAccepted = true
			continue
		}
		accepted++
	}

	if accepted < m.MinAcceptanceThreshold {
		return nil
	}
	if m.ResolutionType == domain.ResolutionThirdParty && !arbitratorAccepted {
		return nil
	}

	if err := s.markets.UpdateStatus(ctx, m.ID, domain.StatusPendingAcceptance, domain.StatusActive); err != nil {
		return fmt.Errorf("acceptance_service: activate market %d: %w", m.ID, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed",
				slog.Int64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	total, err := s.vault.Balance(ctx, m.ID, m.StakeToken)
	if err != nil {
		return fmt.Errorf("acceptance_service: read pot: %w", err)
	}
	s.emitter.Emit(ctx, domain.EventMarketActivated, m.ID, map[string]string{
		"total_staked":      total.String(),
		"token":             m.StakeToken,
		"participant_count": fmt.Sprintf("%d", accepted),
	})
	s.logger.InfoContext(ctx, "market activated",
		slog.Int64("market_id", m.ID),
		slog.Int("participants", accepted),
		slog.String("total_staked", total.String()),
	)
	return nil
}

// Status summarizes a market's progress toward activation.
func (s *AcceptanceService) Status(ctx context.Context, marketID int64) (domain.AcceptanceStatus, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AcceptanceStatus{}, domain.ErrInvalidMarketID
		}
		return domain.AcceptanceStatus{}, fmt.Errorf("acceptance_service: get market %d: %w", marketID, err)
	}

	records, err := s.accs.ListByMarket(ctx, marketID)
	if err != nil {
		return domain.AcceptanceStatus{}, fmt.Errorf("acceptance_service: list acceptances: %w", err)
	}

	status := domain.AcceptanceStatus{
		MarketID:           marketID,
		Status:             m.Status,
		Threshold:          m.MinAcceptanceThreshold,
		Deadline:           m.AcceptanceDeadline,
		ArbitratorRequired: m.ResolutionType == domain.ResolutionThirdParty,
		TotalStaked:        big.NewInt(0),
	}
	for _, rec := range records {
		if !rec.HasAccepted {
			continue
		}
		if rec.IsArbitrator {
			status.ArbitratorAccepted = true
			continue
		}
		status.AcceptedCount++
		if rec.StakedAmount != nil {
			status.TotalStaked.Add(status.TotalStaked, rec.StakedAmount)
		}
	}
	return status, nil
}

// StakeRequirement returns the collateral participant must pay to accept
// marketID.
func (s *AcceptanceService) StakeRequirement(ctx context.Context, marketID int64, participant string) (*big.Int, error) {
	participant, err := domain.NormalizeAddress(participant)
	if err != nil {
		return nil, fmt.Errorf("acceptance_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidMarketID
		}
		return nil, fmt.Errorf("acceptance_service: get market %d: %w", marketID, err)
	}
	if !m.IsInvited(participant) {
		return nil, domain.ErrNotInvited
	}
	return m.RequiredStake(participant), nil
}

// ListAcceptances returns all acceptance records of a market.
func (s *AcceptanceService) ListAcceptances(ctx context.Context, marketID int64) ([]domain.ParticipantAcceptance, error) {
	records, err := s.accs.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("acceptance_service: list acceptances: %w", err)
	}
	return records, nil
}

// PendingParticipants returns invitees that have not accepted yet.
func (s *AcceptanceService) PendingParticipants(ctx context.Context, marketID int64) ([]string, error) {
	records, err := s.accs.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("acceptance_service: list acceptances: %w", err)
	}
	pending := make([]string, 0, len(records))
	for _, rec := range records {
		if !rec.HasAccepted {
			pending = append(pending, rec.Participant)
		}
	}
	return pending, nil
}
