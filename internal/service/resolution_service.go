package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/vault"
)

// ResolutionConfig tunes the optimistic propose/challenge/finalize flow.
type ResolutionConfig struct {
	// ChallengePeriod is the window during which a proposed outcome may be
	// disputed.
	ChallengePeriod time.Duration
	// ChallengeBond is the exact bond a challenger must post.
	ChallengeBond *big.Int
	// BondToken is the token challenge bonds are escrowed in.
	BondToken string
	// Operator adjudicates disputes on markets without an arbitrator.
	Operator string
}

// ResolutionService enforces the resolution authorization policy, the
// optimistic propose/challenge/finalize flow, and exactly-once claim payout.
type ResolutionService struct {
	markets domain.MarketStore
	accs    domain.AcceptanceStore
	cache   domain.MarketCache
	vault   *vault.Vault
	locks   domain.LockManager
	emitter *Emitter
	clock   domain.Clock
	cfg     ResolutionConfig
	logger  *slog.Logger
}

// NewResolutionService creates a ResolutionService. cache and locks may be
// nil.
func NewResolutionService(
	markets domain.MarketStore,
	accs domain.AcceptanceStore,
	cache domain.MarketCache,
	v *vault.Vault,
	locks domain.LockManager,
	emitter *Emitter,
	clock domain.Clock,
	cfg ResolutionConfig,
	logger *slog.Logger,
) *ResolutionService {
	if cfg.ChallengePeriod <= 0 {
		cfg.ChallengePeriod = 24 * time.Hour
	}
	if cfg.ChallengeBond == nil {
		cfg.ChallengeBond = big.NewInt(0)
	}
	return &ResolutionService{
		markets: markets,
		accs:    accs,
		cache:   cache,
		vault:   v,
		locks:   locks,
		emitter: emitter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "resolution_service")),
	}
}

// mayPropose resolves the authorization predicate for the market's
// resolution type.
func mayPropose(m *domain.FriendMarket, caller string) bool {
	switch m.ResolutionType {
	case domain.ResolutionEither:
		if caller == m.Creator {
			return true
		}
		for _, member := range m.Members {
			if member == caller {
				return true
			}
		}
		return false
	case domain.ResolutionInitiator:
		return caller == m.Creator
	case domain.ResolutionReceiver:
		return caller == m.Opponent()
	case domain.ResolutionThirdParty:
		return caller == m.Arbitrator
	case domain.ResolutionAutoPegged:
		// Manual proposals are rejected outright; only the oracle bridge
		// resolves these markets.
		return false
	default:
		return false
	}
}

// ResolveFriendMarket proposes an outcome on an active market, opening the
// challenge window.
func (s *ResolutionService) ResolveFriendMarket(ctx context.Context, marketID int64, caller string, outcome bool) error {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("resolution_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status == domain.StatusResolved {
			return domain.ErrAlreadyResolved
		}
		if m.Status != domain.StatusActive {
			return domain.ErrNotPending
		}
		if !mayPropose(&m, caller) {
			return domain.ErrUnauthorized
		}

		deadline := s.clock.Now().Add(s.cfg.ChallengePeriod)
		if err := s.markets.SetProposal(ctx, marketID, outcome, caller, deadline); err != nil {
			return fmt.Errorf("resolution_service: set proposal: %w", err)
		}
		s.invalidate(ctx, marketID)

		s.emitter.Emit(ctx, domain.EventResolutionProposed, marketID, map[string]string{
			"proposer":           caller,
			"outcome":            fmt.Sprintf("%t", outcome),
			"challenge_deadline": deadline.UTC().Format(time.RFC3339),
		})
		return nil
	})
}

// ChallengeResolution disputes a pending proposal before its challenge
// deadline. The bond is escrowed in the market's vault bucket; an upheld
// challenge refunds it, a rejected one forfeits it into the pot.
func (s *ResolutionService) ChallengeResolution(ctx context.Context, marketID int64, caller string, bond *big.Int) error {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("resolution_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	if bond == nil {
		bond = big.NewInt(0)
	}
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !m.HasProposal() {
			return domain.ErrNotPending
		}
		if m.DisputeOpen {
			return domain.ErrDisputePending
		}
		if m.ChallengeDeadline == nil || !s.clock.Now().Before(*m.ChallengeDeadline) {
			return domain.ErrDeadlinePassed
		}

		rec, err := s.accs.Get(ctx, marketID, caller)
		if err != nil || !rec.HasAccepted {
			return domain.ErrNotInvited
		}
		if bond.Cmp(s.cfg.ChallengeBond) != 0 {
			return fmt.Errorf("resolution_service: challenge bond must be %s: %w",
				s.cfg.ChallengeBond.String(), domain.ErrInsufficientPayment)
		}

		if err := s.markets.SetChallenge(ctx, marketID, caller, bond); err != nil {
			return fmt.Errorf("resolution_service: set challenge: %w", err)
		}
		s.invalidate(ctx, marketID)

		if bond.Sign() > 0 {
			if err := s.vault.DepositCollateral(ctx, marketID, s.cfg.BondToken, bond); err != nil {
				return fmt.Errorf("resolution_service: escrow bond: %w", err)
			}
		}

		s.emitter.Emit(ctx, domain.EventResolutionChallenged, marketID, map[string]string{
			"challenger": caller,
			"bond":       bond.String(),
			"token":      s.cfg.BondToken,
		})
		return nil
	})
}

// ResolveDispute adjudicates a challenged proposal and finalizes the market
// with the adjudicated outcome. Only the market's arbitrator — or the
// configured operator when no arbitrator exists — may adjudicate. If the
// adjudicated outcome differs from the proposal, the challenge was upheld
// and the challenger's bond is refunded; otherwise the bond stays in the
// pot.
func (s *ResolutionService) ResolveDispute(ctx context.Context, marketID int64, caller string, outcome bool) error {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("resolution_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !m.DisputeOpen || !m.HasProposal() {
			return fmt.Errorf("resolution_service: no open dispute: %w", domain.ErrNotFound)
		}

		adjudicator := s.cfg.Operator
		if m.Arbitrator != "" {
			adjudicator = m.Arbitrator
		}
		if caller != adjudicator {
			return domain.ErrUnauthorized
		}

		upheld := m.ProposedOutcome != nil && *m.ProposedOutcome != outcome

		if err := s.markets.SetDisputeOutcome(ctx, marketID, outcome); err != nil {
			return fmt.Errorf("resolution_service: set dispute outcome: %w", err)
		}
		s.emitter.Emit(ctx, domain.EventDisputeResolved, marketID, map[string]string{
			"adjudicator": caller,
			"outcome":     fmt.Sprintf("%t", outcome),
			"upheld":      fmt.Sprintf("%t", upheld),
		})

		if upheld && m.Challenger != "" && m.ChallengeBond != nil && m.ChallengeBond.Sign() > 0 {
			if err := s.vault.WithdrawCollateral(ctx, marketID, s.cfg.BondToken, m.Challenger, m.ChallengeBond, VaultManager); err != nil {
				return fmt.Errorf("resolution_service: refund challenge bond: %w", err)
			}
			s.emitter.Emit(ctx, domain.EventStakeRefunded, marketID, map[string]string{
				"participant": m.Challenger,
				"amount":      m.ChallengeBond.String(),
				"token":       s.cfg.BondToken,
			})
		}

		// Adjudication is final: resolve immediately.
		return s.finalize(ctx, marketID, outcome)
	})
}

// FinalizeResolution finalizes an unchallenged proposal once its challenge
// window has elapsed. Callable by anyone.
func (s *ResolutionService) FinalizeResolution(ctx context.Context, marketID int64) error {
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status == domain.StatusResolved {
			return domain.ErrAlreadyResolved
		}
		if !m.HasProposal() || m.ProposedOutcome == nil {
			return domain.ErrNotPending
		}
		if m.DisputeOpen {
			return domain.ErrDisputePending
		}
		if m.ChallengeDeadline != nil && s.clock.Now().Before(*m.ChallengeDeadline) {
			return domain.ErrChallengeWindowOpen
		}
		return s.finalize(ctx, marketID, *m.ProposedOutcome)
	})
}

// finalize sets outcome and winner and moves the market to resolved. The
// caller holds the market lock.
func (s *ResolutionService) finalize(ctx context.Context, marketID int64, outcome bool) error {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service: reload market %d: %w", marketID, err)
	}
	records, err := s.accs.ListByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service: list acceptances: %w", err)
	}
	winner := domain.WinnerFor(&m, records, outcome)
	if winner == "" {
		return fmt.Errorf("resolution_service: no winner derivable for market %d: %w", marketID, domain.ErrInvalidParameters)
	}

	if err := s.markets.MarkResolved(ctx, marketID, outcome, winner); err != nil {
		return fmt.Errorf("resolution_service: mark resolved: %w", err)
	}
	s.invalidate(ctx, marketID)

	s.emitter.Emit(ctx, domain.EventResolutionFinalized, marketID, map[string]string{
		"outcome": fmt.Sprintf("%t", outcome),
		"winner":  winner,
	})
	s.logger.InfoContext(ctx, "market resolved",
		slog.Int64("market_id", marketID),
		slog.Bool("outcome", outcome),
		slog.String("winner", winner),
	)
	return nil
}

// ClaimWinnings pays the full pot to the winner exactly once.
func (s *ResolutionService) ClaimWinnings(ctx context.Context, marketID int64, caller string) (*big.Int, error) {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	var paid *big.Int
	err = withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusResolved {
			return domain.ErrNotResolved
		}
		if m.WinningsClaimed {
			return domain.ErrAlreadyClaimed
		}
		if caller != m.Winner {
			return domain.ErrNotWinner
		}

		// Flip the claimed flag before moving any funds; the conditional
		// update makes a concurrent second claim fail here.
		if err := s.markets.MarkClaimed(ctx, marketID); err != nil {
			return fmt.Errorf("resolution_service: mark claimed: %w", err)
		}
		s.invalidate(ctx, marketID)

		buckets, err := s.vault.Buckets(ctx, marketID)
		if err != nil {
			return fmt.Errorf("resolution_service: list buckets: %w", err)
		}
		total := big.NewInt(0)
		for _, bucket := range buckets {
			if bucket.Balance == nil || bucket.Balance.Sign() <= 0 {
				continue
			}
			if err := s.vault.WithdrawCollateral(ctx, marketID, bucket.Token, m.Winner, bucket.Balance, VaultManager); err != nil {
				return fmt.Errorf("resolution_service: pay out %s: %w", bucket.Token, err)
			}
			total.Add(total, bucket.Balance)
		}
		if err := s.vault.CloseMarket(ctx, marketID); err != nil {
			return fmt.Errorf("resolution_service: close vault: %w", err)
		}

		s.emitter.Emit(ctx, domain.EventWinningsClaimed, marketID, map[string]string{
			"winner": m.Winner,
			"amount": total.String(),
		})
		paid = total
		return nil
	})
	return paid, err
}

func (s *ResolutionService) getMarket(ctx context.Context, marketID int64) (domain.FriendMarket, error) {
	if marketID <= 0 {
		return domain.FriendMarket{}, domain.ErrInvalidMarketID
	}
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.FriendMarket{}, domain.ErrInvalidMarketID
		}
		return domain.FriendMarket{}, fmt.Errorf("resolution_service: get market %d: %w", marketID, err)
	}
	return m, nil
}

func (s *ResolutionService) invalidate(ctx context.Context, marketID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.Int64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
