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

// CreateMarketParams carries the caller-supplied parameters shared by all
// market creation entry points. Amounts are decimal strings at the API
// boundary; here they are parsed big integers.
type CreateMarketParams struct {
	Creator             string
	Members             []string
	Arbitrator          string
	ResolutionType      domain.ResolutionType
	StakeToken          string
	StakePerParticipant *big.Int
	OpponentOddsBps     int64
	AcceptanceDeadline  time.Time
	Threshold           int
	Description         string
}

// MarketService owns the market ledger and its lifecycle state machine:
// creation, cancellation, and deadline-expiry transitions. Fund movement is
// delegated to the vault; activation is driven by the acceptance service.
type MarketService struct {
	markets    domain.MarketStore
	accs       domain.AcceptanceStore
	cache      domain.MarketCache
	vault      *vault.Vault
	capability domain.CapabilityChecker
	locks      domain.LockManager
	emitter    *Emitter
	clock      domain.Clock
	logger     *slog.Logger
}

// NewMarketService creates a MarketService. cache and locks may be nil.
func NewMarketService(
	markets domain.MarketStore,
	accs domain.AcceptanceStore,
	cache domain.MarketCache,
	v *vault.Vault,
	capability domain.CapabilityChecker,
	locks domain.LockManager,
	emitter *Emitter,
	clock domain.Clock,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:    markets,
		accs:       accs,
		cache:      cache,
		vault:      v,
		capability: capability,
		locks:      locks,
		emitter:    emitter,
		clock:      clock,
		logger:     logger.With(slog.String("component", "market_service")),
	}
}

// CreateOneVsOneMarketPending creates a two-party market: exactly the named
// opponent may accept. The creator's stake is locked immediately.
func (s *MarketService) CreateOneVsOneMarketPending(ctx context.Context, p CreateMarketParams) (int64, error) {
	if len(p.Members) != 1 {
		return 0, fmt.Errorf("market_service: %w: one-vs-one needs exactly one opponent", domain.ErrInvalidParameters)
	}
	p.Threshold = 2
	p.OpponentOddsBps = 0
	return s.create(ctx, domain.MarketOneVsOne, p)
}

// CreateSmallGroupMarketPending creates a group market. marketType selects
// the flavor (small_group, event_tracking, or prop_bet); all three share the
// threshold quorum rule.
func (s *MarketService) CreateSmallGroupMarketPending(ctx context.Context, marketType domain.MarketType, p CreateMarketParams) (int64, error) {
	switch marketType {
	case domain.MarketSmallGroup, domain.MarketEventTracking, domain.MarketPropBet:
	case "":
		marketType = domain.MarketSmallGroup
	default:
		return 0, fmt.Errorf("market_service: %w: %q is not a group market type", domain.ErrInvalidParameters, marketType)
	}
	if len(p.Members) == 0 {
		return 0, fmt.Errorf("market_service: %w: at least one invitee required", domain.ErrInvalidParameters)
	}
	// The creator counts toward the threshold and is accepted at creation.
	if p.Threshold < 2 || p.Threshold > len(p.Members)+1 {
		return 0, fmt.Errorf("market_service: %w: threshold %d out of range", domain.ErrInvalidParameters, p.Threshold)
	}
	p.OpponentOddsBps = 0
	return s.create(ctx, marketType, p)
}

// CreateBookmakerMarket creates a two-party market where the opponent's
// required stake is the creator's stake scaled by an odds multiplier in
// basis points.
func (s *MarketService) CreateBookmakerMarket(ctx context.Context, p CreateMarketParams) (int64, error) {
	if len(p.Members) != 1 {
		return 0, fmt.Errorf("market_service: %w: bookmaker needs exactly one opponent", domain.ErrInvalidParameters)
	}
	if p.OpponentOddsBps <= 0 {
		return 0, fmt.Errorf("market_service: %w: odds multiplier must be positive", domain.ErrInvalidParameters)
	}
	p.Threshold = 2
	return s.create(ctx, domain.MarketBookmaker, p)
}

func (s *MarketService) create(ctx context.Context, marketType domain.MarketType, p CreateMarketParams) (int64, error) {
	now := s.clock.Now()

	if p.StakePerParticipant == nil || p.StakePerParticipant.Sign() <= 0 {
		return 0, fmt.Errorf("market_service: %w: stake must be positive", domain.ErrInvalidParameters)
	}
	if p.StakeToken == "" {
		return 0, fmt.Errorf("market_service: %w: stake token required", domain.ErrInvalidParameters)
	}
	if !p.AcceptanceDeadline.After(now) {
		return 0, fmt.Errorf("market_service: %w: acceptance deadline must be in the future", domain.ErrInvalidParameters)
	}
	switch p.ResolutionType {
	case domain.ResolutionEither, domain.ResolutionInitiator, domain.ResolutionReceiver, domain.ResolutionAutoPegged:
		if p.Arbitrator != "" {
			return 0, fmt.Errorf("market_service: %w: arbitrator only valid for third-party resolution", domain.ErrInvalidParameters)
		}
	case domain.ResolutionThirdParty:
		if p.Arbitrator == "" {
			return 0, fmt.Errorf("market_service: %w: third-party resolution requires an arbitrator", domain.ErrInvalidParameters)
		}
	default:
		return 0, fmt.Errorf("market_service: %w: unknown resolution type %q", domain.ErrInvalidParameters, p.ResolutionType)
	}

	creator, err := domain.NormalizeAddress(p.Creator)
	if err != nil {
		return 0, fmt.Errorf("market_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	members := make([]string, 0, len(p.Members))
	seen := map[string]bool{creator: true}
	for _, raw := range p.Members {
		member, err := domain.NormalizeAddress(raw)
		if err != nil {
			return 0, fmt.Errorf("market_service: %w: %v", domain.ErrInvalidParameters, err)
		}
		if seen[member] {
			return 0, fmt.Errorf("market_service: %w: duplicate member %s", domain.ErrInvalidParameters, member)
		}
		seen[member] = true
		members = append(members, member)
	}
	arbitrator := ""
	if p.Arbitrator != "" {
		arbitrator, err = domain.NormalizeAddress(p.Arbitrator)
		if err != nil {
			return 0, fmt.Errorf("market_service: %w: %v", domain.ErrInvalidParameters, err)
		}
		if seen[arbitrator] {
			return 0, fmt.Errorf("market_service: %w: arbitrator must not be a participant", domain.ErrInvalidParameters)
		}
	}

	allowed, err := s.capability.MayCreate(ctx, marketType, creator)
	if err != nil {
		return 0, fmt.Errorf("market_service: capability check: %w", err)
	}
	if !allowed {
		return 0, fmt.Errorf("market_service: %s may not create %s markets: %w", creator, marketType, domain.ErrUnauthorized)
	}

	m := domain.FriendMarket{
		Type:                   marketType,
		Creator:                creator,
		Members:                members,
		Arbitrator:             arbitrator,
		ResolutionType:         p.ResolutionType,
		StakeToken:             p.StakeToken,
		StakePerParticipant:    new(big.Int).Set(p.StakePerParticipant),
		OpponentOddsBps:        p.OpponentOddsBps,
		AcceptanceDeadline:     p.AcceptanceDeadline,
		MinAcceptanceThreshold: p.Threshold,
		Status:                 domain.StatusPendingAcceptance,
		Description:            p.Description,
		CreatedAt:              now,
	}

	id, err := s.markets.Create(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("market_service: create market: %w", err)
	}

	if err := s.vault.CreateMarket(ctx, id, VaultManager); err != nil {
		return 0, fmt.Errorf("market_service: vault register: %w", err)
	}
	// Creator's stake is locked at creation.
	if err := s.vault.DepositCollateral(ctx, id, m.StakeToken, m.StakePerParticipant); err != nil {
		return 0, fmt.Errorf("market_service: lock creator stake: %w", err)
	}

	records := make([]domain.ParticipantAcceptance, 0, len(members)+2)
	records = append(records, domain.ParticipantAcceptance{
		MarketID:     id,
		Participant:  creator,
		StakedAmount: new(big.Int).Set(m.StakePerParticipant),
		AcceptedAt:   now,
		HasAccepted:  true,
		InvitedAt:    now,
	})
	for _, member := range members {
		records = append(records, domain.ParticipantAcceptance{
			MarketID:     id,
			Participant:  member,
			StakedAmount: big.NewInt(0),
			InvitedAt:    now,
		})
	}
	if arbitrator != "" {
		records = append(records, domain.ParticipantAcceptance{
			MarketID:     id,
			Participant:  arbitrator,
			StakedAmount: big.NewInt(0),
			IsArbitrator: true,
			InvitedAt:    now,
		})
	}
	if err := s.accs.CreateBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("market_service: create acceptance records: %w", err)
	}

	s.emitter.Emit(ctx, domain.EventMarketCreatedPending, id, map[string]string{
		"market_type":     string(marketType),
		"creator":         creator,
		"resolution_type": string(p.ResolutionType),
		"stake_token":     m.StakeToken,
		"stake":           m.StakePerParticipant.String(),
		"deadline":        m.AcceptanceDeadline.UTC().Format(time.RFC3339),
	})
	s.logger.InfoContext(ctx, "market created",
		slog.Int64("market_id", id),
		slog.String("type", string(marketType)),
		slog.String("creator", creator),
	)
	return id, nil
}

// CancelPendingMarket cancels a market before anyone but the creator has
// accepted and refunds the creator's stake.
func (s *MarketService) CancelPendingMarket(ctx context.Context, marketID int64, caller string) error {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("market_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusPendingAcceptance {
			return domain.ErrNotPending
		}
		if m.Creator != caller {
			return domain.ErrUnauthorized
		}
		accepted, err := s.accs.CountAccepted(ctx, marketID)
		if err != nil {
			return fmt.Errorf("market_service: count accepted: %w", err)
		}
		if accepted > 1 { // creator only
			return domain.ErrAlreadyAccepted
		}

		if err := s.markets.UpdateStatus(ctx, marketID, domain.StatusPendingAcceptance, domain.StatusCancelled); err != nil {
			return fmt.Errorf("market_service: cancel market %d: %w", marketID, err)
		}
		s.invalidate(ctx, marketID)

		if err := s.vault.WithdrawCollateral(ctx, marketID, m.StakeToken, m.Creator, m.StakePerParticipant, VaultManager); err != nil {
			return fmt.Errorf("market_service: refund creator: %w", err)
		}
		if err := s.vault.CloseMarket(ctx, marketID); err != nil {
			return fmt.Errorf("market_service: close vault: %w", err)
		}

		s.emitter.Emit(ctx, domain.EventMarketCancelled, marketID, map[string]string{
			"creator": m.Creator,
		})
		s.emitter.Emit(ctx, domain.EventStakeRefunded, marketID, map[string]string{
			"participant": m.Creator,
			"amount":      m.StakePerParticipant.String(),
			"token":       m.StakeToken,
		})
		return nil
	})
}

// ProcessExpiredDeadline refunds every staked participant of a pending
// market whose acceptance deadline has elapsed without reaching quorum.
// Callable by anyone; rejected once the market has left pending_acceptance.
func (s *MarketService) ProcessExpiredDeadline(ctx context.Context, marketID int64) error {
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusPendingAcceptance {
			return domain.ErrNotPending
		}
		if s.clock.Now().Before(m.AcceptanceDeadline) {
			return domain.ErrDeadlineNotReached
		}

		if err := s.markets.UpdateStatus(ctx, marketID, domain.StatusPendingAcceptance, domain.StatusRefunded); err != nil {
			return fmt.Errorf("market_service: expire market %d: %w", marketID, err)
		}
		s.invalidate(ctx, marketID)

		records, err := s.accs.ListByMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("market_service: list acceptances: %w", err)
		}
		for _, rec := range records {
			if !rec.HasAccepted || rec.StakedAmount == nil || rec.StakedAmount.Sign() <= 0 {
				continue
			}
			if err := s.vault.WithdrawCollateral(ctx, marketID, m.StakeToken, rec.Participant, rec.StakedAmount, VaultManager); err != nil {
				return fmt.Errorf("market_service: refund %s: %w", rec.Participant, err)
			}
			s.emitter.Emit(ctx, domain.EventStakeRefunded, marketID, map[string]string{
				"participant": rec.Participant,
				"amount":      rec.StakedAmount.String(),
				"token":       m.StakeToken,
			})
		}
		if err := s.vault.CloseMarket(ctx, marketID); err != nil {
			return fmt.Errorf("market_service: close vault: %w", err)
		}
		return nil
	})
}

// GetMarket retrieves a market, cache first.
func (s *MarketService) GetMarket(ctx context.Context, marketID int64) (domain.FriendMarket, error) {
	return s.getMarket(ctx, marketID)
}

// ListByStatus returns markets in the given status with pagination.
func (s *MarketService) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	markets, err := s.markets.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by status: %w", err)
	}
	return markets, nil
}

// ListByParticipant returns markets addr is invited to or created.
func (s *MarketService) ListByParticipant(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	addr, err := domain.NormalizeAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("market_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	markets, err := s.markets.ListByParticipant(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by participant: %w", err)
	}
	return markets, nil
}

// BatchStatus returns the status of each existing market in ids.
func (s *MarketService) BatchStatus(ctx context.Context, ids []int64) (map[int64]domain.MarketStatus, error) {
	statuses, err := s.markets.GetStatuses(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("market_service: batch status: %w", err)
	}
	return statuses, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

func (s *MarketService) getMarket(ctx context.Context, marketID int64) (domain.FriendMarket, error) {
	if marketID <= 0 {
		return domain.FriendMarket{}, domain.ErrInvalidMarketID
	}
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, marketID); err == nil {
			return m, nil
		}
	}
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.FriendMarket{}, domain.ErrInvalidMarketID
		}
		return domain.FriendMarket{}, fmt.Errorf("market_service: get market %d: %w", marketID, err)
	}
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Int64("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

func (s *MarketService) invalidate(ctx context.Context, marketID int64) {
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
