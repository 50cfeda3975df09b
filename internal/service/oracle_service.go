package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/oracle"
)

// OracleService pegs auto-pegged markets to external oracle conditions and
// settles them from the oracle's verdict. It also fronts the condition
// lifecycle of the registered adapters.
type OracleService struct {
	markets domain.MarketStore
	accs    domain.AcceptanceStore
	cache   domain.MarketCache
	bridge  *oracle.Bridge
	locks   domain.LockManager
	emitter *Emitter
	logger  *slog.Logger
}

// NewOracleService creates an OracleService. cache and locks may be nil.
func NewOracleService(
	markets domain.MarketStore,
	accs domain.AcceptanceStore,
	cache domain.MarketCache,
	bridge *oracle.Bridge,
	locks domain.LockManager,
	emitter *Emitter,
	logger *slog.Logger,
) *OracleService {
	return &OracleService{
		markets: markets,
		accs:    accs,
		cache:   cache,
		bridge:  bridge,
		locks:   locks,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "oracle_service")),
	}
}

// PegToOracleCondition binds an active auto-pegged market to an existing
// oracle condition. Creator only; a market pegs at most once.
func (s *OracleService) PegToOracleCondition(ctx context.Context, marketID int64, caller, oracleID, conditionID string) error {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("oracle_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusActive {
			return domain.ErrNotPending
		}
		if m.ResolutionType != domain.ResolutionAutoPegged {
			return fmt.Errorf("oracle_service: market %d is not auto-pegged: %w", marketID, domain.ErrUnsupported)
		}
		if caller != m.Creator {
			return domain.ErrUnauthorized
		}
		if m.OracleID != "" {
			return fmt.Errorf("oracle_service: market %d already pegged: %w", marketID, domain.ErrAlreadyExists)
		}

		adapter, err := s.bridge.Adapter(oracleID)
		if err != nil {
			return err
		}
		if _, err := adapter.GetCondition(ctx, conditionID); err != nil {
			return fmt.Errorf("oracle_service: condition %s: %w", conditionID, err)
		}

		if err := s.markets.SetPeg(ctx, marketID, oracleID, conditionID); err != nil {
			return fmt.Errorf("oracle_service: set peg: %w", err)
		}
		s.invalidate(ctx, marketID)

		s.emitter.Emit(ctx, domain.EventMarketPegged, marketID, map[string]string{
			"oracle_id":    oracleID,
			"condition_id": conditionID,
		})
		return nil
	})
}

// ResolveFromOracle settles a pegged market from its oracle condition's
// verdict. Callable by anyone, including the sweeper.
func (s *OracleService) ResolveFromOracle(ctx context.Context, marketID int64) error {
	return withMarketLock(ctx, s.locks, marketID, func() error {
		m, err := s.getMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status == domain.StatusResolved {
			return domain.ErrAlreadyResolved
		}
		if m.Status != domain.StatusActive || m.OracleID == "" {
			return fmt.Errorf("oracle_service: market %d is not pegged and active: %w", marketID, domain.ErrNotPending)
		}

		adapter, err := s.bridge.Adapter(m.OracleID)
		if err != nil {
			return err
		}
		resolved, err := adapter.IsConditionResolved(ctx, m.ConditionID)
		if err != nil {
			return fmt.Errorf("oracle_service: check condition %s: %w", m.ConditionID, err)
		}
		if !resolved {
			return domain.ErrConditionNotResolved
		}
		outcome, confidence, err := adapter.ConditionOutcome(ctx, m.ConditionID)
		if err != nil {
			return fmt.Errorf("oracle_service: condition outcome %s: %w", m.ConditionID, err)
		}

		records, err := s.accs.ListByMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("oracle_service: list acceptances: %w", err)
		}
		winner := domain.WinnerFor(&m, records, outcome)
		if winner == "" {
			return fmt.Errorf("oracle_service: no winner derivable for market %d: %w", marketID, domain.ErrInvalidParameters)
		}

		if err := s.markets.MarkResolved(ctx, marketID, outcome, winner); err != nil {
			return fmt.Errorf("oracle_service: mark resolved: %w", err)
		}
		s.invalidate(ctx, marketID)

		s.emitter.Emit(ctx, domain.EventOracleMarketResolved, marketID, map[string]string{
			"oracle_id":    m.OracleID,
			"condition_id": m.ConditionID,
			"outcome":      fmt.Sprintf("%t", outcome),
			"confidence":   fmt.Sprintf("%.4f", confidence),
			"winner":       winner,
		})
		s.logger.InfoContext(ctx, "market resolved from oracle",
			slog.Int64("market_id", marketID),
			slog.String("oracle_id", m.OracleID),
			slog.Bool("outcome", outcome),
		)
		return nil
	})
}

// CreateCondition registers a new condition with the named oracle.
func (s *OracleService) CreateCondition(ctx context.Context, oracleID, description string, deadline time.Time) (string, error) {
	adapter, err := s.bridge.Adapter(oracleID)
	if err != nil {
		return "", err
	}
	conditionID, err := adapter.CreateCondition(ctx, description, deadline)
	if err != nil {
		return "", err
	}
	s.emitter.Emit(ctx, domain.EventConditionCreated, 0, map[string]string{
		"oracle_id":    oracleID,
		"condition_id": conditionID,
		"deadline":     deadline.UTC().Format(time.RFC3339),
	})
	return conditionID, nil
}

// AssertOutcome posts a bonded assertion on an oracle condition.
func (s *OracleService) AssertOutcome(ctx context.Context, oracleID, conditionID string, outcome bool, asserter string, bond *big.Int) error {
	asserter, err := domain.NormalizeAddress(asserter)
	if err != nil {
		return fmt.Errorf("oracle_service: %w: %v", domain.ErrInvalidParameters, err)
	}
	adapter, err := s.bridge.Adapter(oracleID)
	if err != nil {
		return err
	}
	if err := adapter.AssertOutcome(ctx, conditionID, outcome, asserter, bond); err != nil {
		return err
	}
	s.emitter.Emit(ctx, domain.EventOutcomeAsserted, 0, map[string]string{
		"oracle_id":    oracleID,
		"condition_id": conditionID,
		"outcome":      fmt.Sprintf("%t", outcome),
		"asserter":     asserter,
	})
	return nil
}

// SettleCondition finalizes an asserted condition whose liveness window has
// elapsed.
func (s *OracleService) SettleCondition(ctx context.Context, oracleID, conditionID string) (domain.Condition, error) {
	adapter, err := s.bridge.Adapter(oracleID)
	if err != nil {
		return domain.Condition{}, err
	}
	cond, err := adapter.SettleCondition(ctx, conditionID)
	if err != nil {
		return domain.Condition{}, err
	}
	outcome := "false"
	if cond.Outcome != nil && *cond.Outcome {
		outcome = "true"
	}
	s.emitter.Emit(ctx, domain.EventConditionSettled, 0, map[string]string{
		"oracle_id":    oracleID,
		"condition_id": conditionID,
		"outcome":      outcome,
	})
	return cond, nil
}

// CanAssert reports whether an assertion window is open on the condition.
func (s *OracleService) CanAssert(ctx context.Context, oracleID, conditionID string) (bool, error) {
	adapter, err := s.bridge.Adapter(oracleID)
	if err != nil {
		return false, err
	}
	return adapter.CanAssert(ctx, conditionID)
}

// CanSettle reports whether the condition's liveness window has elapsed.
func (s *OracleService) CanSettle(ctx context.Context, oracleID, conditionID string) (bool, error) {
	adapter, err := s.bridge.Adapter(oracleID)
	if err != nil {
		return false, err
	}
	return adapter.CanSettle(ctx, conditionID)
}

// GetCondition returns the condition record from the named oracle.
func (s *OracleService) GetCondition(ctx context.Context, oracleID, conditionID string) (domain.Condition, error) {
	adapter, err := s.bridge.Adapter(oracleID)
	if err != nil {
		return domain.Condition{}, err
	}
	return adapter.GetCondition(ctx, conditionID)
}

// OracleIDs lists the registered oracle adapters.
func (s *OracleService) OracleIDs() []string {
	return s.bridge.IDs()
}

func (s *OracleService) getMarket(ctx context.Context, marketID int64) (domain.FriendMarket, error) {
	if marketID <= 0 {
		return domain.FriendMarket{}, domain.ErrInvalidMarketID
	}
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.FriendMarket{}, domain.ErrInvalidMarketID
		}
		return domain.FriendMarket{}, fmt.Errorf("oracle_service: get market %d: %w", marketID, err)
	}
	return m, nil
}

func (s *OracleService) invalidate(ctx context.Context, marketID int64) {
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
