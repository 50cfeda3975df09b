package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// OptimisticID is the oracle id the in-house optimistic adapter registers
// under.
const OptimisticID = "optimistic"

// OptimisticConfig tunes the optimistic-assertion oracle.
type OptimisticConfig struct {
	// LivenessPeriod is how long an asserted outcome remains disputable
	// before it can settle.
	LivenessPeriod time.Duration
	// MinBond is the smallest acceptable assertion bond.
	MinBond *big.Int
}

// Optimistic is an optimistic-assertion oracle: anyone may post a bonded
// outcome after the condition deadline, and the assertion becomes final once
// the liveness window elapses. Settlement for an undisputed assertion
// reports full confidence.
type Optimistic struct {
	store  domain.ConditionStore
	clock  domain.Clock
	cfg    OptimisticConfig
	logger *slog.Logger
}

// NewOptimistic creates the optimistic adapter.
func NewOptimistic(store domain.ConditionStore, clock domain.Clock, cfg OptimisticConfig, logger *slog.Logger) *Optimistic {
	if cfg.LivenessPeriod <= 0 {
		cfg.LivenessPeriod = 2 * time.Hour
	}
	if cfg.MinBond == nil {
		cfg.MinBond = big.NewInt(0)
	}
	return &Optimistic{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "oracle_optimistic")),
	}
}

func (o *Optimistic) ID() string { return OptimisticID }

// CreateCondition registers a new open condition.
func (o *Optimistic) CreateCondition(ctx context.Context, description string, deadline time.Time) (string, error) {
	now := o.clock.Now()
	if !deadline.After(now) {
		return "", domain.ErrDeadlineInPast
	}
	cond := domain.Condition{
		ID:          uuid.New().String(),
		OracleID:    OptimisticID,
		Description: description,
		Deadline:    deadline,
		Status:      domain.ConditionOpen,
		CreatedAt:   now,
	}
	if err := o.store.Create(ctx, cond); err != nil {
		return "", fmt.Errorf("oracle: create condition: %w", err)
	}
	o.logger.InfoContext(ctx, "condition created",
		slog.String("condition_id", cond.ID),
		slog.Time("deadline", deadline),
	)
	return cond.ID, nil
}

// AssertOutcome posts a bonded assertion after the condition deadline and
// starts the liveness window.
func (o *Optimistic) AssertOutcome(ctx context.Context, conditionID string, outcome bool, asserter string, bond *big.Int) error {
	cond, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return fmt.Errorf("oracle: get condition %s: %w", conditionID, err)
	}
	now := o.clock.Now()
	switch cond.Status {
	case domain.ConditionResolved:
		return domain.ErrAlreadyResolved
	case domain.ConditionAsserted:
		return fmt.Errorf("oracle: condition %s: %w", conditionID, domain.ErrAlreadyExists)
	}
	if now.Before(cond.Deadline) {
		return domain.ErrDeadlineNotReached
	}
	if bond == nil || bond.Cmp(o.cfg.MinBond) < 0 {
		return fmt.Errorf("oracle: assertion bond below minimum %s: %w",
			o.cfg.MinBond.String(), domain.ErrInsufficientPayment)
	}

	livenessEnd := now.Add(o.cfg.LivenessPeriod)
	if err := o.store.SetAsserted(ctx, conditionID, outcome, asserter, bond, now, livenessEnd); err != nil {
		return fmt.Errorf("oracle: assert condition %s: %w", conditionID, err)
	}
	o.logger.InfoContext(ctx, "outcome asserted",
		slog.String("condition_id", conditionID),
		slog.Bool("outcome", outcome),
		slog.String("asserter", asserter),
		slog.Time("liveness_end", livenessEnd),
	)
	return nil
}

// SettleCondition finalizes an assertion whose liveness window has elapsed.
// A second settlement fails ErrAlreadyResolved.
func (o *Optimistic) SettleCondition(ctx context.Context, conditionID string) (domain.Condition, error) {
	cond, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("oracle: get condition %s: %w", conditionID, err)
	}
	if cond.Status == domain.ConditionResolved {
		return domain.Condition{}, domain.ErrAlreadyResolved
	}
	if cond.Status != domain.ConditionAsserted || cond.AssertedOutcome == nil {
		return domain.Condition{}, domain.ErrConditionNotResolved
	}
	now := o.clock.Now()
	if cond.LivenessEnd == nil || now.Before(*cond.LivenessEnd) {
		return domain.Condition{}, domain.ErrDeadlineNotReached
	}

	// Undisputed optimistic assertions settle with full confidence.
	const confidence = 1.0
	if err := o.store.SetSettled(ctx, conditionID, *cond.AssertedOutcome, confidence, now); err != nil {
		return domain.Condition{}, fmt.Errorf("oracle: settle condition %s: %w", conditionID, err)
	}

	settled, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("oracle: reload condition %s: %w", conditionID, err)
	}
	o.logger.InfoContext(ctx, "condition settled",
		slog.String("condition_id", conditionID),
		slog.Bool("outcome", *cond.AssertedOutcome),
	)
	return settled, nil
}

// CanAssert reports whether an assertion would currently be accepted.
func (o *Optimistic) CanAssert(ctx context.Context, conditionID string) (bool, error) {
	cond, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return false, fmt.Errorf("oracle: get condition %s: %w", conditionID, err)
	}
	return cond.Status == domain.ConditionOpen && !o.clock.Now().Before(cond.Deadline), nil
}

// CanSettle reports whether settlement would currently succeed.
func (o *Optimistic) CanSettle(ctx context.Context, conditionID string) (bool, error) {
	cond, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return false, fmt.Errorf("oracle: get condition %s: %w", conditionID, err)
	}
	return cond.Status == domain.ConditionAsserted &&
		cond.LivenessEnd != nil &&
		!o.clock.Now().Before(*cond.LivenessEnd), nil
}

// IsConditionResolved reports whether the condition has settled.
func (o *Optimistic) IsConditionResolved(ctx context.Context, conditionID string) (bool, error) {
	cond, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return false, fmt.Errorf("oracle: get condition %s: %w", conditionID, err)
	}
	return cond.Status == domain.ConditionResolved, nil
}

// ConditionOutcome returns the settled outcome and confidence.
func (o *Optimistic) ConditionOutcome(ctx context.Context, conditionID string) (bool, float64, error) {
	cond, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return false, 0, fmt.Errorf("oracle: get condition %s: %w", conditionID, err)
	}
	if cond.Status != domain.ConditionResolved || cond.Outcome == nil {
		return false, 0, domain.ErrConditionNotResolved
	}
	return *cond.Outcome, cond.Confidence, nil
}

// GetCondition returns the condition record.
func (o *Optimistic) GetCondition(ctx context.Context, conditionID string) (domain.Condition, error) {
	cond, err := o.store.GetByID(ctx, conditionID)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("oracle: get condition %s: %w", conditionID, err)
	}
	return cond, nil
}

// ListSettleable returns asserted conditions whose liveness window has
// elapsed. Used by the deadline sweeper.
func (o *Optimistic) ListSettleable(ctx context.Context) ([]domain.Condition, error) {
	conds, err := o.store.ListSettleable(ctx, o.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("oracle: list settleable: %w", err)
	}
	return conds, nil
}

// Compile-time interface check.
var _ Adapter = (*Optimistic)(nil)
