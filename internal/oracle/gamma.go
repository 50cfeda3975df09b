package oracle

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/platform/polymarket"
)

// GammaID is the oracle id for the external prediction-market adapter.
const GammaID = "gamma"

// MarketResolver is the narrow client interface the adapter needs: whether
// an external market has settled and which side won. The Gamma REST client
// satisfies it.
type MarketResolver interface {
	GetMarketResolution(ctx context.Context, marketID string) (polymarket.MarketResolution, error)
}

// Gamma pegs friend markets to the settlement of an external prediction
// market. Condition ids are external market ids; the conditions are owned by
// the external venue, so the mutation half of the Adapter contract is
// unsupported — the external market's own dispute process is the liveness
// window.
type Gamma struct {
	resolver MarketResolver
	logger   *slog.Logger
}

// NewGamma creates the external prediction-market adapter.
func NewGamma(resolver MarketResolver, logger *slog.Logger) *Gamma {
	return &Gamma{
		resolver: resolver,
		logger:   logger.With(slog.String("component", "oracle_gamma")),
	}
}

func (g *Gamma) ID() string { return GammaID }

// CreateCondition is unsupported: conditions are external markets that
// already exist.
func (g *Gamma) CreateCondition(ctx context.Context, description string, deadline time.Time) (string, error) {
	return "", domain.ErrUnsupported
}

// AssertOutcome is unsupported: settlement happens on the external venue.
func (g *Gamma) AssertOutcome(ctx context.Context, conditionID string, outcome bool, asserter string, bond *big.Int) error {
	return domain.ErrUnsupported
}

// SettleCondition is unsupported; use IsConditionResolved/ConditionOutcome.
func (g *Gamma) SettleCondition(ctx context.Context, conditionID string) (domain.Condition, error) {
	return domain.Condition{}, domain.ErrUnsupported
}

func (g *Gamma) CanAssert(ctx context.Context, conditionID string) (bool, error) { return false, nil }

func (g *Gamma) CanSettle(ctx context.Context, conditionID string) (bool, error) { return false, nil }

// IsConditionResolved reports whether the external market has settled.
func (g *Gamma) IsConditionResolved(ctx context.Context, conditionID string) (bool, error) {
	res, err := g.resolver.GetMarketResolution(ctx, conditionID)
	if err != nil {
		return false, err
	}
	return res.Closed, nil
}

// ConditionOutcome maps the external market's winning side to a boolean
// outcome (Yes won => true). External settlements report full confidence.
func (g *Gamma) ConditionOutcome(ctx context.Context, conditionID string) (bool, float64, error) {
	res, err := g.resolver.GetMarketResolution(ctx, conditionID)
	if err != nil {
		return false, 0, err
	}
	if !res.Closed {
		return false, 0, domain.ErrConditionNotResolved
	}
	return res.YesWon, 1.0, nil
}

// GetCondition synthesizes a condition record from the external market
// state.
func (g *Gamma) GetCondition(ctx context.Context, conditionID string) (domain.Condition, error) {
	res, err := g.resolver.GetMarketResolution(ctx, conditionID)
	if err != nil {
		return domain.Condition{}, err
	}
	cond := domain.Condition{
		ID:       conditionID,
		OracleID: GammaID,
		Status:   domain.ConditionOpen,
	}
	if res.Closed {
		outcome := res.YesWon
		cond.Status = domain.ConditionResolved
		cond.Outcome = &outcome
		cond.Confidence = 1.0
	}
	return cond, nil
}

// Compile-time interface check.
var _ Adapter = (*Gamma)(nil)
