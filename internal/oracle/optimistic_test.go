package oracle

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/testutil"
)

const asserter = "0xcccccccccccccccccccccccccccccccccccccccc"

func newTestOptimistic(t *testing.T) (*Optimistic, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewOptimistic(testutil.NewMemConditionStore(), clock, OptimisticConfig{
		LivenessPeriod: 2 * time.Hour,
		MinBond:        big.NewInt(10),
	}, logger)
	return o, clock
}

func TestCreateConditionDeadline(t *testing.T) {
	o, clock := newTestOptimistic(t)
	ctx := context.Background()

	_, err := o.CreateCondition(ctx, "q", clock.Now().Add(-time.Minute))
	require.ErrorIs(t, err, domain.ErrDeadlineInPast)
	_, err = o.CreateCondition(ctx, "q", clock.Now())
	require.ErrorIs(t, err, domain.ErrDeadlineInPast)

	id, err := o.CreateCondition(ctx, "q", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	cond, err := o.GetCondition(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.ConditionOpen, cond.Status)
	require.Equal(t, OptimisticID, cond.OracleID)
}

func TestAssertOutcome(t *testing.T) {
	o, clock := newTestOptimistic(t)
	ctx := context.Background()

	id, err := o.CreateCondition(ctx, "q", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	err = o.AssertOutcome(ctx, id, true, asserter, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	clock.Advance(time.Hour)
	err = o.AssertOutcome(ctx, id, true, asserter, big.NewInt(5))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment, "bond below minimum")
	err = o.AssertOutcome(ctx, id, true, asserter, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	require.NoError(t, o.AssertOutcome(ctx, id, true, asserter, big.NewInt(10)))
	cond, err := o.GetCondition(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.ConditionAsserted, cond.Status)
	require.Equal(t, asserter, cond.AssertedBy)
	require.NotNil(t, cond.LivenessEnd)
	require.Equal(t, clock.Now().Add(2*time.Hour), *cond.LivenessEnd)

	err = o.AssertOutcome(ctx, id, false, asserter, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrAlreadyExists, "one assertion per condition")

	err = o.AssertOutcome(ctx, "missing", true, asserter, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSettleCondition(t *testing.T) {
	o, clock := newTestOptimistic(t)
	ctx := context.Background()

	id, err := o.CreateCondition(ctx, "q", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = o.SettleCondition(ctx, id)
	require.ErrorIs(t, err, domain.ErrConditionNotResolved, "nothing asserted yet")

	clock.Advance(time.Hour)
	require.NoError(t, o.AssertOutcome(ctx, id, true, asserter, big.NewInt(10)))

	_, err = o.SettleCondition(ctx, id)
	require.ErrorIs(t, err, domain.ErrDeadlineNotReached, "liveness window still open")

	clock.Advance(2 * time.Hour)
	cond, err := o.SettleCondition(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.ConditionResolved, cond.Status)
	require.NotNil(t, cond.Outcome)
	require.True(t, *cond.Outcome)
	require.Equal(t, 1.0, cond.Confidence, "undisputed assertion settles with full confidence")

	_, err = o.SettleCondition(ctx, id)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)

	resolved, err := o.IsConditionResolved(ctx, id)
	require.NoError(t, err)
	require.True(t, resolved)

	outcome, confidence, err := o.ConditionOutcome(ctx, id)
	require.NoError(t, err)
	require.True(t, outcome)
	require.Equal(t, 1.0, confidence)

	err = o.AssertOutcome(ctx, id, false, asserter, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestConditionOutcomeBeforeSettlement(t *testing.T) {
	o, clock := newTestOptimistic(t)
	ctx := context.Background()

	id, err := o.CreateCondition(ctx, "q", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, _, err = o.ConditionOutcome(ctx, id)
	require.ErrorIs(t, err, domain.ErrConditionNotResolved)
}

func TestListSettleable(t *testing.T) {
	o, clock := newTestOptimistic(t)
	ctx := context.Background()

	ripe, err := o.CreateCondition(ctx, "ripe", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = o.CreateCondition(ctx, "open", clock.Now().Add(48*time.Hour))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, o.AssertOutcome(ctx, ripe, true, asserter, big.NewInt(10)))

	conds, err := o.ListSettleable(ctx)
	require.NoError(t, err)
	require.Empty(t, conds)

	clock.Advance(2 * time.Hour)
	conds, err = o.ListSettleable(ctx)
	require.NoError(t, err)
	require.Len(t, conds, 1)
	require.Equal(t, ripe, conds[0].ID)
}

func TestBridgeRegistry(t *testing.T) {
	o, _ := newTestOptimistic(t)
	b := NewBridge()

	require.NoError(t, b.Register(o))
	require.ErrorIs(t, b.Register(o), domain.ErrAlreadyExists)

	a, err := b.Adapter(OptimisticID)
	require.NoError(t, err)
	require.Equal(t, OptimisticID, a.ID())

	_, err = b.Adapter("chainlink")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.Equal(t, []string{OptimisticID}, b.IDs())
}
