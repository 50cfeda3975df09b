package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/oracle"
)

// peggedMarket activates an auto-pegged market and creates an open oracle
// condition with a one hour assertion deadline.
func peggedMarket(t *testing.T, e *testEngine) (int64, string) {
	t.Helper()
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionAutoPegged)
	condID, err := e.oracleSvc.CreateCondition(ctx, oracle.OptimisticID, "does it rain tomorrow", e.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.oracleSvc.PegToOracleCondition(ctx, id, addrAlice, oracle.OptimisticID, condID))
	return id, condID
}

func TestPegToOracleCondition(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	condID, err := e.oracleSvc.CreateCondition(ctx, oracle.OptimisticID, "btc above 100k", e.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	pending := e.createOneVsOne(t, domain.ResolutionAutoPegged)
	err = e.oracleSvc.PegToOracleCondition(ctx, pending, addrAlice, oracle.OptimisticID, condID)
	require.ErrorIs(t, err, domain.ErrNotPending)

	manual := e.activeOneVsOne(t, domain.ResolutionEither)
	err = e.oracleSvc.PegToOracleCondition(ctx, manual, addrAlice, oracle.OptimisticID, condID)
	require.ErrorIs(t, err, domain.ErrUnsupported)

	id := e.activeOneVsOne(t, domain.ResolutionAutoPegged)
	err = e.oracleSvc.PegToOracleCondition(ctx, id, addrBob, oracle.OptimisticID, condID)
	require.ErrorIs(t, err, domain.ErrUnauthorized, "creator only")

	err = e.oracleSvc.PegToOracleCondition(ctx, id, addrAlice, "chainlink", condID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	err = e.oracleSvc.PegToOracleCondition(ctx, id, addrAlice, oracle.OptimisticID, "no-such-condition")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, e.oracleSvc.PegToOracleCondition(ctx, id, addrAlice, oracle.OptimisticID, condID))
	m := e.mustGet(t, id)
	require.Equal(t, oracle.OptimisticID, m.OracleID)
	require.Equal(t, condID, m.ConditionID)
	require.Contains(t, e.audit.Events(id), domain.EventMarketPegged)

	err = e.oracleSvc.PegToOracleCondition(ctx, id, addrAlice, oracle.OptimisticID, condID)
	require.ErrorIs(t, err, domain.ErrAlreadyExists, "a market pegs at most once")
}

func TestResolveFromOracle(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id, condID := peggedMarket(t, e)

	err := e.oracleSvc.ResolveFromOracle(ctx, id)
	require.ErrorIs(t, err, domain.ErrConditionNotResolved, "condition still open")

	// Deadline passes, an outcome is asserted, the liveness window elapses,
	// and the condition settles.
	e.clock.Advance(time.Hour)
	require.NoError(t, e.oracleSvc.AssertOutcome(ctx, oracle.OptimisticID, condID, false, addrCarol, big.NewInt(10)))
	err = e.oracleSvc.ResolveFromOracle(ctx, id)
	require.ErrorIs(t, err, domain.ErrConditionNotResolved, "asserted is not settled")

	e.clock.Advance(2 * time.Hour)
	cond, err := e.oracleSvc.SettleCondition(ctx, oracle.OptimisticID, condID)
	require.NoError(t, err)
	require.NotNil(t, cond.Outcome)
	require.False(t, *cond.Outcome)

	require.NoError(t, e.oracleSvc.ResolveFromOracle(ctx, id))
	m := e.mustGet(t, id)
	require.Equal(t, domain.StatusResolved, m.Status)
	require.NotNil(t, m.Outcome)
	require.False(t, *m.Outcome)
	require.Equal(t, addrBob, m.Winner)
	require.Contains(t, e.audit.Events(id), domain.EventOracleMarketResolved)

	err = e.oracleSvc.ResolveFromOracle(ctx, id)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestResolveFromOracleRequiresPeg(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	id := e.activeOneVsOne(t, domain.ResolutionAutoPegged)
	err := e.oracleSvc.ResolveFromOracle(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotPending)

	err = e.oracleSvc.ResolveFromOracle(ctx, 99)
	require.ErrorIs(t, err, domain.ErrInvalidMarketID)
}

func TestOracleConditionLifecycleQueries(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	condID, err := e.oracleSvc.CreateCondition(ctx, oracle.OptimisticID, "match outcome", e.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	canAssert, err := e.oracleSvc.CanAssert(ctx, oracle.OptimisticID, condID)
	require.NoError(t, err)
	require.False(t, canAssert, "deadline not reached")

	e.clock.Advance(time.Hour)
	canAssert, err = e.oracleSvc.CanAssert(ctx, oracle.OptimisticID, condID)
	require.NoError(t, err)
	require.True(t, canAssert)

	require.NoError(t, e.oracleSvc.AssertOutcome(ctx, oracle.OptimisticID, condID, true, addrCarol, big.NewInt(10)))

	canSettle, err := e.oracleSvc.CanSettle(ctx, oracle.OptimisticID, condID)
	require.NoError(t, err)
	require.False(t, canSettle, "liveness window still open")

	e.clock.Advance(2 * time.Hour)
	canSettle, err = e.oracleSvc.CanSettle(ctx, oracle.OptimisticID, condID)
	require.NoError(t, err)
	require.True(t, canSettle)

	cond, err := e.oracleSvc.GetCondition(ctx, oracle.OptimisticID, condID)
	require.NoError(t, err)
	require.Equal(t, domain.ConditionAsserted, cond.Status)

	require.Equal(t, []string{oracle.OptimisticID}, e.oracleSvc.OracleIDs())

	_, err = e.oracleSvc.CreateCondition(ctx, "chainlink", "anything", e.clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrNotFound)
}
