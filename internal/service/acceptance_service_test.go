package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

func TestAcceptActivatesOneVsOne(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionEither)

	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))

	m := e.mustGet(t, id)
	require.Equal(t, domain.StatusActive, m.Status)
	require.Equal(t, "200", e.balance(t, id, stakeToken).String())
	require.Contains(t, e.audit.Events(id), domain.EventMarketActivated)
}

func TestAcceptRejectsStrangers(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionEither)

	err := e.acceptance.AcceptMarket(ctx, id, addrCarol, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrNotInvited)
}

func TestAcceptRequiresExactPayment(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionEither)

	err := e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	// Overpayment is rejected too; the stake must match exactly.
	err = e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(150))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	err = e.acceptance.AcceptMarket(ctx, id, addrBob, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)
}

func TestAcceptDuplicateRejected(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	id, err := e.market.CreateSmallGroupMarketPending(ctx, domain.MarketSmallGroup, CreateMarketParams{
		Creator:             addrAlice,
		Members:             []string{addrBob, addrCarol},
		ResolutionType:      domain.ResolutionEither,
		StakeToken:          stakeToken,
		StakePerParticipant: big.NewInt(100),
		AcceptanceDeadline:  e.clock.Now().Add(time.Hour),
		Threshold:           3,
	})
	require.NoError(t, err)

	// The creator is accepted at creation; a second acceptance must fail.
	err = e.acceptance.AcceptMarket(ctx, id, addrAlice, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrAlreadyAccepted)

	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))
	err = e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrAlreadyAccepted)

	// A repeat acceptance is rejected as a duplicate even when its payment
	// is also wrong.
	err = e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrAlreadyAccepted)

	err = e.acceptance.AcceptMarket(ctx, id, addrAlice, nil)
	require.ErrorIs(t, err, domain.ErrAlreadyAccepted)
}

func TestAcceptDeadlineAndStatus(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	expired := e.createOneVsOne(t, domain.ResolutionEither)
	e.clock.Advance(2 * time.Hour)
	err := e.acceptance.AcceptMarket(ctx, expired, addrBob, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrDeadlinePassed)

	cancelled := e.createOneVsOne(t, domain.ResolutionEither)
	require.NoError(t, e.market.CancelPendingMarket(ctx, cancelled, addrAlice))
	err = e.acceptance.AcceptMarket(ctx, cancelled, addrBob, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrNotPending)

	err = e.acceptance.AcceptMarket(ctx, 99, addrBob, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrInvalidMarketID)
}

func TestThirdPartyActivationWaitsForArbitrator(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionThirdParty)

	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))
	require.Equal(t, domain.StatusPendingAcceptance, e.mustGet(t, id).Status,
		"quorum alone does not activate a third-party market")

	// The arbitrator accepts with zero stake; a nonzero payment is rejected.
	err := e.acceptance.AcceptMarket(ctx, id, addrArb, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrArb, nil))
	require.Equal(t, domain.StatusActive, e.mustGet(t, id).Status)
	require.Contains(t, e.audit.Events(id), domain.EventArbitratorAccepted)
	require.Equal(t, "200", e.balance(t, id, stakeToken).String(), "arbitrator stakes nothing")
}

func TestBookmakerOpponentStake(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	p := e.oneVsOneParams()
	p.OpponentOddsBps = 25_000
	id, err := e.market.CreateBookmakerMarket(ctx, p)
	require.NoError(t, err)

	err = e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(250)))
	require.Equal(t, domain.StatusActive, e.mustGet(t, id).Status)
	require.Equal(t, "350", e.balance(t, id, stakeToken).String())
}

func TestAcceptanceStatus(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionThirdParty)

	status, err := e.acceptance.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, status.AcceptedCount)
	require.Equal(t, 2, status.Threshold)
	require.True(t, status.ArbitratorRequired)
	require.False(t, status.ArbitratorAccepted)
	require.Equal(t, "100", status.TotalStaked.String())

	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))
	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrArb, nil))

	status, err = e.acceptance.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, status.AcceptedCount)
	require.True(t, status.ArbitratorAccepted)
	require.Equal(t, domain.StatusActive, status.Status)
	require.Equal(t, "200", status.TotalStaked.String())

	_, err = e.acceptance.Status(ctx, 99)
	require.ErrorIs(t, err, domain.ErrInvalidMarketID)
}

func TestStakeRequirement(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionThirdParty)

	stake, err := e.acceptance.StakeRequirement(ctx, id, addrBob)
	require.NoError(t, err)
	require.Equal(t, "100", stake.String())

	stake, err = e.acceptance.StakeRequirement(ctx, id, addrArb)
	require.NoError(t, err)
	require.Equal(t, "0", stake.String())

	_, err = e.acceptance.StakeRequirement(ctx, id, addrCarol)
	require.ErrorIs(t, err, domain.ErrNotInvited)
}

func TestPendingParticipants(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionEither)

	pending, err := e.acceptance.PendingParticipants(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{addrBob}, pending)

	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))
	pending, err = e.acceptance.PendingParticipants(ctx, id)
	require.NoError(t, err)
	require.Empty(t, pending)
}
