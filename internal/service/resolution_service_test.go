package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

func TestResolveAuthorizationByType(t *testing.T) {
	cases := []struct {
		name       string
		resolution domain.ResolutionType
		caller     string
		wantErr    error
	}{
		{"either creator", domain.ResolutionEither, addrAlice, nil},
		{"either opponent", domain.ResolutionEither, addrBob, nil},
		{"either stranger", domain.ResolutionEither, addrCarol, domain.ErrUnauthorized},
		{"initiator creator", domain.ResolutionInitiator, addrAlice, nil},
		{"initiator opponent", domain.ResolutionInitiator, addrBob, domain.ErrUnauthorized},
		{"receiver opponent", domain.ResolutionReceiver, addrBob, nil},
		{"receiver creator", domain.ResolutionReceiver, addrAlice, domain.ErrUnauthorized},
		{"third-party arbitrator", domain.ResolutionThirdParty, addrArb, nil},
		{"third-party creator", domain.ResolutionThirdParty, addrAlice, domain.ErrUnauthorized},
		{"third-party opponent", domain.ResolutionThirdParty, addrBob, domain.ErrUnauthorized},
		{"auto-pegged creator", domain.ResolutionAutoPegged, addrAlice, domain.ErrUnauthorized},
		{"auto-pegged opponent", domain.ResolutionAutoPegged, addrBob, domain.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, allowAll{})
			id := e.activeOneVsOne(t, tc.resolution)
			err := e.resolution.ResolveFriendMarket(context.Background(), id, tc.caller, true)
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestResolveFriendMarketStates(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	pending := e.createOneVsOne(t, domain.ResolutionEither)
	err := e.resolution.ResolveFriendMarket(ctx, pending, addrAlice, true)
	require.ErrorIs(t, err, domain.ErrNotPending)

	id := e.activeOneVsOne(t, domain.ResolutionEither)
	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))

	m := e.mustGet(t, id)
	require.NotNil(t, m.ProposedOutcome)
	require.True(t, *m.ProposedOutcome)
	require.Equal(t, addrAlice, m.ProposedBy)
	require.NotNil(t, m.ChallengeDeadline)
	require.Equal(t, e.clock.Now().Add(24*time.Hour), *m.ChallengeDeadline)

	// Only one unresolved proposal per market; the repeat is reported as a
	// pending proposal, not as a settled market.
	err = e.resolution.ResolveFriendMarket(ctx, id, addrBob, false)
	require.ErrorIs(t, err, domain.ErrProposalPending)
	require.NotErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestChallengeResolution(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	err := e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrNotPending, "nothing to challenge before a proposal")

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))

	err = e.resolution.ChallengeResolution(ctx, id, addrCarol, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrNotInvited)

	err = e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(25))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment, "bond must match exactly")

	require.NoError(t, e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50)))
	m := e.mustGet(t, id)
	require.True(t, m.DisputeOpen)
	require.Equal(t, addrBob, m.Challenger)
	require.Equal(t, "50", e.balance(t, id, bondToken).String(), "bond escrowed in the vault")

	err = e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrDisputePending)
}

func TestChallengeAfterWindowRejected(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))
	e.clock.Advance(25 * time.Hour)

	err := e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50))
	require.ErrorIs(t, err, domain.ErrDeadlinePassed)
}

func TestFinalizeResolution(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	err := e.resolution.FinalizeResolution(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotPending, "no proposal to finalize")

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))
	err = e.resolution.FinalizeResolution(ctx, id)
	require.ErrorIs(t, err, domain.ErrChallengeWindowOpen)

	e.clock.Advance(24 * time.Hour)
	require.NoError(t, e.resolution.FinalizeResolution(ctx, id))

	m := e.mustGet(t, id)
	require.Equal(t, domain.StatusResolved, m.Status)
	require.NotNil(t, m.Outcome)
	require.True(t, *m.Outcome)
	require.Equal(t, addrAlice, m.Winner)
	require.Contains(t, e.audit.Events(id), domain.EventResolutionFinalized)

	err = e.resolution.FinalizeResolution(ctx, id)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestFinalizeBlockedByDispute(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))
	require.NoError(t, e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50)))
	e.clock.Advance(25 * time.Hour)

	err := e.resolution.FinalizeResolution(ctx, id)
	require.ErrorIs(t, err, domain.ErrDisputePending)
}

func TestResolveDisputeUpheld(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))
	require.NoError(t, e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50)))

	err := e.resolution.ResolveDispute(ctx, id, addrCarol, false)
	require.ErrorIs(t, err, domain.ErrUnauthorized, "only the operator adjudicates without an arbitrator")

	// Adjudicated outcome differs from the proposal: challenge upheld, bond
	// refunded, market resolves immediately with the adjudicated outcome.
	require.NoError(t, e.resolution.ResolveDispute(ctx, id, addrOperator, false))

	m := e.mustGet(t, id)
	require.Equal(t, domain.StatusResolved, m.Status)
	require.False(t, m.DisputeOpen)
	require.NotNil(t, m.Outcome)
	require.False(t, *m.Outcome)
	require.Equal(t, addrBob, m.Winner)
	require.Equal(t, "0", e.balance(t, id, bondToken).String(), "bond refunded to challenger")
	require.Contains(t, e.audit.Events(id), domain.EventDisputeResolved)
}

func TestResolveDisputeRejectedForfeitsBond(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))
	require.NoError(t, e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50)))
	require.NoError(t, e.resolution.ResolveDispute(ctx, id, addrOperator, true))

	m := e.mustGet(t, id)
	require.Equal(t, addrAlice, m.Winner)
	require.Equal(t, "50", e.balance(t, id, bondToken).String(), "forfeited bond stays in the pot")

	paid, err := e.resolution.ClaimWinnings(ctx, id, addrAlice)
	require.NoError(t, err)
	require.Equal(t, "250", paid.String(), "winner collects stakes plus the forfeited bond")
}

func TestResolveDisputeArbitrator(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionThirdParty)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrArb, true))
	require.NoError(t, e.resolution.ChallengeResolution(ctx, id, addrBob, big.NewInt(50)))

	err := e.resolution.ResolveDispute(ctx, id, addrOperator, false)
	require.ErrorIs(t, err, domain.ErrUnauthorized, "arbitrator outranks the operator")

	require.NoError(t, e.resolution.ResolveDispute(ctx, id, addrArb, false))
	require.Equal(t, addrBob, e.mustGet(t, id).Winner)
}

func TestResolveDisputeWithoutDispute(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	err := e.resolution.ResolveDispute(ctx, id, addrOperator, true)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))
	err = e.resolution.ResolveDispute(ctx, id, addrOperator, true)
	require.ErrorIs(t, err, domain.ErrNotFound, "an unchallenged proposal is not a dispute")
}

func TestClaimWinnings(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.activeOneVsOne(t, domain.ResolutionEither)

	_, err := e.resolution.ClaimWinnings(ctx, id, addrAlice)
	require.ErrorIs(t, err, domain.ErrNotResolved)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, true))
	e.clock.Advance(24 * time.Hour)
	require.NoError(t, e.resolution.FinalizeResolution(ctx, id))

	_, err = e.resolution.ClaimWinnings(ctx, id, addrBob)
	require.ErrorIs(t, err, domain.ErrNotWinner)

	paid, err := e.resolution.ClaimWinnings(ctx, id, addrAlice)
	require.NoError(t, err)
	require.Equal(t, "200", paid.String())
	require.Equal(t, "0", e.balance(t, id, stakeToken).String())

	m := e.mustGet(t, id)
	require.True(t, m.WinningsClaimed)
	vm, err := e.vaultStore.GetMarket(ctx, id)
	require.NoError(t, err)
	require.False(t, vm.Active, "vault closed after payout")
	require.Contains(t, e.audit.Events(id), domain.EventWinningsClaimed)

	_, err = e.resolution.ClaimWinnings(ctx, id, addrAlice)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestGroupMarketWinner(t *testing.T) {
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

	// Carol accepts before bob: on a false outcome the earliest accepted
	// counterparty wins.
	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrCarol, big.NewInt(100)))
	e.clock.Advance(time.Minute)
	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))
	require.Equal(t, domain.StatusActive, e.mustGet(t, id).Status)

	require.NoError(t, e.resolution.ResolveFriendMarket(ctx, id, addrAlice, false))
	e.clock.Advance(24 * time.Hour)
	require.NoError(t, e.resolution.FinalizeResolution(ctx, id))

	m := e.mustGet(t, id)
	require.Equal(t, addrCarol, m.Winner)

	paid, err := e.resolution.ClaimWinnings(ctx, id, addrCarol)
	require.NoError(t, err)
	require.Equal(t, "300", paid.String())
}
