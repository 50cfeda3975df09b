package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

func TestCreateOneVsOneMarket(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	id, err := e.market.CreateOneVsOneMarketPending(ctx, e.oneVsOneParams())
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	m := e.mustGet(t, id)
	require.Equal(t, domain.MarketOneVsOne, m.Type)
	require.Equal(t, domain.StatusPendingAcceptance, m.Status)
	require.Equal(t, addrAlice, m.Creator)
	require.Equal(t, []string{addrBob}, m.Members)
	require.Equal(t, 2, m.MinAcceptanceThreshold)

	// Creator's stake is locked at creation.
	require.Equal(t, "100", e.balance(t, id, stakeToken).String())

	creator, err := e.accs.Get(ctx, id, addrAlice)
	require.NoError(t, err)
	require.True(t, creator.HasAccepted)
	require.Equal(t, "100", creator.StakedAmount.String())

	opponent, err := e.accs.Get(ctx, id, addrBob)
	require.NoError(t, err)
	require.False(t, opponent.HasAccepted)

	require.Contains(t, e.audit.Events(id), domain.EventMarketCreatedPending)
}

func TestCreateMarketValidation(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateMarketParams)
	}{
		{"zero stake", func(p *CreateMarketParams) { p.StakePerParticipant = big.NewInt(0) }},
		{"nil stake", func(p *CreateMarketParams) { p.StakePerParticipant = nil }},
		{"empty token", func(p *CreateMarketParams) { p.StakeToken = "" }},
		{"deadline in past", func(p *CreateMarketParams) { p.AcceptanceDeadline = e.clock.Now().Add(-time.Minute) }},
		{"deadline now", func(p *CreateMarketParams) { p.AcceptanceDeadline = e.clock.Now() }},
		{"unknown resolution type", func(p *CreateMarketParams) { p.ResolutionType = "majority" }},
		{"arbitrator without third-party", func(p *CreateMarketParams) { p.Arbitrator = addrArb }},
		{"third-party without arbitrator", func(p *CreateMarketParams) { p.ResolutionType = domain.ResolutionThirdParty }},
		{"bad creator address", func(p *CreateMarketParams) { p.Creator = "alice" }},
		{"bad member address", func(p *CreateMarketParams) { p.Members = []string{"0x123"} }},
		{"member is creator", func(p *CreateMarketParams) { p.Members = []string{addrAlice} }},
		{"arbitrator is member", func(p *CreateMarketParams) {
			p.ResolutionType = domain.ResolutionThirdParty
			p.Arbitrator = addrBob
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := e.oneVsOneParams()
			tc.mutate(&p)
			_, err := e.market.CreateOneVsOneMarketPending(ctx, p)
			require.ErrorIs(t, err, domain.ErrInvalidParameters)
		})
	}

	_, err := e.market.CreateOneVsOneMarketPending(ctx, CreateMarketParams{
		Creator:             addrAlice,
		Members:             []string{addrBob, addrCarol},
		ResolutionType:      domain.ResolutionEither,
		StakeToken:          stakeToken,
		StakePerParticipant: big.NewInt(100),
		AcceptanceDeadline:  e.clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrInvalidParameters, "one-vs-one admits exactly one opponent")
}

func TestCreateSmallGroupMarket(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	params := func() CreateMarketParams {
		return CreateMarketParams{
			Creator:             addrAlice,
			Members:             []string{addrBob, addrCarol},
			ResolutionType:      domain.ResolutionEither,
			StakeToken:          stakeToken,
			StakePerParticipant: big.NewInt(100),
			AcceptanceDeadline:  e.clock.Now().Add(time.Hour),
			Threshold:           2,
		}
	}

	t.Run("defaults to small_group", func(t *testing.T) {
		id, err := e.market.CreateSmallGroupMarketPending(ctx, "", params())
		require.NoError(t, err)
		require.Equal(t, domain.MarketSmallGroup, e.mustGet(t, id).Type)
	})

	t.Run("event tracking flavor", func(t *testing.T) {
		id, err := e.market.CreateSmallGroupMarketPending(ctx, domain.MarketEventTracking, params())
		require.NoError(t, err)
		require.Equal(t, domain.MarketEventTracking, e.mustGet(t, id).Type)
	})

	t.Run("one-vs-one is not a group type", func(t *testing.T) {
		_, err := e.market.CreateSmallGroupMarketPending(ctx, domain.MarketOneVsOne, params())
		require.ErrorIs(t, err, domain.ErrInvalidParameters)
	})

	t.Run("no invitees", func(t *testing.T) {
		p := params()
		p.Members = nil
		_, err := e.market.CreateSmallGroupMarketPending(ctx, domain.MarketSmallGroup, p)
		require.ErrorIs(t, err, domain.ErrInvalidParameters)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		p := params()
		p.Threshold = 1
		_, err := e.market.CreateSmallGroupMarketPending(ctx, domain.MarketSmallGroup, p)
		require.ErrorIs(t, err, domain.ErrInvalidParameters)

		p = params()
		p.Threshold = 4 // creator + 2 invitees caps at 3
		_, err = e.market.CreateSmallGroupMarketPending(ctx, domain.MarketSmallGroup, p)
		require.ErrorIs(t, err, domain.ErrInvalidParameters)
	})
}

func TestCreateBookmakerMarket(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	p := e.oneVsOneParams()
	p.OpponentOddsBps = 0
	_, err := e.market.CreateBookmakerMarket(ctx, p)
	require.ErrorIs(t, err, domain.ErrInvalidParameters)

	p = e.oneVsOneParams()
	p.OpponentOddsBps = 25_000
	id, err := e.market.CreateBookmakerMarket(ctx, p)
	require.NoError(t, err)

	m := e.mustGet(t, id)
	require.Equal(t, domain.MarketBookmaker, m.Type)
	require.Equal(t, "250", m.RequiredStake(addrBob).String())
	require.Equal(t, "100", m.RequiredStake(addrAlice).String())
}

func TestCreateMarketCapabilityDenied(t *testing.T) {
	e := newTestEngine(t, denyAll{})
	_, err := e.market.CreateOneVsOneMarketPending(context.Background(), e.oneVsOneParams())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCancelPendingMarket(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()
	id := e.createOneVsOne(t, domain.ResolutionEither)

	require.ErrorIs(t, e.market.CancelPendingMarket(ctx, id, addrBob), domain.ErrUnauthorized)

	require.NoError(t, e.market.CancelPendingMarket(ctx, id, addrAlice))
	m := e.mustGet(t, id)
	require.Equal(t, domain.StatusCancelled, m.Status)
	require.Equal(t, "0", e.balance(t, id, stakeToken).String(), "creator stake refunded")

	vm, err := e.vaultStore.GetMarket(ctx, id)
	require.NoError(t, err)
	require.False(t, vm.Active)

	require.Contains(t, e.audit.Events(id), domain.EventMarketCancelled)
	require.Contains(t, e.audit.Events(id), domain.EventStakeRefunded)

	require.ErrorIs(t, e.market.CancelPendingMarket(ctx, id, addrAlice), domain.ErrNotPending)
}

func TestCancelAfterAcceptanceRejected(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	// Group market so bob's acceptance does not immediately activate.
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
	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))

	err = e.market.CancelPendingMarket(ctx, id, addrAlice)
	require.ErrorIs(t, err, domain.ErrAlreadyAccepted)
	require.Equal(t, domain.StatusPendingAcceptance, e.mustGet(t, id).Status)
}

func TestProcessExpiredDeadline(t *testing.T) {
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
	require.NoError(t, e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)))

	require.ErrorIs(t, e.market.ProcessExpiredDeadline(ctx, id), domain.ErrDeadlineNotReached)

	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.market.ProcessExpiredDeadline(ctx, id))

	m := e.mustGet(t, id)
	require.Equal(t, domain.StatusRefunded, m.Status)
	require.Equal(t, "0", e.balance(t, id, stakeToken).String(), "every staked participant refunded")

	bucket, err := e.vaultStore.GetBucket(ctx, id, stakeToken)
	require.NoError(t, err)
	require.Equal(t, "200", bucket.Withdrawn.String())

	require.ErrorIs(t, e.market.ProcessExpiredDeadline(ctx, id), domain.ErrNotPending)
}

func TestGetMarket(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	_, err := e.market.GetMarket(ctx, 0)
	require.ErrorIs(t, err, domain.ErrInvalidMarketID)
	_, err = e.market.GetMarket(ctx, 99)
	require.ErrorIs(t, err, domain.ErrInvalidMarketID)

	id := e.createOneVsOne(t, domain.ResolutionEither)
	m, err := e.market.GetMarket(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, m.ID)
}

func TestListAndCount(t *testing.T) {
	e := newTestEngine(t, allowAll{})
	ctx := context.Background()

	first := e.createOneVsOne(t, domain.ResolutionEither)
	second := e.activeOneVsOne(t, domain.ResolutionEither)

	pending, err := e.market.ListByStatus(ctx, domain.StatusPendingAcceptance, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, first, pending[0].ID)

	mine, err := e.market.ListByParticipant(ctx, addrBob, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	statuses, err := e.market.BatchStatus(ctx, []int64{first, second, 99})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingAcceptance, statuses[first])
	require.Equal(t, domain.StatusActive, statuses[second])
	require.NotContains(t, statuses, int64(99))

	count, err := e.market.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
