package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/oracle"
	"github.com/alanyoungcy/friendbet/internal/testutil"
	"github.com/alanyoungcy/friendbet/internal/vault"
)

const (
	addrAlice    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrBob      = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrCarol    = "0xcccccccccccccccccccccccccccccccccccccccc"
	addrDave     = "0xdddddddddddddddddddddddddddddddddddddddd"
	addrArb      = "0xabababababababababababababababababababab"
	addrOperator = "0x0101010101010101010101010101010101010101"

	stakeToken = "usdc"
	bondToken  = "bond"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// allowAll grants every capability.
type allowAll struct{}

func (allowAll) MayCreate(ctx context.Context, marketType domain.MarketType, addr string) (bool, error) {
	return true, nil
}

// denyAll rejects every capability.
type denyAll struct{}

func (denyAll) MayCreate(ctx context.Context, marketType domain.MarketType, addr string) (bool, error) {
	return false, nil
}

// testEngine wires the full service layer over in-memory stores with a
// manually advanced clock. Cache, locks, bus, and notifier are nil: the
// stores' conditional updates carry the concurrency guarantees under test.
type testEngine struct {
	clock      *testutil.Clock
	markets    *testutil.MemMarketStore
	accs       *testutil.MemAcceptanceStore
	vaultStore *testutil.MemVaultStore
	conds      *testutil.MemConditionStore
	audit      *testutil.MemAuditStore
	vault      *vault.Vault
	optimistic *oracle.Optimistic

	market     *MarketService
	acceptance *AcceptanceService
	resolution *ResolutionService
	oracleSvc  *OracleService
}

func newTestEngine(t *testing.T, capability domain.CapabilityChecker) *testEngine {
	t.Helper()
	logger := discardLogger()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	e := &testEngine{
		clock:      clock,
		markets:    testutil.NewMemMarketStore(),
		accs:       testutil.NewMemAcceptanceStore(),
		vaultStore: testutil.NewMemVaultStore(),
		conds:      testutil.NewMemConditionStore(),
		audit:      testutil.NewMemAuditStore(),
	}
	e.vault = vault.New(e.vaultStore, vault.NewNoopTransferor(logger), clock, logger)
	emitter := NewEmitter(e.audit, nil, nil, clock, logger)

	e.optimistic = oracle.NewOptimistic(e.conds, clock, oracle.OptimisticConfig{
		LivenessPeriod: 2 * time.Hour,
		MinBond:        big.NewInt(10),
	}, logger)
	bridge := oracle.NewBridge()
	if err := bridge.Register(e.optimistic); err != nil {
		t.Fatalf("register optimistic adapter: %v", err)
	}

	e.market = NewMarketService(e.markets, e.accs, nil, e.vault, capability, nil, emitter, clock, logger)
	e.acceptance = NewAcceptanceService(e.markets, e.accs, nil, e.vault, nil, emitter, clock, logger)
	e.resolution = NewResolutionService(e.markets, e.accs, nil, e.vault, nil, emitter, clock, ResolutionConfig{
		ChallengePeriod: 24 * time.Hour,
		ChallengeBond:   big.NewInt(50),
		BondToken:       bondToken,
		Operator:        addrOperator,
	}, logger)
	e.oracleSvc = NewOracleService(e.markets, e.accs, nil, bridge, nil, emitter, logger)
	return e
}

func (e *testEngine) oneVsOneParams() CreateMarketParams {
	return CreateMarketParams{
		Creator:             addrAlice,
		Members:             []string{addrBob},
		ResolutionType:      domain.ResolutionEither,
		StakeToken:          stakeToken,
		StakePerParticipant: big.NewInt(100),
		AcceptanceDeadline:  e.clock.Now().Add(time.Hour),
	}
}

// createOneVsOne creates a pending one-vs-one market between alice and bob.
func (e *testEngine) createOneVsOne(t *testing.T, resolution domain.ResolutionType) int64 {
	t.Helper()
	p := e.oneVsOneParams()
	p.ResolutionType = resolution
	if resolution == domain.ResolutionThirdParty {
		p.Arbitrator = addrArb
	}
	id, err := e.market.CreateOneVsOneMarketPending(context.Background(), p)
	if err != nil {
		t.Fatalf("create one-vs-one market: %v", err)
	}
	return id
}

// activeOneVsOne creates and fully activates a one-vs-one market.
func (e *testEngine) activeOneVsOne(t *testing.T, resolution domain.ResolutionType) int64 {
	t.Helper()
	ctx := context.Background()
	id := e.createOneVsOne(t, resolution)
	if err := e.acceptance.AcceptMarket(ctx, id, addrBob, big.NewInt(100)); err != nil {
		t.Fatalf("opponent accept: %v", err)
	}
	if resolution == domain.ResolutionThirdParty {
		if err := e.acceptance.AcceptMarket(ctx, id, addrArb, nil); err != nil {
			t.Fatalf("arbitrator accept: %v", err)
		}
	}
	return id
}

func (e *testEngine) mustGet(t *testing.T, id int64) domain.FriendMarket {
	t.Helper()
	m, err := e.markets.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get market %d: %v", id, err)
	}
	return m
}

func (e *testEngine) balance(t *testing.T, id int64, token string) *big.Int {
	t.Helper()
	bal, err := e.vault.Balance(context.Background(), id, token)
	if err != nil {
		t.Fatalf("vault balance %d/%s: %v", id, token, err)
	}
	return bal
}
