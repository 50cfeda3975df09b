package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// memVaultStore is an in-memory VaultStore with the same conditional
// semantics as the Postgres implementation.
type memVaultStore struct {
	mu      sync.Mutex
	markets map[int64]domain.VaultMarket
	buckets map[string]*domain.VaultBucket
}

func newMemVaultStore() *memVaultStore {
	return &memVaultStore{
		markets: make(map[int64]domain.VaultMarket),
		buckets: make(map[string]*domain.VaultBucket),
	}
}

func bucketKey(marketID int64, token string) string {
	return fmt.Sprintf("%d/%s", marketID, token)
}

func (s *memVaultStore) RegisterMarket(ctx context.Context, marketID int64, manager string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[marketID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[marketID] = domain.VaultMarket{MarketID: marketID, Manager: manager, Active: true, CreatedAt: at}
	return nil
}

func (s *memVaultStore) GetMarket(ctx context.Context, marketID int64) (domain.VaultMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.VaultMarket{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memVaultStore) UpdateManager(ctx context.Context, marketID int64, newManager string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Manager = newManager
	s.markets[marketID] = m
	return nil
}

func (s *memVaultStore) CloseMarket(ctx context.Context, marketID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Active = false
	s.markets[marketID] = m
	return nil
}

func (s *memVaultStore) Credit(ctx context.Context, marketID int64, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucketKey(marketID, token)
	b, ok := s.buckets[key]
	if !ok {
		b = &domain.VaultBucket{
			MarketID:  marketID,
			Token:     token,
			Balance:   big.NewInt(0),
			Deposited: big.NewInt(0),
			Withdrawn: big.NewInt(0),
		}
		s.buckets[key] = b
	}
	b.Balance.Add(b.Balance, amount)
	b.Deposited.Add(b.Deposited, amount)
	return nil
}

func (s *memVaultStore) Debit(ctx context.Context, marketID int64, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketKey(marketID, token)]
	if !ok || b.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("bucket %d/%s: %w", marketID, token, domain.ErrInsufficientPayment)
	}
	b.Balance.Sub(b.Balance, amount)
	b.Withdrawn.Add(b.Withdrawn, amount)
	return nil
}

func (s *memVaultStore) GetBucket(ctx context.Context, marketID int64, token string) (domain.VaultBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketKey(marketID, token)]
	if !ok {
		return domain.VaultBucket{}, domain.ErrNotFound
	}
	return *b, nil
}

func (s *memVaultStore) ListBuckets(ctx context.Context, marketID int64) ([]domain.VaultBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.VaultBucket
	for _, b := range s.buckets {
		if b.MarketID == marketID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

var _ domain.VaultStore = (*memVaultStore)(nil)

// failingTransferor always fails the external transfer.
type failingTransferor struct{}

func (failingTransferor) Transfer(ctx context.Context, token, recipient string, amount *big.Int) error {
	return errors.New("rpc unavailable")
}
func (failingTransferor) Name() string { return "failing" }

func newTestVault(t *testing.T) (*Vault, *memVaultStore) {
	t.Helper()
	store := newMemVaultStore()
	v := New(store, NewNoopTransferor(slog.Default()), domain.RealClock{}, slog.Default())
	return v, store
}

func TestVaultDepositAndBalance(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	require.NoError(t, v.CreateMarket(ctx, 1, "engine"))
	require.NoError(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(500)))
	require.NoError(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(250)))

	bal, err := v.Balance(ctx, 1, "usdc")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(750), bal)

	// A bucket that has never been touched reads as zero.
	bal, err = v.Balance(ctx, 1, "weth")
	require.NoError(t, err)
	require.Equal(t, 0, bal.Sign())
}

func TestVaultDepositValidation(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	require.NoError(t, v.CreateMarket(ctx, 1, "engine"))

	err := v.DepositCollateral(ctx, 1, "usdc", big.NewInt(0))
	require.ErrorIs(t, err, domain.ErrInvalidParameters)

	err = v.DepositCollateral(ctx, 1, "usdc", nil)
	require.ErrorIs(t, err, domain.ErrInvalidParameters)

	// Unknown market.
	err = v.DepositCollateral(ctx, 99, "usdc", big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Closed market rejects further deposits.
	require.NoError(t, v.CloseMarket(ctx, 1))
	err = v.DepositCollateral(ctx, 1, "usdc", big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVaultWithdrawManagerOnly(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	require.NoError(t, v.CreateMarket(ctx, 1, "engine"))
	require.NoError(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(100)))

	err := v.WithdrawCollateral(ctx, 1, "usdc", "0xabc", big.NewInt(50), "intruder")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, v.WithdrawCollateral(ctx, 1, "usdc", "0xabc", big.NewInt(50), "engine"))
	bal, err := v.Balance(ctx, 1, "usdc")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), bal)
}

func TestVaultWithdrawCannotExceedBucket(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	require.NoError(t, v.CreateMarket(ctx, 1, "engine"))
	require.NoError(t, v.CreateMarket(ctx, 2, "engine"))
	require.NoError(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(100)))
	require.NoError(t, v.DepositCollateral(ctx, 2, "usdc", big.NewInt(1000)))

	// Market 1 cannot dip into market 2's collateral.
	err := v.WithdrawCollateral(ctx, 1, "usdc", "0xabc", big.NewInt(101), "engine")
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	bal, err := v.Balance(ctx, 2, "usdc")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), bal)
}

func TestVaultWithdrawTransferFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemVaultStore()
	v := New(store, failingTransferor{}, domain.RealClock{}, slog.Default())
	require.NoError(t, v.CreateMarket(ctx, 1, "engine"))
	require.NoError(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(100)))

	err := v.WithdrawCollateral(ctx, 1, "usdc", "0xabc", big.NewInt(100), "engine")
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// The ledger debit committed before the transfer attempt.
	bal, err := v.Balance(ctx, 1, "usdc")
	require.NoError(t, err)
	require.Equal(t, 0, bal.Sign())
}

func TestVaultPause(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	require.NoError(t, v.CreateMarket(ctx, 1, "engine"))
	require.NoError(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(100)))

	v.Pause()
	require.True(t, v.Paused())
	require.ErrorIs(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(1)), domain.ErrVaultPaused)
	require.ErrorIs(t,
		v.WithdrawCollateral(ctx, 1, "usdc", "0xabc", big.NewInt(1), "engine"),
		domain.ErrVaultPaused)

	v.Resume()
	require.False(t, v.Paused())
	require.NoError(t, v.DepositCollateral(ctx, 1, "usdc", big.NewInt(1)))
}

func TestVaultRegisterTwice(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	require.NoError(t, v.CreateMarket(ctx, 1, "engine"))
	require.ErrorIs(t, v.CreateMarket(ctx, 1, "engine"), domain.ErrAlreadyExists)
}
