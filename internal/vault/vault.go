// Package vault implements isolated collateral custody keyed by
// (market id, token). The vault knows nothing about market semantics: it
// registers accounting buckets, binds a manager per market, and moves funds
// only on the bound manager's instruction. Ledger state is committed before
// any external token transfer is attempted.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// Vault is the escrow custody component. All balance checks are per-bucket:
// a withdrawal can never exceed what has been deposited for that
// (market, token) pair.
type Vault struct {
	store      domain.VaultStore
	transferor TokenTransferor
	clock      domain.Clock
	logger     *slog.Logger
	paused     atomic.Bool
}

// New creates a Vault. transferor may be a NoopTransferor when collateral is
// tracked purely as ledger entries.
func New(store domain.VaultStore, transferor TokenTransferor, clock domain.Clock, logger *slog.Logger) *Vault {
	return &Vault{
		store:      store,
		transferor: transferor,
		clock:      clock,
		logger:     logger.With(slog.String("component", "vault")),
	}
}

// CreateMarket registers an active accounting bucket set for the market and
// binds manager as the only identity allowed to withdraw.
func (v *Vault) CreateMarket(ctx context.Context, marketID int64, manager string) error {
	if marketID <= 0 {
		return domain.ErrInvalidMarketID
	}
	if manager == "" {
		return fmt.Errorf("vault: %w: manager must not be empty", domain.ErrInvalidParameters)
	}
	if err := v.store.RegisterMarket(ctx, marketID, manager, v.clock.Now()); err != nil {
		return fmt.Errorf("vault: register market %d: %w", marketID, err)
	}
	return nil
}

// DepositCollateral credits the market's bucket for token. The collateral
// itself is assumed to have been delivered out of band (ledger custody) or
// settled on-chain by the caller; the vault is the accounting of record.
func (v *Vault) DepositCollateral(ctx context.Context, marketID int64, token string, amount *big.Int) error {
	if v.paused.Load() {
		return domain.ErrVaultPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("vault: %w: deposit amount must be positive", domain.ErrInvalidParameters)
	}
	mkt, err := v.store.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("vault: get market %d: %w", marketID, err)
	}
	if !mkt.Active {
		return fmt.Errorf("vault: market %d: %w", marketID, domain.ErrNotFound)
	}
	if err := v.store.Credit(ctx, marketID, token, amount); err != nil {
		return fmt.Errorf("vault: credit market %d token %s: %w", marketID, token, err)
	}
	v.logger.InfoContext(ctx, "collateral deposited",
		slog.Int64("market_id", marketID),
		slog.String("token", token),
		slog.String("amount", amount.String()),
	)
	return nil
}

// WithdrawCollateral debits the bucket and then performs the external token
// transfer to recipient. Only the bound manager may call it. The ledger
// debit commits before the transfer; a failed transfer is surfaced as
// ErrTransferFailed and retried externally against the already-debited
// ledger, never by re-crediting.
func (v *Vault) WithdrawCollateral(ctx context.Context, marketID int64, token, recipient string, amount *big.Int, manager string) error {
	if v.paused.Load() {
		return domain.ErrVaultPaused
	}
	if recipient == "" {
		return fmt.Errorf("vault: %w: recipient must not be empty", domain.ErrInvalidParameters)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("vault: %w: withdraw amount must be positive", domain.ErrInvalidParameters)
	}
	mkt, err := v.store.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("vault: get market %d: %w", marketID, err)
	}
	if mkt.Manager != manager {
		return fmt.Errorf("vault: market %d manager mismatch: %w", marketID, domain.ErrUnauthorized)
	}

	// Ledger first. Debit fails when the bucket balance is insufficient.
	if err := v.store.Debit(ctx, marketID, token, amount); err != nil {
		return fmt.Errorf("vault: debit market %d token %s: %w", marketID, token, err)
	}

	if err := v.transferor.Transfer(ctx, token, recipient, amount); err != nil {
		v.logger.ErrorContext(ctx, "external transfer failed after ledger debit",
			slog.Int64("market_id", marketID),
			slog.String("token", token),
			slog.String("recipient", recipient),
			slog.String("amount", amount.String()),
			slog.String("transferor", v.transferor.Name()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("vault: transfer to %s: %w: %v", recipient, domain.ErrTransferFailed, err)
	}

	v.logger.InfoContext(ctx, "collateral withdrawn",
		slog.Int64("market_id", marketID),
		slog.String("token", token),
		slog.String("recipient", recipient),
		slog.String("amount", amount.String()),
	)
	return nil
}

// UpdateManager rebinds the market's manager.
func (v *Vault) UpdateManager(ctx context.Context, marketID int64, newManager string) error {
	if newManager == "" {
		return fmt.Errorf("vault: %w: manager must not be empty", domain.ErrInvalidParameters)
	}
	if err := v.store.UpdateManager(ctx, marketID, newManager); err != nil {
		return fmt.Errorf("vault: update manager for market %d: %w", marketID, err)
	}
	return nil
}

// CloseMarket deactivates the market's accounting; further deposits are
// rejected. Bucket rows are retained for audit.
func (v *Vault) CloseMarket(ctx context.Context, marketID int64) error {
	if err := v.store.CloseMarket(ctx, marketID); err != nil {
		return fmt.Errorf("vault: close market %d: %w", marketID, err)
	}
	return nil
}

// Balance returns the current bucket balance for (marketID, token). A
// missing bucket reads as zero.
func (v *Vault) Balance(ctx context.Context, marketID int64, token string) (*big.Int, error) {
	bucket, err := v.store.GetBucket(ctx, marketID, token)
	if err != nil {
		if err == domain.ErrNotFound {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("vault: get bucket %d/%s: %w", marketID, token, err)
	}
	return bucket.Balance, nil
}

// Buckets returns all bucket balances for the market.
func (v *Vault) Buckets(ctx context.Context, marketID int64) ([]domain.VaultBucket, error) {
	buckets, err := v.store.ListBuckets(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("vault: list buckets for market %d: %w", marketID, err)
	}
	return buckets, nil
}

// Pause stops all deposits and withdrawals until Resume.
func (v *Vault) Pause() { v.paused.Store(true) }

// Resume lifts a pause.
func (v *Vault) Resume() { v.paused.Store(false) }

// Paused reports the pause flag.
func (v *Vault) Paused() bool { return v.paused.Load() }
