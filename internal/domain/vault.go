package domain

import (
	"math/big"
	"time"
)

// VaultMarket is the vault's per-market accounting registration. Manager is
// the only identity allowed to move funds out of the market's buckets.
type VaultMarket struct {
	MarketID  int64
	Manager   string
	Active    bool
	CreatedAt time.Time
}

// VaultBucket holds the isolated collateral accounting for one
// (market, token) pair. The invariant Withdrawn <= Deposited is enforced by
// per-bucket balance checks on every debit.
type VaultBucket struct {
	MarketID  int64
	Token     string
	Balance   *big.Int
	Deposited *big.Int
	Withdrawn *big.Int
	UpdatedAt time.Time
}
