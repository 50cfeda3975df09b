package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists friend market records. Every state-transition method
// is a conditional update: it mutates the row only when the current state
// still satisfies the transition's precondition and returns a domain
// sentinel otherwise, so two conflicting transitions can never both succeed.
type MarketStore interface {
	// Create inserts a new market in pending_acceptance and returns its
	// monotonically issued id.
	Create(ctx context.Context, m FriendMarket) (int64, error)
	GetByID(ctx context.Context, id int64) (FriendMarket, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]FriendMarket, error)
	ListByParticipant(ctx context.Context, addr string, opts ListOpts) ([]FriendMarket, error)
	GetStatuses(ctx context.Context, ids []int64) (map[int64]MarketStatus, error)
	Count(ctx context.Context) (int64, error)

	// ListExpiredPending returns pending markets whose acceptance deadline
	// is at or before now. Used by the deadline sweeper.
	ListExpiredPending(ctx context.Context, now time.Time) ([]FriendMarket, error)
	// ListFinalizable returns active markets carrying an unchallenged
	// proposal whose challenge deadline is at or before now.
	ListFinalizable(ctx context.Context, now time.Time) ([]FriendMarket, error)
	// ListPegged returns active markets linked to an oracle condition.
	ListPegged(ctx context.Context) ([]FriendMarket, error)

	// UpdateStatus moves the market from one status to another. Fails with
	// ErrNotPending when from is pending_acceptance and the row has moved
	// on, ErrNotFound when the id does not exist.
	UpdateStatus(ctx context.Context, id int64, from, to MarketStatus) error
	// SetProposal records an outcome proposal on an active market that has
	// no pending proposal. Fails ErrProposalPending when one exists.
	SetProposal(ctx context.Context, id int64, outcome bool, by string, challengeDeadline time.Time) error
	// SetChallenge records a dispute against the pending proposal. Fails
	// ErrDisputePending when a challenge is already open.
	SetChallenge(ctx context.Context, id int64, challenger string, bond *big.Int) error
	// SetDisputeOutcome overwrites the proposal with the adjudicated
	// outcome and closes the dispute. Fails ErrNotFound when no dispute is
	// open.
	SetDisputeOutcome(ctx context.Context, id int64, outcome bool) error
	// SetPeg links an active auto-pegged market to an oracle condition.
	// Fails ErrAlreadyExists when a peg is already set.
	SetPeg(ctx context.Context, id int64, oracleID, conditionID string) error
	// MarkResolved finalizes outcome and winner, moving active -> resolved.
	MarkResolved(ctx context.Context, id int64, outcome bool, winner string) error
	// MarkClaimed flips winnings_claimed exactly once. A second call fails
	// ErrAlreadyClaimed.
	MarkClaimed(ctx context.Context, id int64) error
}

// AcceptanceStore persists per-(market, participant) acceptance records.
type AcceptanceStore interface {
	CreateBatch(ctx context.Context, accs []ParticipantAcceptance) error
	Get(ctx context.Context, marketID int64, participant string) (ParticipantAcceptance, error)
	ListByMarket(ctx context.Context, marketID int64) ([]ParticipantAcceptance, error)
	// MarkAccepted flips has_accepted for the participant. Fails
	// ErrAlreadyAccepted when the record is already accepted.
	MarkAccepted(ctx context.Context, marketID int64, participant string, amount *big.Int, at time.Time) error
	CountAccepted(ctx context.Context, marketID int64) (int, error)
}

// VaultStore persists the vault's per-market registrations and per-bucket
// balances. Credit and Debit are conditional: Debit fails when the bucket
// balance is insufficient, which is what enforces the withdrawals <=
// deposits invariant.
type VaultStore interface {
	RegisterMarket(ctx context.Context, marketID int64, manager string, at time.Time) error
	GetMarket(ctx context.Context, marketID int64) (VaultMarket, error)
	UpdateManager(ctx context.Context, marketID int64, newManager string) error
	CloseMarket(ctx context.Context, marketID int64) error
	Credit(ctx context.Context, marketID int64, token string, amount *big.Int) error
	Debit(ctx context.Context, marketID int64, token string, amount *big.Int) error
	GetBucket(ctx context.Context, marketID int64, token string) (VaultBucket, error)
	ListBuckets(ctx context.Context, marketID int64) ([]VaultBucket, error)
}

// ConditionStore persists optimistic oracle conditions. SetAsserted and
// SetSettled are conditional on the current condition status, making
// settlement idempotent at the storage layer.
type ConditionStore interface {
	Create(ctx context.Context, c Condition) error
	GetByID(ctx context.Context, id string) (Condition, error)
	SetAsserted(ctx context.Context, id string, outcome bool, by string, bond *big.Int, at, livenessEnd time.Time) error
	SetSettled(ctx context.Context, id string, outcome bool, confidence float64, at time.Time) error
	ListSettleable(ctx context.Context, now time.Time) ([]Condition, error)
}

// AuditEntry is a single append-only audit log row.
type AuditEntry struct {
	ID        int64
	MarketID  int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists the append-only transition audit log.
type AuditStore interface {
	Log(ctx context.Context, marketID int64, event string, detail map[string]any) error
	ListByMarket(ctx context.Context, marketID int64) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
