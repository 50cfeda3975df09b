package domain

import "errors"

// Market lifecycle and protocol errors. Every validation failure surfaces as
// one of these sentinels so callers can present an actionable message rather
// than a generic failure.
var (
	ErrInvalidMarketID      = errors.New("invalid market id")
	ErrInvalidParameters    = errors.New("invalid market parameters")
	ErrNotPending           = errors.New("not in the required pending state")
	ErrDeadlinePassed       = errors.New("acceptance deadline has passed")
	ErrDeadlineInPast       = errors.New("deadline is in the past")
	ErrDeadlineNotReached   = errors.New("deadline has not been reached")
	ErrAlreadyAccepted      = errors.New("already accepted")
	ErrNotInvited           = errors.New("not invited to this market")
	ErrInsufficientPayment  = errors.New("payment does not match required stake")
	ErrTransferFailed       = errors.New("token transfer failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrAlreadyResolved      = errors.New("already resolved")
	ErrProposalPending      = errors.New("outcome proposal already pending")
	ErrDisputePending       = errors.New("dispute pending")
	ErrChallengeWindowOpen  = errors.New("challenge window still open")
	ErrAlreadyClaimed       = errors.New("winnings already claimed")
	ErrNotWinner            = errors.New("caller is not the winner")
	ErrNotResolved          = errors.New("market is not resolved")
	ErrConditionNotResolved = errors.New("oracle condition is not resolved")
)

// Infrastructure errors shared across stores, caches, and adapters.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrVaultPaused   = errors.New("vault is paused")
	ErrLockHeld      = errors.New("lock already held")
	ErrUnsupported   = errors.New("operation not supported")
)
