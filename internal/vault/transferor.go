package vault

import (
	"context"
	"log/slog"
	"math/big"
)

// TokenTransferor performs the external leg of a withdrawal: moving tokens
// from the vault's custody account to a recipient. Implementations must be
// safe to retry; the ledger debit has already committed when Transfer runs.
type TokenTransferor interface {
	Transfer(ctx context.Context, token, recipient string, amount *big.Int) error
	Name() string
}

// NoopTransferor records withdrawals in the ledger only. Used when
// collateral is held off-chain by the operator.
type NoopTransferor struct {
	logger *slog.Logger
}

// NewNoopTransferor creates a ledger-only transferor.
func NewNoopTransferor(logger *slog.Logger) *NoopTransferor {
	return &NoopTransferor{logger: logger.With(slog.String("component", "noop_transferor"))}
}

func (t *NoopTransferor) Transfer(ctx context.Context, token, recipient string, amount *big.Int) error {
	t.logger.DebugContext(ctx, "ledger-only transfer",
		slog.String("token", token),
		slog.String("recipient", recipient),
		slog.String("amount", amount.String()),
	)
	return nil
}

func (t *NoopTransferor) Name() string { return "noop" }
