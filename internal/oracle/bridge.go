// Package oracle provides the pluggable external-oracle layer. A Bridge
// maps oracle ids to Adapters; auto-pegged markets delegate their resolution
// to an adapter's condition lifecycle instead of the local propose/challenge
// flow.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// Adapter is the contract every external oracle integration implements. Not
// every adapter supports the full condition lifecycle: adapters that mirror
// conditions owned elsewhere (e.g. an external prediction market) return
// domain.ErrUnsupported from the mutation methods.
type Adapter interface {
	// ID returns the oracle id this adapter registers under.
	ID() string

	// CreateCondition registers a binary condition that may be asserted
	// after deadline. Fails domain.ErrDeadlineInPast when deadline <= now.
	CreateCondition(ctx context.Context, description string, deadline time.Time) (string, error)

	// AssertOutcome posts a bonded outcome assertion, starting the liveness
	// window. Fails domain.ErrDeadlineNotReached before the deadline.
	AssertOutcome(ctx context.Context, conditionID string, outcome bool, asserter string, bond *big.Int) error

	// SettleCondition finalizes an asserted condition once its liveness
	// window has elapsed. Idempotent: a second settlement fails
	// domain.ErrAlreadyResolved.
	SettleCondition(ctx context.Context, conditionID string) (domain.Condition, error)

	// Pure queries for off-process schedulers.
	CanAssert(ctx context.Context, conditionID string) (bool, error)
	CanSettle(ctx context.Context, conditionID string) (bool, error)
	IsConditionResolved(ctx context.Context, conditionID string) (bool, error)

	// ConditionOutcome returns the settled outcome and the oracle's
	// confidence in it. Fails domain.ErrConditionNotResolved before
	// settlement.
	ConditionOutcome(ctx context.Context, conditionID string) (bool, float64, error)

	// GetCondition returns the condition record.
	GetCondition(ctx context.Context, conditionID string) (domain.Condition, error)
}

// Bridge is the oracle registry. Registration happens at wire time; lookups
// are read-mostly.
type Bridge struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewBridge creates an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own id. Registering the same id twice
// fails.
func (b *Bridge) Register(a Adapter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := a.ID()
	if id == "" {
		return fmt.Errorf("oracle: adapter id must not be empty")
	}
	if _, ok := b.adapters[id]; ok {
		return fmt.Errorf("oracle: adapter %q: %w", id, domain.ErrAlreadyExists)
	}
	b.adapters[id] = a
	return nil
}

// Adapter returns the adapter registered under id.
func (b *Bridge) Adapter(id string) (Adapter, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.adapters[id]
	if !ok {
		return nil, fmt.Errorf("oracle: adapter %q: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// IDs returns the registered oracle ids, sorted.
func (b *Bridge) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.adapters))
	for id := range b.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
