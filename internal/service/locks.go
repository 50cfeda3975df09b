package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// marketLockTTL bounds how long a crashed process can hold a market lock.
const marketLockTTL = 15 * time.Second

// withMarketLock serializes fn against all other transitions on the same
// market. With a nil lock manager (single-process deployments, tests) fn
// runs unguarded; the stores' conditional updates still exclude conflicting
// transitions, the lock only avoids wasted work.
func withMarketLock(ctx context.Context, locks domain.LockManager, marketID int64, fn func() error) error {
	if locks == nil {
		return fn()
	}
	unlock, err := locks.Acquire(ctx, fmt.Sprintf("market:%d", marketID), marketLockTTL)
	if err != nil {
		return fmt.Errorf("lock market %d: %w", marketID, err)
	}
	defer unlock()
	return fn()
}
