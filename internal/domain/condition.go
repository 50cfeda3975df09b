package domain

import (
	"math/big"
	"time"
)

// ConditionStatus is the lifecycle state of an oracle condition.
type ConditionStatus string

const (
	ConditionOpen     ConditionStatus = "open"
	ConditionAsserted ConditionStatus = "asserted"
	ConditionResolved ConditionStatus = "resolved"
)

// Condition is a binary question tracked by the optimistic oracle. An
// asserted outcome becomes final once its liveness window elapses without a
// dispute; settlement is idempotent.
type Condition struct {
	ID          string
	OracleID    string
	Description string
	Deadline    time.Time // earliest time an outcome may be asserted
	Status      ConditionStatus

	AssertedOutcome *bool
	AssertedBy      string
	AssertedAt      *time.Time
	AssertionBond   *big.Int
	LivenessEnd     *time.Time

	Outcome    *bool
	Confidence float64 // 0..1, reported at settlement
	SettledAt  *time.Time

	CreatedAt time.Time
}
