package domain

import "time"

// Event types published on the signal bus for every market and oracle state
// transition. Payloads are JSON-encoded Event values.
const (
	EventMarketCreatedPending = "market.created_pending"
	EventParticipantAccepted  = "market.participant_accepted"
	EventArbitratorAccepted   = "market.arbitrator_accepted"
	EventMarketActivated      = "market.activated"
	EventMarketCancelled      = "market.cancelled_by_creator"
	EventStakeRefunded        = "market.stake_refunded"
	EventResolutionProposed   = "market.resolution_proposed"
	EventResolutionChallenged = "market.resolution_challenged"
	EventDisputeResolved      = "market.dispute_resolved"
	EventResolutionFinalized  = "market.resolution_finalized"
	EventWinningsClaimed      = "market.winnings_claimed"
	EventMarketPegged         = "market.pegged_to_oracle"
	EventOracleMarketResolved = "market.oracle_resolved"
	EventConditionCreated     = "oracle.condition_created"
	EventOutcomeAsserted      = "oracle.outcome_asserted"
	EventConditionSettled     = "oracle.condition_settled"
)

// Event is a single market or oracle lifecycle event. Attributes carry
// event-specific string key/value pairs (amounts are decimal strings).
type Event struct {
	Type       string            `json:"type"`
	MarketID   int64             `json:"market_id,omitempty"`
	At         time.Time         `json:"at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventChannel is the pub/sub channel market events are published on.
const EventChannel = "ch:market"

// EventStream is the durable stream market events are appended to.
const EventStream = "stream:market"
