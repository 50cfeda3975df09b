package domain

import (
	"math/big"
	"time"
)

// ParticipantAcceptance is the per-(market, participant) acceptance record.
// One row is created per invitee at market creation; HasAccepted flips when
// the participant stakes.
type ParticipantAcceptance struct {
	MarketID     int64
	Participant  string
	StakedAmount *big.Int
	AcceptedAt   time.Time
	HasAccepted  bool
	IsArbitrator bool
	InvitedAt    time.Time
}

// AcceptanceStatus summarizes how close a pending market is to activation.
type AcceptanceStatus struct {
	MarketID      int64
	Status        MarketStatus
	AcceptedCount int
	Threshold     int
	Deadline      time.Time
	// ArbitratorRequired is true when the market cannot activate until the
	// arbitrator has accepted.
	ArbitratorRequired bool
	ArbitratorAccepted bool
	TotalStaked        *big.Int
}
