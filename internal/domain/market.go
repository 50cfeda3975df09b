package domain

import (
	"math/big"
	"time"
)

// MarketType classifies how a friend market is formed and who may accept it.
type MarketType string

const (
	MarketOneVsOne      MarketType = "one_vs_one"
	MarketSmallGroup    MarketType = "small_group"
	MarketEventTracking MarketType = "event_tracking"
	MarketPropBet       MarketType = "prop_bet"
	MarketBookmaker     MarketType = "bookmaker"
)

// ResolutionType determines who is authorized to propose the outcome of a
// market once it is active.
type ResolutionType string

const (
	ResolutionEither     ResolutionType = "either"
	ResolutionInitiator  ResolutionType = "initiator"
	ResolutionReceiver   ResolutionType = "receiver"
	ResolutionThirdParty ResolutionType = "third_party"
	ResolutionAutoPegged ResolutionType = "auto_pegged"
)

// MarketStatus is the lifecycle state of a friend market. Transitions are
// monotonic: pending_acceptance -> {active, cancelled, refunded} and
// active -> resolved. No back-edges exist.
type MarketStatus string

const (
	StatusPendingAcceptance MarketStatus = "pending_acceptance"
	StatusActive            MarketStatus = "active"
	StatusCancelled         MarketStatus = "cancelled"
	StatusRefunded          MarketStatus = "refunded"
	StatusResolved          MarketStatus = "resolved"
)

// CanTransition reports whether moving from s to next follows the market
// lifecycle graph.
func (s MarketStatus) CanTransition(next MarketStatus) bool {
	switch s {
	case StatusPendingAcceptance:
		return next == StatusActive || next == StatusCancelled || next == StatusRefunded
	case StatusActive:
		return next == StatusResolved
	default:
		return false
	}
}

// EvenOddsBps is the basis-point multiplier for a 1:1 stake.
const EvenOddsBps = 10_000

// FriendMarket is a single peer-to-peer wager record. IDs are issued
// monotonically by the market store. Records are never deleted; resolved
// markets are retained for audit.
type FriendMarket struct {
	ID                     int64
	Type                   MarketType
	Creator                string
	Members                []string // invited participants, creation order
	Arbitrator             string   // empty unless resolution is third_party
	ResolutionType         ResolutionType
	StakeToken             string
	StakePerParticipant    *big.Int
	OpponentOddsBps        int64 // bookmaker only; 10000 = even odds
	AcceptanceDeadline     time.Time
	MinAcceptanceThreshold int
	Status                 MarketStatus
	Description            string // opaque, possibly encrypted client-side

	// Oracle peg, set only for auto_pegged markets.
	OracleID    string
	ConditionID string

	// Resolution state. A proposal is pending when ProposedBy is non-empty
	// and the market is still active.
	ProposedOutcome   *bool
	ProposedBy        string
	ChallengeDeadline *time.Time
	Challenger        string
	ChallengeBond     *big.Int
	DisputeOpen       bool

	Outcome         *bool
	Winner          string
	WinningsClaimed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasProposal reports whether an outcome proposal has been recorded and not
// yet finalized.
func (m *FriendMarket) HasProposal() bool {
	return m.ProposedBy != "" && m.Status == StatusActive
}

// Opponent returns the market's counterparty: the first invited member that
// is not the creator. For one-vs-one and bookmaker markets this is the named
// opponent.
func (m *FriendMarket) Opponent() string {
	for _, member := range m.Members {
		if member != m.Creator {
			return member
		}
	}
	return ""
}

// IsInvited reports whether addr is the creator, an invited member, or the
// arbitrator.
func (m *FriendMarket) IsInvited(addr string) bool {
	if addr == m.Creator || (m.Arbitrator != "" && addr == m.Arbitrator) {
		return true
	}
	for _, member := range m.Members {
		if member == addr {
			return true
		}
	}
	return false
}

// RequiredStake returns the collateral addr must deposit to accept the
// market. The arbitrator accepts with zero stake; a bookmaker opponent
// stakes the creator's stake scaled by the odds multiplier.
func (m *FriendMarket) RequiredStake(addr string) *big.Int {
	if m.Arbitrator != "" && addr == m.Arbitrator {
		return big.NewInt(0)
	}
	if m.Type == MarketBookmaker && addr != m.Creator {
		scaled := new(big.Int).Mul(m.StakePerParticipant, big.NewInt(m.OpponentOddsBps))
		return scaled.Quo(scaled, big.NewInt(EvenOddsBps))
	}
	return new(big.Int).Set(m.StakePerParticipant)
}

// WinnerFor maps a final boolean outcome to the single payout address. A
// true outcome resolves in favor of the creator; a false outcome resolves to
// the counterparty. For group markets the counterparty is the earliest
// accepted non-creator participant.
func WinnerFor(m *FriendMarket, accepted []ParticipantAcceptance, outcome bool) string {
	if outcome {
		return m.Creator
	}
	switch m.Type {
	case MarketOneVsOne, MarketBookmaker:
		return m.Opponent()
	default:
		var winner string
		var earliest time.Time
		for _, acc := range accepted {
			if !acc.HasAccepted || acc.IsArbitrator || acc.Participant == m.Creator {
				continue
			}
			if winner == "" || acc.AcceptedAt.Before(earliest) {
				winner = acc.Participant
				earliest = acc.AcceptedAt
			}
		}
		return winner
	}
}
