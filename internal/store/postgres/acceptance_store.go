package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// AcceptanceStore implements domain.AcceptanceStore using PostgreSQL.
type AcceptanceStore struct {
	pool *pgxpool.Pool
}

// NewAcceptanceStore creates a new AcceptanceStore backed by the given pool.
func NewAcceptanceStore(pool *pgxpool.Pool) *AcceptanceStore {
	return &AcceptanceStore{pool: pool}
}

const acceptanceCols = `market_id, participant, staked_amount::text,
	has_accepted, is_arbitrator, invited_at, accepted_at`

func scanAcceptance(row pgx.Row) (domain.ParticipantAcceptance, error) {
	var a domain.ParticipantAcceptance
	var staked string
	var acceptedAt *time.Time
	err := row.Scan(
		&a.MarketID, &a.Participant, &staked,
		&a.HasAccepted, &a.IsArbitrator, &a.InvitedAt, &acceptedAt,
	)
	if err != nil {
		return domain.ParticipantAcceptance{}, err
	}
	if a.StakedAmount, err = domain.ParseAmount(staked); err != nil {
		return domain.ParticipantAcceptance{}, fmt.Errorf("staked amount of %s: %w", a.Participant, err)
	}
	if acceptedAt != nil {
		a.AcceptedAt = *acceptedAt
	}
	return a, nil
}

// CreateBatch inserts the invitation records for a new market.
func (s *AcceptanceStore) CreateBatch(ctx context.Context, accs []domain.ParticipantAcceptance) error {
	if len(accs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO acceptances (
			market_id, participant, staked_amount,
			has_accepted, is_arbitrator, invited_at, accepted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, a := range accs {
		staked := "0"
		if a.StakedAmount != nil {
			staked = a.StakedAmount.String()
		}
		var acceptedAt *time.Time
		if a.HasAccepted {
			t := a.AcceptedAt
			acceptedAt = &t
		}
		batch.Queue(query,
			a.MarketID, a.Participant, staked,
			a.HasAccepted, a.IsArbitrator, a.InvitedAt, acceptedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range accs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: create acceptance batch item %d: %w", i, err)
		}
	}
	return nil
}

// Get retrieves the acceptance record for one participant.
func (s *AcceptanceStore) Get(ctx context.Context, marketID int64, participant string) (domain.ParticipantAcceptance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+acceptanceCols+` FROM acceptances
		 WHERE market_id = $1 AND participant = $2`,
		marketID, participant)
	a, err := scanAcceptance(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ParticipantAcceptance{}, domain.ErrNotFound
		}
		return domain.ParticipantAcceptance{}, fmt.Errorf("postgres: get acceptance %d/%s: %w", marketID, participant, err)
	}
	return a, nil
}

// ListByMarket returns every invitation record of the market, invitation
// order first.
func (s *AcceptanceStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.ParticipantAcceptance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+acceptanceCols+` FROM acceptances
		 WHERE market_id = $1 ORDER BY invited_at, participant`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list acceptances of market %d: %w", marketID, err)
	}
	defer rows.Close()

	var accs []domain.ParticipantAcceptance
	for rows.Next() {
		a, err := scanAcceptance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan acceptance: %w", err)
		}
		accs = append(accs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list acceptances rows: %w", err)
	}
	return accs, nil
}

// MarkAccepted flips has_accepted exactly once per participant.
func (s *AcceptanceStore) MarkAccepted(ctx context.Context, marketID int64, participant string, amount *big.Int, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE acceptances SET
			has_accepted = TRUE, staked_amount = $1, accepted_at = $2
		 WHERE market_id = $3 AND participant = $4 AND NOT has_accepted`,
		amount.String(), at, marketID, participant)
	if err != nil {
		return fmt.Errorf("postgres: mark acceptance %d/%s: %w", marketID, participant, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM acceptances WHERE market_id = $1 AND participant = $2)`,
			marketID, participant,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check acceptance %d/%s: %w", marketID, participant, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyAccepted
	}
	return nil
}

// CountAccepted returns how many participants have accepted, arbitrator
// included.
func (s *AcceptanceStore) CountAccepted(ctx context.Context, marketID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM acceptances WHERE market_id = $1 AND has_accepted`,
		marketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count acceptances of market %d: %w", marketID, err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.AcceptanceStore = (*AcceptanceStore)(nil)
