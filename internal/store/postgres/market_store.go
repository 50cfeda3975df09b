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

// MarketStore implements domain.MarketStore using PostgreSQL. All transition
// methods are conditional UPDATEs: the WHERE clause encodes the transition's
// precondition and a zero row count is mapped back to a domain sentinel.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, market_type, creator, members, arbitrator, resolution_type,
	stake_token, stake_per_participant::text, opponent_odds_bps,
	acceptance_deadline, min_acceptance_threshold, status, description,
	oracle_id, condition_id,
	proposed_outcome, proposed_by, challenge_deadline, challenger,
	challenge_bond::text, dispute_open,
	outcome, winner, winnings_claimed,
	created_at, updated_at`

// scanMarket scans a single market row into a domain.FriendMarket.
func scanMarket(row pgx.Row) (domain.FriendMarket, error) {
	var m domain.FriendMarket
	var marketType, resolutionType, status string
	var stake string
	var bond *string
	err := row.Scan(
		&m.ID, &marketType, &m.Creator, &m.Members, &m.Arbitrator, &resolutionType,
		&m.StakeToken, &stake, &m.OpponentOddsBps,
		&m.AcceptanceDeadline, &m.MinAcceptanceThreshold, &status, &m.Description,
		&m.OracleID, &m.ConditionID,
		&m.ProposedOutcome, &m.ProposedBy, &m.ChallengeDeadline, &m.Challenger,
		&bond, &m.DisputeOpen,
		&m.Outcome, &m.Winner, &m.WinningsClaimed,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.FriendMarket{}, err
	}
	m.Type = domain.MarketType(marketType)
	m.ResolutionType = domain.ResolutionType(resolutionType)
	m.Status = domain.MarketStatus(status)
	if m.StakePerParticipant, err = domain.ParseAmount(stake); err != nil {
		return domain.FriendMarket{}, fmt.Errorf("stake of market %d: %w", m.ID, err)
	}
	if bond != nil {
		if m.ChallengeBond, err = domain.ParseAmount(*bond); err != nil {
			return domain.FriendMarket{}, fmt.Errorf("bond of market %d: %w", m.ID, err)
		}
	}
	return m, nil
}

// Create inserts a new pending market and returns its issued id.
func (s *MarketStore) Create(ctx context.Context, m domain.FriendMarket) (int64, error) {
	const query = `
		INSERT INTO markets (
			market_type, creator, members, arbitrator, resolution_type,
			stake_token, stake_per_participant, opponent_odds_bps,
			acceptance_deadline, min_acceptance_threshold, status, description
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12
		)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		string(m.Type), m.Creator, m.Members, m.Arbitrator, string(m.ResolutionType),
		m.StakeToken, m.StakePerParticipant.String(), m.OpponentOddsBps,
		m.AcceptanceDeadline, m.MinAcceptanceThreshold, string(domain.StatusPendingAcceptance), m.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create market: %w", err)
	}
	return id, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.FriendMarket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FriendMarket{}, domain.ErrNotFound
		}
		return domain.FriendMarket{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

func (s *MarketStore) queryMarkets(ctx context.Context, query string, args ...any) ([]domain.FriendMarket, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []domain.FriendMarket
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return markets, nil
}

// ListByStatus returns markets in the given status, newest first.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = $1 ORDER BY id DESC`
	args := []any{string(status)}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	markets, err := s.queryMarkets(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by status %s: %w", status, err)
	}
	return markets, nil
}

// ListByParticipant returns markets the address created, was invited to, or
// arbitrates, newest first.
func (s *MarketStore) ListByParticipant(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE creator = $1 OR arbitrator = $1 OR $1 = ANY(members)
		ORDER BY id DESC`
	args := []any{addr}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	markets, err := s.queryMarkets(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by participant %s: %w", addr, err)
	}
	return markets, nil
}

// GetStatuses returns the status of each existing id. Missing ids are absent
// from the result map.
func (s *MarketStore) GetStatuses(ctx context.Context, ids []int64) (map[int64]domain.MarketStatus, error) {
	statuses := make(map[int64]domain.MarketStatus, len(ids))
	if len(ids) == 0 {
		return statuses, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, status FROM markets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get market statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("postgres: scan market status: %w", err)
		}
		statuses[id] = domain.MarketStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get market statuses rows: %w", err)
	}
	return statuses, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// ListExpiredPending returns pending markets whose acceptance deadline is at
// or before now.
func (s *MarketStore) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.FriendMarket, error) {
	markets, err := s.queryMarkets(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE status = $1 AND acceptance_deadline <= $2
		 ORDER BY id`,
		string(domain.StatusPendingAcceptance), now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired pending markets: %w", err)
	}
	return markets, nil
}

// ListFinalizable returns active markets with an unchallenged proposal whose
// challenge window has elapsed.
func (s *MarketStore) ListFinalizable(ctx context.Context, now time.Time) ([]domain.FriendMarket, error) {
	markets, err := s.queryMarkets(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE status = $1 AND proposed_by <> '' AND NOT dispute_open
		   AND challenge_deadline IS NOT NULL AND challenge_deadline <= $2
		 ORDER BY id`,
		string(domain.StatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finalizable markets: %w", err)
	}
	return markets, nil
}

// ListPegged returns active markets linked to an oracle condition.
func (s *MarketStore) ListPegged(ctx context.Context) ([]domain.FriendMarket, error) {
	markets, err := s.queryMarkets(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE status = $1 AND oracle_id <> ''
		 ORDER BY id`,
		string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("postgres: list pegged markets: %w", err)
	}
	return markets, nil
}

// UpdateStatus moves the market from one status to another, conditional on
// the row still being in from.
func (s *MarketStore) UpdateStatus(ctx context.Context, id int64, from, to domain.MarketStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("postgres: update market %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrNotPending)
	}
	return nil
}

// SetProposal records an outcome proposal on an active market with no pending
// proposal.
func (s *MarketStore) SetProposal(ctx context.Context, id int64, outcome bool, by string, challengeDeadline time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET
			proposed_outcome = $1, proposed_by = $2, challenge_deadline = $3,
			updated_at = NOW()
		 WHERE id = $4 AND status = $5 AND proposed_by = ''`,
		outcome, by, challengeDeadline, id, string(domain.StatusActive))
	if err != nil {
		return fmt.Errorf("postgres: set proposal on market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrProposalPending)
	}
	return nil
}

// SetChallenge records a dispute against the pending proposal.
func (s *MarketStore) SetChallenge(ctx context.Context, id int64, challenger string, bond *big.Int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET
			challenger = $1, challenge_bond = $2, dispute_open = TRUE,
			updated_at = NOW()
		 WHERE id = $3 AND status = $4 AND proposed_by <> '' AND NOT dispute_open`,
		challenger, bond.String(), id, string(domain.StatusActive))
	if err != nil {
		return fmt.Errorf("postgres: set challenge on market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrDisputePending)
	}
	return nil
}

// SetDisputeOutcome overwrites the proposal with the adjudicated outcome and
// closes the dispute.
func (s *MarketStore) SetDisputeOutcome(ctx context.Context, id int64, outcome bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET
			proposed_outcome = $1, dispute_open = FALSE, updated_at = NOW()
		 WHERE id = $2 AND status = $3 AND dispute_open`,
		outcome, id, string(domain.StatusActive))
	if err != nil {
		return fmt.Errorf("postgres: set dispute outcome on market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrNotFound)
	}
	return nil
}

// SetPeg links an active auto-pegged market to an oracle condition.
func (s *MarketStore) SetPeg(ctx context.Context, id int64, oracleID, conditionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET oracle_id = $1, condition_id = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4 AND oracle_id = ''`,
		oracleID, conditionID, id, string(domain.StatusActive))
	if err != nil {
		return fmt.Errorf("postgres: peg market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrAlreadyExists)
	}
	return nil
}

// MarkResolved finalizes outcome and winner, moving the market to resolved.
func (s *MarketStore) MarkResolved(ctx context.Context, id int64, outcome bool, winner string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET
			status = $1, outcome = $2, winner = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		string(domain.StatusResolved), outcome, winner, id, string(domain.StatusActive))
	if err != nil {
		return fmt.Errorf("postgres: mark market %d resolved: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrAlreadyResolved)
	}
	return nil
}

// MarkClaimed flips winnings_claimed exactly once.
func (s *MarketStore) MarkClaimed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET winnings_claimed = TRUE, updated_at = NOW()
		 WHERE id = $1 AND status = $2 AND NOT winnings_claimed`,
		id, string(domain.StatusResolved))
	if err != nil {
		return fmt.Errorf("postgres: mark market %d claimed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrAlreadyClaimed)
	}
	return nil
}

// missError distinguishes a missing row from a failed precondition.
func (s *MarketStore) missError(ctx context.Context, id int64, precondition error) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check market %d: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return precondition
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
