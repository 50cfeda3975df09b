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

// ConditionStore implements domain.ConditionStore using PostgreSQL.
type ConditionStore struct {
	pool *pgxpool.Pool
}

// NewConditionStore creates a new ConditionStore backed by the given pool.
func NewConditionStore(pool *pgxpool.Pool) *ConditionStore {
	return &ConditionStore{pool: pool}
}

const conditionCols = `id, oracle_id, description, deadline, status,
	asserted_outcome, asserted_by, asserted_at, assertion_bond::text,
	liveness_end, outcome, confidence, settled_at, created_at`

func scanCondition(row pgx.Row) (domain.Condition, error) {
	var c domain.Condition
	var status string
	var bond *string
	err := row.Scan(
		&c.ID, &c.OracleID, &c.Description, &c.Deadline, &status,
		&c.AssertedOutcome, &c.AssertedBy, &c.AssertedAt, &bond,
		&c.LivenessEnd, &c.Outcome, &c.Confidence, &c.SettledAt, &c.CreatedAt,
	)
	if err != nil {
		return domain.Condition{}, err
	}
	c.Status = domain.ConditionStatus(status)
	if bond != nil {
		if c.AssertionBond, err = domain.ParseAmount(*bond); err != nil {
			return domain.Condition{}, fmt.Errorf("bond of condition %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// Create inserts a new open condition.
func (s *ConditionStore) Create(ctx context.Context, c domain.Condition) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO conditions (id, oracle_id, description, deadline, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.OracleID, c.Description, c.Deadline, string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create condition %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// GetByID retrieves a condition by id.
func (s *ConditionStore) GetByID(ctx context.Context, id string) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE id = $1`, id)
	c, err := scanCondition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Condition{}, domain.ErrNotFound
		}
		return domain.Condition{}, fmt.Errorf("postgres: get condition %s: %w", id, err)
	}
	return c, nil
}

// SetAsserted records a bonded assertion on an open condition.
func (s *ConditionStore) SetAsserted(ctx context.Context, id string, outcome bool, by string, bond *big.Int, at, livenessEnd time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conditions SET
			status = $1, asserted_outcome = $2, asserted_by = $3,
			asserted_at = $4, assertion_bond = $5, liveness_end = $6
		 WHERE id = $7 AND status = $8`,
		string(domain.ConditionAsserted), outcome, by,
		at, bond.String(), livenessEnd,
		id, string(domain.ConditionOpen))
	if err != nil {
		return fmt.Errorf("postgres: assert condition %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrAlreadyExists)
	}
	return nil
}

// SetSettled moves an asserted condition to resolved.
func (s *ConditionStore) SetSettled(ctx context.Context, id string, outcome bool, confidence float64, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conditions SET
			status = $1, outcome = $2, confidence = $3, settled_at = $4
		 WHERE id = $5 AND status = $6`,
		string(domain.ConditionResolved), outcome, confidence, at,
		id, string(domain.ConditionAsserted))
	if err != nil {
		return fmt.Errorf("postgres: settle condition %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missError(ctx, id, domain.ErrAlreadyResolved)
	}
	return nil
}

// ListSettleable returns asserted conditions whose liveness window has
// elapsed.
func (s *ConditionStore) ListSettleable(ctx context.Context, now time.Time) ([]domain.Condition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conditionCols+` FROM conditions
		 WHERE status = $1 AND liveness_end IS NOT NULL AND liveness_end <= $2
		 ORDER BY liveness_end`,
		string(domain.ConditionAsserted), now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settleable conditions: %w", err)
	}
	defer rows.Close()

	var conds []domain.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan condition: %w", err)
		}
		conds = append(conds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settleable rows: %w", err)
	}
	return conds, nil
}

func (s *ConditionStore) missError(ctx context.Context, id string, precondition error) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM conditions WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check condition %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return precondition
}

// Compile-time interface check.
var _ domain.ConditionStore = (*ConditionStore)(nil)
