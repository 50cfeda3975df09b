package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. The audit log is
// append-only; rows are never updated or deleted by the engine.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends a new audit entry. The detail map is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, marketID int64, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const query = `INSERT INTO audit_log (market_id, event, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, marketID, event, detailJSON); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

func scanAuditEntry(row pgx.Row) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var detailJSON []byte
	if err := row.Scan(&e.ID, &e.MarketID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
		return domain.AuditEntry{}, err
	}
	if detailJSON != nil {
		if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("unmarshal audit detail: %w", err)
		}
	}
	return e, nil
}

const auditCols = `id, market_id, event, detail, created_at`

// ListByMarket returns the market's audit trail in append order.
func (s *AuditStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auditCols+` FROM audit_log WHERE market_id = $1 ORDER BY id`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries of market %d: %w", marketID, err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}

// ListBefore returns every entry created before the cutoff, oldest first.
// Used by the archiver.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auditCols+` FROM audit_log WHERE created_at < $1 ORDER BY id`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries before %s: %w", before, err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
