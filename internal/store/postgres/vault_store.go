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

// VaultStore implements domain.VaultStore using PostgreSQL. Debit is a
// conditional UPDATE on balance >= amount, so an overdraw can never commit
// even under concurrent withdrawals.
type VaultStore struct {
	pool *pgxpool.Pool
}

// NewVaultStore creates a new VaultStore backed by the given connection pool.
func NewVaultStore(pool *pgxpool.Pool) *VaultStore {
	return &VaultStore{pool: pool}
}

// RegisterMarket creates the vault-side registration for a market.
func (s *VaultStore) RegisterMarket(ctx context.Context, marketID int64, manager string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO vault_markets (market_id, manager, active, created_at)
		 VALUES ($1, $2, TRUE, $3)
		 ON CONFLICT (market_id) DO NOTHING`,
		marketID, manager, at)
	if err != nil {
		return fmt.Errorf("postgres: register vault market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// GetMarket retrieves the vault registration for a market.
func (s *VaultStore) GetMarket(ctx context.Context, marketID int64) (domain.VaultMarket, error) {
	var m domain.VaultMarket
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, manager, active, created_at
		 FROM vault_markets WHERE market_id = $1`,
		marketID).Scan(&m.MarketID, &m.Manager, &m.Active, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.VaultMarket{}, domain.ErrNotFound
		}
		return domain.VaultMarket{}, fmt.Errorf("postgres: get vault market %d: %w", marketID, err)
	}
	return m, nil
}

// UpdateManager reassigns the market's manager.
func (s *VaultStore) UpdateManager(ctx context.Context, marketID int64, newManager string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vault_markets SET manager = $1 WHERE market_id = $2`,
		newManager, marketID)
	if err != nil {
		return fmt.Errorf("postgres: update vault manager %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CloseMarket deactivates the vault registration. Closing an already closed
// market is a no-op.
func (s *VaultStore) CloseMarket(ctx context.Context, marketID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vault_markets SET active = FALSE WHERE market_id = $1`,
		marketID)
	if err != nil {
		return fmt.Errorf("postgres: close vault market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Credit adds amount to the market's bucket for the token, creating the
// bucket on first deposit.
func (s *VaultStore) Credit(ctx context.Context, marketID int64, token string, amount *big.Int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vault_buckets (market_id, token, balance, deposited, withdrawn, updated_at)
		 VALUES ($1, $2, $3::numeric, $3::numeric, 0, NOW())
		 ON CONFLICT (market_id, token) DO UPDATE SET
			balance    = vault_buckets.balance + EXCLUDED.balance,
			deposited  = vault_buckets.deposited + EXCLUDED.deposited,
			updated_at = NOW()`,
		marketID, token, amount.String())
	if err != nil {
		return fmt.Errorf("postgres: credit vault %d/%s: %w", marketID, token, err)
	}
	return nil
}

// Debit removes amount from the market's bucket, failing when the balance is
// insufficient.
func (s *VaultStore) Debit(ctx context.Context, marketID int64, token string, amount *big.Int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vault_buckets SET
			balance    = balance - $1::numeric,
			withdrawn  = withdrawn + $1::numeric,
			updated_at = NOW()
		 WHERE market_id = $2 AND token = $3 AND balance >= $1::numeric`,
		amount.String(), marketID, token)
	if err != nil {
		return fmt.Errorf("postgres: debit vault %d/%s: %w", marketID, token, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: debit vault %d/%s: %w", marketID, token, domain.ErrInsufficientPayment)
	}
	return nil
}

const bucketCols = `market_id, token, balance::text, deposited::text, withdrawn::text, updated_at`

func scanBucket(row pgx.Row) (domain.VaultBucket, error) {
	var b domain.VaultBucket
	var balance, deposited, withdrawn string
	err := row.Scan(&b.MarketID, &b.Token, &balance, &deposited, &withdrawn, &b.UpdatedAt)
	if err != nil {
		return domain.VaultBucket{}, err
	}
	if b.Balance, err = domain.ParseAmount(balance); err != nil {
		return domain.VaultBucket{}, err
	}
	if b.Deposited, err = domain.ParseAmount(deposited); err != nil {
		return domain.VaultBucket{}, err
	}
	if b.Withdrawn, err = domain.ParseAmount(withdrawn); err != nil {
		return domain.VaultBucket{}, err
	}
	return b, nil
}

// GetBucket retrieves a single token bucket.
func (s *VaultStore) GetBucket(ctx context.Context, marketID int64, token string) (domain.VaultBucket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bucketCols+` FROM vault_buckets
		 WHERE market_id = $1 AND token = $2`,
		marketID, token)
	b, err := scanBucket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.VaultBucket{}, domain.ErrNotFound
		}
		return domain.VaultBucket{}, fmt.Errorf("postgres: get vault bucket %d/%s: %w", marketID, token, err)
	}
	return b, nil
}

// ListBuckets returns every token bucket of the market.
func (s *VaultStore) ListBuckets(ctx context.Context, marketID int64) ([]domain.VaultBucket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bucketCols+` FROM vault_buckets
		 WHERE market_id = $1 ORDER BY token`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list vault buckets %d: %w", marketID, err)
	}
	defer rows.Close()

	var buckets []domain.VaultBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan vault bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list vault buckets rows: %w", err)
	}
	return buckets, nil
}

// Compile-time interface check.
var _ domain.VaultStore = (*VaultStore)(nil)
