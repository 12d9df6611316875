package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/outcomex/settle/internal/domain"
)

// ClobPositionStore implements domain.ClobPositionStore using PostgreSQL.
type ClobPositionStore struct {
	db DB
}

// NewClobPositionStore creates a new ClobPositionStore backed by the given
// querier.
func NewClobPositionStore(db DB) *ClobPositionStore {
	return &ClobPositionStore{db: db}
}

const clobPositionCols = `market_id, owner, yes_shares, no_shares, created_at, updated_at`

func scanClobPosition(row pgx.Row) (domain.ClobPosition, error) {
	var p domain.ClobPosition
	err := row.Scan(&p.MarketID, &p.Owner, &p.YesShares, &p.NoShares, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.ClobPosition{}, err
	}
	return p, nil
}

// Get retrieves the CLOB position of one owner in one market.
func (s *ClobPositionStore) Get(ctx context.Context, marketID, owner string) (domain.ClobPosition, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+clobPositionCols+` FROM clob_positions WHERE market_id = $1 AND owner = $2`,
		marketID, owner)
	p, err := scanClobPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ClobPosition{}, domain.ErrNotFound
		}
		return domain.ClobPosition{}, fmt.Errorf("postgres: get clob position %s/%s: %w", marketID, owner, err)
	}
	return p, nil
}

// Upsert inserts or replaces a CLOB position.
func (s *ClobPositionStore) Upsert(ctx context.Context, pos domain.ClobPosition) error {
	const query = `
		INSERT INTO clob_positions (market_id, owner, yes_shares, no_shares, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id, owner) DO UPDATE SET
			yes_shares = EXCLUDED.yes_shares,
			no_shares  = EXCLUDED.no_shares,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.Exec(ctx, query,
		pos.MarketID, pos.Owner, pos.YesShares, pos.NoShares, pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert clob position %s/%s: %w", pos.MarketID, pos.Owner, err)
	}
	return nil
}

// ListByMarket returns every CLOB position in a market.
func (s *ClobPositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ClobPosition, error) {
	return s.list(ctx, `market_id = $1`, marketID, opts)
}

// ListByOwner returns an owner's CLOB positions across markets.
func (s *ClobPositionStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.ClobPosition, error) {
	return s.list(ctx, `owner = $1`, owner, opts)
}

func (s *ClobPositionStore) list(ctx context.Context, where string, key string, opts domain.ListOpts) ([]domain.ClobPosition, error) {
	query := `SELECT ` + clobPositionCols + ` FROM clob_positions WHERE ` + where + ` ORDER BY created_at DESC`
	args := []any{key}
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

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list clob positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.ClobPosition
	for rows.Next() {
		p, err := scanClobPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan clob position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list clob positions rows: %w", err)
	}
	return positions, nil
}
