package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/outcomex/settle/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db DB
}

// NewPositionStore creates a new PositionStore backed by the given querier.
func NewPositionStore(db DB) *PositionStore {
	return &PositionStore{db: db}
}

const positionCols = `market_id, owner, shares, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(&p.MarketID, &p.Owner, &p.Shares, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

// Get retrieves the position of one owner in one market.
func (s *PositionStore) Get(ctx context.Context, marketID, owner string) (domain.Position, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 AND owner = $2`,
		marketID, owner)
	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, owner, err)
	}
	return p, nil
}

// Upsert inserts or replaces a position.
func (s *PositionStore) Upsert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, owner, shares, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, owner) DO UPDATE SET
			shares     = EXCLUDED.shares,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.Exec(ctx, query,
		pos.MarketID, pos.Owner, pos.Shares, pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", pos.MarketID, pos.Owner, err)
	}
	return nil
}

// ListByMarket returns every position in a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	return s.list(ctx, `market_id = $1`, marketID, opts)
}

// ListByOwner returns an owner's positions across markets.
func (s *PositionStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	return s.list(ctx, `owner = $1`, owner, opts)
}

func (s *PositionStore) list(ctx context.Context, where string, key string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE ` + where + ` ORDER BY created_at DESC`
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
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}
