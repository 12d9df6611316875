package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/outcomex/settle/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL. Fills are
// append-only; archival reads them back out by cutoff.
type FillStore struct {
	db DB
}

// NewFillStore creates a new FillStore backed by the given querier.
func NewFillStore(db DB) *FillStore {
	return &FillStore{db: db}
}

const fillCols = `id, market_id, order_id, maker, taker, taker_side, price, size, created_at`

// InsertBatch appends the fills of one instruction in a single batch.
func (s *FillStore) InsertBatch(ctx context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fills (
			id, market_id, order_id, maker, taker, taker_side, price, size, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, f := range fills {
		batch.Queue(query,
			f.ID, f.MarketID, f.OrderID, f.Maker, f.Taker,
			string(f.TakerSide), f.Price, f.Size, f.CreatedAt,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return nil
}

func scanFill(row pgx.Row) (domain.Fill, error) {
	var f domain.Fill
	var side string
	err := row.Scan(
		&f.ID, &f.MarketID, &f.OrderID, &f.Maker, &f.Taker,
		&side, &f.Price, &f.Size, &f.CreatedAt,
	)
	if err != nil {
		return domain.Fill{}, err
	}
	f.TakerSide = domain.Outcome(side)
	return f, nil
}

// ListByMarket returns a market's fills newest first with pagination.
func (s *FillStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `SELECT ` + fillCols + ` FROM fills WHERE market_id = $1 ORDER BY created_at DESC`
	args := []any{marketID}
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
		return nil, fmt.Errorf("postgres: list fills %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectFills(rows)
}

// ListBefore returns fills created strictly before the cutoff, oldest
// first, for archival.
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+fillCols+` FROM fills WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before %s: %w", before, err)
	}
	defer rows.Close()
	return collectFills(rows)
}

func collectFills(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fills rows: %w", err)
	}
	return fills, nil
}
