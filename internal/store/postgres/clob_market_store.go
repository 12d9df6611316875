package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/outcomex/settle/internal/domain"
)

// ClobMarketStore implements domain.ClobMarketStore using PostgreSQL.
type ClobMarketStore struct {
	db DB
}

// NewClobMarketStore creates a new ClobMarketStore backed by the given
// querier.
func NewClobMarketStore(db DB) *ClobMarketStore {
	return &ClobMarketStore{db: db}
}

const clobMarketCols = `id, question, authority, resolution_time, resolved,
	winning_side, yes_volume, no_volume, created_at, updated_at`

// Create inserts a new CLOB market.
func (s *ClobMarketStore) Create(ctx context.Context, m domain.ClobMarket) error {
	const query = `
		INSERT INTO clob_markets (
			id, question, authority, resolution_time, resolved,
			winning_side, yes_volume, no_volume, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.Exec(ctx, query,
		m.ID, m.Question, m.Authority, m.ResolutionTime, m.Resolved,
		winningSideValue(m.WinningSide), m.YesVolume, m.NoVolume, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create clob market %s: %w", m.ID, err)
	}
	return nil
}

func scanClobMarket(row pgx.Row) (domain.ClobMarket, error) {
	var m domain.ClobMarket
	var winning *string
	err := row.Scan(
		&m.ID, &m.Question, &m.Authority, &m.ResolutionTime, &m.Resolved,
		&winning, &m.YesVolume, &m.NoVolume, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.ClobMarket{}, err
	}
	if winning != nil {
		side := domain.Outcome(*winning)
		m.WinningSide = &side
	}
	return m, nil
}

// Get retrieves a CLOB market by its primary key.
func (s *ClobMarketStore) Get(ctx context.Context, id string) (domain.ClobMarket, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+clobMarketCols+` FROM clob_markets WHERE id = $1`, id)
	m, err := scanClobMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ClobMarket{}, domain.ErrNotFound
		}
		return domain.ClobMarket{}, fmt.Errorf("postgres: get clob market %s: %w", id, err)
	}
	return m, nil
}

// GetForUpdate retrieves a CLOB market and locks its row for the enclosing
// transaction.
func (s *ClobMarketStore) GetForUpdate(ctx context.Context, id string) (domain.ClobMarket, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+clobMarketCols+` FROM clob_markets WHERE id = $1 FOR UPDATE`, id)
	m, err := scanClobMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ClobMarket{}, domain.ErrNotFound
		}
		return domain.ClobMarket{}, fmt.Errorf("postgres: lock clob market %s: %w", id, err)
	}
	return m, nil
}

// Update writes back the mutable columns of a CLOB market.
func (s *ClobMarketStore) Update(ctx context.Context, m domain.ClobMarket) error {
	const query = `
		UPDATE clob_markets SET
			resolved     = $2,
			winning_side = $3,
			yes_volume   = $4,
			no_volume    = $5,
			updated_at   = $6
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		m.ID, m.Resolved, winningSideValue(m.WinningSide), m.YesVolume, m.NoVolume, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update clob market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns CLOB markets newest first with pagination.
func (s *ClobMarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ClobMarket, error) {
	query := `SELECT ` + clobMarketCols + ` FROM clob_markets ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list clob markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.ClobMarket
	for rows.Next() {
		m, err := scanClobMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan clob market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list clob markets rows: %w", err)
	}
	return markets, nil
}

// winningSideValue converts the nullable winning side for storage.
func winningSideValue(side *domain.Outcome) *string {
	if side == nil {
		return nil
	}
	s := string(*side)
	return &s
}
