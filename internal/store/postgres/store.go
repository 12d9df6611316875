package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomex/settle/internal/domain"
)

// Store bundles every PostgreSQL-backed store behind the domain.Store
// transaction boundary.
type Store struct {
	db            DB
	markets       *MarketStore
	positions     *PositionStore
	clobMarkets   *ClobMarketStore
	books         *BookStore
	clobPositions *ClobPositionStore
	fills         *FillStore
	ledger        *LedgerStore
	audit         *AuditStore
}

var _ domain.Store = (*Store)(nil)

// NewStore creates the pool-backed store bundle.
func NewStore(client *Client) *Store {
	return newStore(client.Pool())
}

func newStore(db DB) *Store {
	return &Store{
		db:            db,
		markets:       NewMarketStore(db),
		positions:     NewPositionStore(db),
		clobMarkets:   NewClobMarketStore(db),
		books:         NewBookStore(db),
		clobPositions: NewClobPositionStore(db),
		fills:         NewFillStore(db),
		ledger:        NewLedgerStore(db),
		audit:         NewAuditStore(db),
	}
}

func (s *Store) Markets() domain.MarketStore             { return s.markets }
func (s *Store) Positions() domain.PositionStore         { return s.positions }
func (s *Store) ClobMarkets() domain.ClobMarketStore     { return s.clobMarkets }
func (s *Store) Books() domain.BookStore                 { return s.books }
func (s *Store) ClobPositions() domain.ClobPositionStore { return s.clobPositions }
func (s *Store) Fills() domain.FillStore                 { return s.fills }
func (s *Store) Ledger() domain.Ledger                   { return s.ledger }
func (s *Store) Audit() domain.AuditStore                { return s.audit }

// WithinTx runs fn against a transaction-scoped copy of the bundle. The
// transaction commits iff fn returns nil. Nested calls join the enclosing
// transaction instead of opening a second one.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	pool, ok := s.db.(*pgxpool.Pool)
	if !ok {
		return fn(s)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	if err := fn(newStore(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}
