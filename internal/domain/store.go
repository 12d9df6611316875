package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists parimutuel markets.
type MarketStore interface {
	// Create fails ErrAlreadyExists on a duplicate id.
	Create(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	// GetForUpdate locks the market row for the enclosing transaction,
	// serializing instructions against the same market.
	GetForUpdate(ctx context.Context, id string) (Market, error)
	Update(ctx context.Context, market Market) error
	List(ctx context.Context, opts ListOpts) ([]Market, error)
}

// PositionStore persists parimutuel positions keyed by (market, owner).
type PositionStore interface {
	Get(ctx context.Context, marketID, owner string) (Position, error)
	Upsert(ctx context.Context, pos Position) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Position, error)
}

// ClobMarketStore persists CLOB markets.
type ClobMarketStore interface {
	Create(ctx context.Context, market ClobMarket) error
	Get(ctx context.Context, id string) (ClobMarket, error)
	GetForUpdate(ctx context.Context, id string) (ClobMarket, error)
	Update(ctx context.Context, market ClobMarket) error
	List(ctx context.Context, opts ListOpts) ([]ClobMarket, error)
}

// BookStore persists order books. Save replaces the whole book so the
// stored priority order always matches the in-memory slices.
type BookStore interface {
	Create(ctx context.Context, book OrderBook) error
	Get(ctx context.Context, marketID string) (OrderBook, error)
	Save(ctx context.Context, book OrderBook) error
}

// ClobPositionStore persists CLOB positions keyed by (market, owner).
type ClobPositionStore interface {
	Get(ctx context.Context, marketID, owner string) (ClobPosition, error)
	Upsert(ctx context.Context, pos ClobPosition) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]ClobPosition, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]ClobPosition, error)
}

// FillStore persists the fill log.
type FillStore interface {
	InsertBatch(ctx context.Context, fills []Fill) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Fill, error)
	// ListBefore returns fills created strictly before the cutoff, for
	// archival.
	ListBefore(ctx context.Context, before time.Time) ([]Fill, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}

// Store bundles every persistent collaborator behind one transactional
// boundary.
type Store interface {
	Markets() MarketStore
	Positions() PositionStore
	ClobMarkets() ClobMarketStore
	Books() BookStore
	ClobPositions() ClobPositionStore
	Fills() FillStore
	Ledger() Ledger
	Audit() AuditStore

	// WithinTx runs fn against a transaction-scoped view of the store. The
	// transaction commits iff fn returns nil; any error rolls back every
	// mutation fn performed, preserving all-or-nothing instruction
	// semantics.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
