package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/outcomex/settle/internal/domain"
)

// BookStore implements domain.BookStore using PostgreSQL. Each book is one
// row with both sides stored as JSONB arrays in priority order, so a Save
// atomically replaces the whole book exactly as matching left it.
type BookStore struct {
	db DB
}

// NewBookStore creates a new BookStore backed by the given querier.
func NewBookStore(db DB) *BookStore {
	return &BookStore{db: db}
}

// Create inserts an empty book row for a new market.
func (s *BookStore) Create(ctx context.Context, book domain.OrderBook) error {
	bids, asks, err := marshalSides(book)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO order_books (market_id, bids, asks, seq, updated_at)
		VALUES ($1, $2, $3, $4, NOW())`
	_, err = s.db.Exec(ctx, query, book.MarketID, bids, asks, book.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create book %s: %w", book.MarketID, err)
	}
	return nil
}

// Get retrieves the book of one market.
func (s *BookStore) Get(ctx context.Context, marketID string) (domain.OrderBook, error) {
	row := s.db.QueryRow(ctx,
		`SELECT market_id, bids, asks, seq FROM order_books WHERE market_id = $1`, marketID)

	var book domain.OrderBook
	var bids, asks []byte
	if err := row.Scan(&book.MarketID, &bids, &asks, &book.Seq); err != nil {
		if err == pgx.ErrNoRows {
			return domain.OrderBook{}, domain.ErrNotFound
		}
		return domain.OrderBook{}, fmt.Errorf("postgres: get book %s: %w", marketID, err)
	}
	if err := json.Unmarshal(bids, &book.Bids); err != nil {
		return domain.OrderBook{}, fmt.Errorf("postgres: decode bids %s: %w", marketID, err)
	}
	if err := json.Unmarshal(asks, &book.Asks); err != nil {
		return domain.OrderBook{}, fmt.Errorf("postgres: decode asks %s: %w", marketID, err)
	}
	return book, nil
}

// Save replaces both sides and the sequence of an existing book.
func (s *BookStore) Save(ctx context.Context, book domain.OrderBook) error {
	bids, asks, err := marshalSides(book)
	if err != nil {
		return err
	}

	const query = `
		UPDATE order_books SET bids = $2, asks = $3, seq = $4, updated_at = NOW()
		WHERE market_id = $1`
	tag, err := s.db.Exec(ctx, query, book.MarketID, bids, asks, book.Seq)
	if err != nil {
		return fmt.Errorf("postgres: save book %s: %w", book.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// marshalSides encodes both resting lists as JSON arrays, never null.
func marshalSides(book domain.OrderBook) ([]byte, []byte, error) {
	bids := book.Bids
	if bids == nil {
		bids = []domain.Order{}
	}
	asks := book.Asks
	if asks == nil {
		asks = []domain.Order{}
	}

	bidsJSON, err := json.Marshal(bids)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: encode bids %s: %w", book.MarketID, err)
	}
	asksJSON, err := json.Marshal(asks)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: encode asks %s: %w", book.MarketID, err)
	}
	return bidsJSON, asksJSON, nil
}
