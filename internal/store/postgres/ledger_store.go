package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/outcomex/settle/internal/domain"
)

// LedgerStore implements domain.Ledger using PostgreSQL. Escrow and
// Release each touch two rows, so they are only atomic when run inside a
// Store.WithinTx transaction, which is where every instruction calls them.
type LedgerStore struct {
	db DB
}

// NewLedgerStore creates a new LedgerStore backed by the given querier.
func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

var _ domain.Ledger = (*LedgerStore)(nil)

// Deposit credits an account's available balance, creating the account row
// on first use.
func (s *LedgerStore) Deposit(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidSize
	}
	if amount == 0 {
		return nil
	}

	const query = `
		INSERT INTO accounts (account, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			balance    = accounts.balance + EXCLUDED.balance,
			updated_at = NOW()`
	if _, err := s.db.Exec(ctx, query, account, amount); err != nil {
		return fmt.Errorf("postgres: deposit %d to %s: %w", amount, account, err)
	}
	return nil
}

// Withdraw debits an account's available balance.
func (s *LedgerStore) Withdraw(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidSize
	}
	if amount == 0 {
		return nil
	}

	const query = `
		UPDATE accounts SET balance = balance - $2, updated_at = NOW()
		WHERE account = $1 AND balance >= $2`
	tag, err := s.db.Exec(ctx, query, account, amount)
	if err != nil {
		return fmt.Errorf("postgres: withdraw %d from %s: %w", amount, account, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Escrow moves amount from the account into the market's escrow.
func (s *LedgerStore) Escrow(ctx context.Context, marketID, account string, amount int64) error {
	if err := s.Withdraw(ctx, account, amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}

	const query = `
		INSERT INTO escrows (market_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			balance    = escrows.balance + EXCLUDED.balance,
			updated_at = NOW()`
	if _, err := s.db.Exec(ctx, query, marketID, amount); err != nil {
		return fmt.Errorf("postgres: escrow %d for %s: %w", amount, marketID, err)
	}
	return nil
}

// Release moves amount from the market's escrow back to the account. An
// over-release means escrow accounting has diverged; it surfaces as
// ErrInsufficientFunds and aborts the instruction.
func (s *LedgerStore) Release(ctx context.Context, marketID, account string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidSize
	}
	if amount == 0 {
		return nil
	}

	const query = `
		UPDATE escrows SET balance = balance - $2, updated_at = NOW()
		WHERE market_id = $1 AND balance >= $2`
	tag, err := s.db.Exec(ctx, query, marketID, amount)
	if err != nil {
		return fmt.Errorf("postgres: release %d from %s: %w", amount, marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return s.Deposit(ctx, account, amount)
}

// Balance returns an account's available balance, 0 if never funded.
func (s *LedgerStore) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE account = $1`, account).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return balance, nil
}

// EscrowBalance returns a market's escrow balance, 0 if none.
func (s *LedgerStore) EscrowBalance(ctx context.Context, marketID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		`SELECT balance FROM escrows WHERE market_id = $1`, marketID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: escrow balance of %s: %w", marketID, err)
	}
	return balance, nil
}
