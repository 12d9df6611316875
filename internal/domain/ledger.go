package domain

import "context"

// Ledger is the funds custody collaborator. It moves base-currency units
// between an account's available balance and a market-scoped escrow
// balance. The engine core never holds funds; it calls the ledger with an
// exact amount and direction, and any failure aborts the whole
// instruction.
type Ledger interface {
	// Deposit credits an account's available balance.
	Deposit(ctx context.Context, account string, amount int64) error

	// Withdraw debits an account's available balance. Fails
	// ErrInsufficientFunds if the balance would go negative.
	Withdraw(ctx context.Context, account string, amount int64) error

	// Escrow moves amount from the account into the market's escrow.
	Escrow(ctx context.Context, marketID, account string, amount int64) error

	// Release moves amount from the market's escrow back to the account.
	Release(ctx context.Context, marketID, account string, amount int64) error

	// Balance returns an account's available balance (0 if never funded).
	Balance(ctx context.Context, account string) (int64, error)

	// EscrowBalance returns a market's escrow balance (0 if none).
	EscrowBalance(ctx context.Context, marketID string) (int64, error)
}
