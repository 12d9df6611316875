package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/outcomex/settle/internal/domain"
)

// LedgerService funds and drains trading accounts. Deposits are an admin
// operation; withdrawals are signature-authorized and bounded by the
// available balance. Escrowed funds can only come back through the market
// instructions that locked them.
type LedgerService struct {
	store  domain.Store
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(store domain.Store, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:  store,
		logger: logger,
	}
}

// Deposit credits an account and returns the new available balance.
func (s *LedgerService) Deposit(ctx context.Context, account string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger_service: deposit for %q: %w", account, domain.ErrInvalidSize)
	}

	var balance int64
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Ledger().Deposit(ctx, account, amount); err != nil {
			return err
		}
		var err error
		balance, err = tx.Ledger().Balance(ctx, account)
		if err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "ledger.deposit", map[string]any{
			"account": account,
			"amount":  amount,
			"balance": balance,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ledger_service: deposit for %q: %w", account, err)
	}

	s.logger.InfoContext(ctx, "ledger_service: deposit",
		slog.String("account", account),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance),
	)

	return balance, nil
}

// Withdraw debits an account and returns the new available balance. Fails
// ErrInsufficientFunds beyond the available balance; escrowed funds are not
// withdrawable.
func (s *LedgerService) Withdraw(ctx context.Context, account string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger_service: withdraw for %q: %w", account, domain.ErrInvalidSize)
	}

	var balance int64
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Ledger().Withdraw(ctx, account, amount); err != nil {
			return err
		}
		var err error
		balance, err = tx.Ledger().Balance(ctx, account)
		if err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "ledger.withdraw", map[string]any{
			"account": account,
			"amount":  amount,
			"balance": balance,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ledger_service: withdraw for %q: %w", account, err)
	}

	s.logger.InfoContext(ctx, "ledger_service: withdraw",
		slog.String("account", account),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance),
	)

	return balance, nil
}

// Balance returns an account's available balance, zero if never funded.
func (s *LedgerService) Balance(ctx context.Context, account string) (int64, error) {
	balance, err := s.store.Ledger().Balance(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("ledger_service: balance for %q: %w", account, err)
	}
	return balance, nil
}
