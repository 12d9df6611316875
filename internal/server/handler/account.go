package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/outcomex/settle/internal/server/middleware"
)

// LedgerService defines the methods the account handler requires from the
// service layer.
type LedgerService interface {
	Deposit(ctx context.Context, account string, amount int64) (int64, error)
	Withdraw(ctx context.Context, account string, amount int64) (int64, error)
	Balance(ctx context.Context, account string) (int64, error)
}

// AccountHandler serves the account funding endpoints.
type AccountHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(ledger LedgerService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		ledger: ledger,
		logger: logger,
	}
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// Balance returns an account's available (non-escrowed) funds.
// GET /api/accounts/{account}/balance
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	account, ok := normalizeAccount(pathParam(r, "account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed account address")
		return
	}

	balance, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account,
		Balance: balance,
	})
}

type fundRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit credits an account. Guarded by the admin API key, not a caller
// signature, so an operator can fund accounts out of band.
// POST /api/accounts/{account}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, ok := normalizeAccount(pathParam(r, "account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed account address")
		return
	}

	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	balance, err := h.ledger.Deposit(r.Context(), account, req.Amount)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account,
		Balance: balance,
	})
}

// Withdraw debits the verified caller's own account.
// POST /api/accounts/{account}/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	verified, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	account, ok := normalizeAccount(pathParam(r, "account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed account address")
		return
	}
	if account != verified {
		writeError(w, http.StatusForbidden, "cannot withdraw from another account")
		return
	}

	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	balance, err := h.ledger.Withdraw(r.Context(), account, req.Amount)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account,
		Balance: balance,
	})
}
