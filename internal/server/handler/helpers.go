package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomex/settle/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatuses maps settlement errors to HTTP status codes, checked in
// order. Validation rejections are 400, authority failures 403, state
// conflicts 409, arithmetic faults 422.
var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidOutcomeCount, http.StatusBadRequest},
	{domain.ErrMarketIDTooLong, http.StatusBadRequest},
	{domain.ErrQuestionTooLong, http.StatusBadRequest},
	{domain.ErrInvalidOutcome, http.StatusBadRequest},
	{domain.ErrInvalidPrice, http.StatusBadRequest},
	{domain.ErrInvalidSize, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrNotOrderOwner, http.StatusForbidden},
	{domain.ErrMarketResolved, http.StatusConflict},
	{domain.ErrMarketExpired, http.StatusConflict},
	{domain.ErrMarketAlreadyResolved, http.StatusConflict},
	{domain.ErrMarketNotResolved, http.StatusConflict},
	{domain.ErrNoWinningShares, http.StatusConflict},
	{domain.ErrNoWinnings, http.StatusConflict},
	{domain.ErrOrderBookFull, http.StatusConflict},
	{domain.ErrAlreadyExists, http.StatusConflict},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrInvalidOrderIndex, http.StatusNotFound},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
	{domain.ErrOverflow, http.StatusUnprocessableEntity},
	{domain.ErrDivideByZero, http.StatusUnprocessableEntity},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
	{domain.ErrLockHeld, http.StatusLocked},
}

// writeDomainError translates a service error into an HTTP response. Known
// settlement errors surface their own message; anything else is logged and
// masked as a 500.
func writeDomainError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			writeError(w, es.status, es.err.Error())
			return
		}
	}
	logger.ErrorContext(ctx, "handler: internal error", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// normalizeAccount validates a hex account address and returns its
// checksummed form, so the same account written in different casings maps
// to one ledger entry.
func normalizeAccount(s string) (string, bool) {
	if !common.IsHexAddress(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}
