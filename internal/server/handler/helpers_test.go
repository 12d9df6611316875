package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/outcomex/settle/internal/domain"
)

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLimit: 50, wantOffset: 0},
		{name: "explicit", query: "?limit=10&offset=30", wantLimit: 10, wantOffset: 30},
		{name: "limit capped", query: "?limit=9999", wantLimit: 500, wantOffset: 0},
		{name: "garbage ignored", query: "?limit=abc&offset=-5", wantLimit: 50, wantOffset: 0},
		{name: "zero limit ignored", query: "?limit=0", wantLimit: 50, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/markets"+tt.query, nil)
			opts := parseListOpts(req)
			assert.Equal(t, tt.wantLimit, opts.Limit)
			assert.Equal(t, tt.wantOffset, opts.Offset)
		})
	}
}

func TestWriteDomainError_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidPrice, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrMarketAlreadyResolved, http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{domain.ErrOverflow, http.StatusUnprocessableEntity},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrLockHeld, http.StatusLocked},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(context.Background(), rec, testLogger(), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.err.Error())
		})
	}
}

func TestWriteDomainError_WrappedError(t *testing.T) {
	// Services wrap sentinels with context; the response carries the clean
	// sentinel message.
	wrapped := fmt.Errorf("exchange_service: place order: %w", domain.ErrOrderBookFull)

	rec := httptest.NewRecorder()
	writeDomainError(context.Background(), rec, testLogger(), wrapped)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ErrOrderBookFull.Error())
	assert.NotContains(t, rec.Body.String(), "exchange_service")
}

func TestWriteDomainError_UnknownMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(context.Background(), rec, testLogger(), errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestNormalizeAccount(t *testing.T) {
	got, ok := normalizeAccount("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	assert.True(t, ok)
	assert.Equal(t, testAccount, got)

	_, ok = normalizeAccount("not-an-address")
	assert.False(t, ok)

	_, ok = normalizeAccount("")
	assert.False(t, ok)
}
