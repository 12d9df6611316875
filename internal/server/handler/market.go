package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/engine"
	"github.com/outcomex/settle/internal/server/middleware"
	"github.com/outcomex/settle/internal/service"
)

// MarketService defines the methods the parimutuel handler requires from the
// service layer. It is declared locally so the handler package depends on
// behavior, not the concrete service type.
type MarketService interface {
	CreateMarket(ctx context.Context, authority string, p service.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	GetPosition(ctx context.Context, marketID, owner string) (domain.Position, error)
	Buy(ctx context.Context, marketID, buyer string, outcome int, amount int64) (domain.Position, error)
	Resolve(ctx context.Context, marketID, caller string, outcome int) (domain.Market, string, error)
	Claim(ctx context.Context, marketID, claimer string) (engine.Payment, string, error)
}

// MarketHandler serves the parimutuel market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

type createMarketRequest struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Outcomes   []string  `json:"outcomes"`
	ResolvesAt time.Time `json:"resolves_at"`
}

// CreateMarket creates a parimutuel market. The verified caller becomes the
// market authority.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}

	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "id and question are required")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), account, service.CreateMarketParams{
		ID:         req.ID,
		Question:   req.Question,
		Outcomes:   req.Outcomes,
		ResolvesAt: req.ResolvesAt,
	})
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

type buyRequest struct {
	Outcome int   `json:"outcome"`
	Amount  int64 `json:"amount"`
}

// Buy stakes the verified caller's funds on one outcome.
// POST /api/markets/{id}/buy
func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	id := pathParam(r, "id")

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pos, err := h.markets.Buy(r.Context(), id, account, req.Outcome, req.Amount)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

type resolveMarketRequest struct {
	Outcome int `json:"outcome"`
}

type resolveMarketResponse struct {
	Market  domain.Market `json:"market"`
	Receipt string        `json:"receipt"`
}

// Resolve settles the market to one outcome. Only the market authority may
// call it.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	id := pathParam(r, "id")

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	market, receipt, err := h.markets.Resolve(r.Context(), id, account, req.Outcome)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveMarketResponse{
		Market:  market,
		Receipt: receipt,
	})
}

type claimResponse struct {
	Gross   int64  `json:"gross"`
	Fee     int64  `json:"fee"`
	Net     int64  `json:"net"`
	Receipt string `json:"receipt"`
}

// Claim pays out the verified caller's winning shares.
// POST /api/markets/{id}/claim
func (h *MarketHandler) Claim(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	id := pathParam(r, "id")

	pay, receipt, err := h.markets.Claim(r.Context(), id, account)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		Gross:   pay.Gross,
		Fee:     pay.Fee,
		Net:     pay.Net,
		Receipt: receipt,
	})
}

// GetPosition returns one account's share balances in a market.
// GET /api/markets/{id}/positions/{account}
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	account, ok := normalizeAccount(pathParam(r, "account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed account address")
		return
	}

	pos, err := h.markets.GetPosition(r.Context(), id, account)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
