package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/engine"
	"github.com/outcomex/settle/internal/server/middleware"
	"github.com/outcomex/settle/internal/service"
)

// ExchangeService defines the methods the order-book handler requires from
// the service layer.
type ExchangeService interface {
	CreateMarket(ctx context.Context, authority string, p service.CreateClobParams) (domain.ClobMarket, error)
	GetMarket(ctx context.Context, id string) (domain.ClobMarket, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.ClobMarket, error)
	GetBook(ctx context.Context, marketID string) (domain.BookSnapshot, error)
	GetPosition(ctx context.Context, marketID, owner string) (domain.ClobPosition, error)
	ListFills(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error)
	PlaceOrder(ctx context.Context, marketID, owner string, exposure domain.Outcome, side domain.BookSide, price, size int64) (*engine.PlaceResult, error)
	CancelOrder(ctx context.Context, marketID, owner string, side domain.BookSide, index int) (domain.Order, error)
	Resolve(ctx context.Context, marketID, caller string, winner domain.Outcome) (domain.ClobMarket, string, error)
	Claim(ctx context.Context, marketID, claimer string) (engine.Payment, string, error)
}

// ClobHandler serves the order-book market endpoints.
type ClobHandler struct {
	exchange ExchangeService
	logger   *slog.Logger
}

// NewClobHandler creates a ClobHandler with the given service and logger.
func NewClobHandler(exchange ExchangeService, logger *slog.Logger) *ClobHandler {
	return &ClobHandler{
		exchange: exchange,
		logger:   logger,
	}
}

type listClobMarketsResponse struct {
	Markets []domain.ClobMarket `json:"markets"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// ListMarkets returns order-book markets with pagination.
// GET /api/clob/markets?limit=50&offset=0
func (h *ClobHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.exchange.ListMarkets(r.Context(), opts)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	if markets == nil {
		markets = []domain.ClobMarket{}
	}

	writeJSON(w, http.StatusOK, listClobMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

type createClobMarketRequest struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	ResolvesAt time.Time `json:"resolves_at"`
}

// CreateMarket creates an order-book market. The verified caller becomes the
// market authority.
// POST /api/clob/markets
func (h *ClobHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}

	var req createClobMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "id and question are required")
		return
	}

	market, err := h.exchange.CreateMarket(r.Context(), account, service.CreateClobParams{
		ID:         req.ID,
		Question:   req.Question,
		ResolvesAt: req.ResolvesAt,
	})
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// GetMarket returns a single order-book market by its ID.
// GET /api/clob/markets/{id}
func (h *ClobHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.exchange.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetBook returns the aggregated price levels of a market's book.
// GET /api/clob/markets/{id}/book
func (h *ClobHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	snap, err := h.exchange.GetBook(r.Context(), id)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type placeOrderRequest struct {
	Side     string `json:"side"`     // bid | ask
	Exposure string `json:"exposure"` // yes | no
	Price    int64  `json:"price"`    // basis points on the exposure side
	Size     int64  `json:"size"`
}

type placeOrderResponse struct {
	TakerSide domain.Outcome  `json:"taker_side"`
	Side      domain.BookSide `json:"side"`  // book side after YES normalization
	Price     int64           `json:"price"` // YES price after normalization
	Size      int64           `json:"size"`
	Escrow    int64           `json:"escrow"`
	Release   int64           `json:"release"`
	Filled    int64           `json:"filled"`
	Fills     []domain.Fill   `json:"fills"`
	Resting   *domain.Order   `json:"resting"` // nil when fully filled
}

// PlaceOrder submits a limit order for the verified caller.
// POST /api/clob/markets/{id}/orders
func (h *ClobHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	id := pathParam(r, "id")

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	side, err := domain.ParseBookSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be bid or ask")
		return
	}
	exposure, err := domain.ParseOutcome(req.Exposure)
	if err != nil {
		writeError(w, http.StatusBadRequest, "exposure must be yes or no")
		return
	}

	res, err := h.exchange.PlaceOrder(r.Context(), id, account, exposure, side, req.Price, req.Size)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	fills := res.Fills
	if fills == nil {
		fills = []domain.Fill{}
	}
	writeJSON(w, http.StatusCreated, placeOrderResponse{
		TakerSide: res.TakerSide,
		Side:      res.Side,
		Price:     res.Price,
		Size:      res.Size,
		Escrow:    res.Escrow,
		Release:   res.Release,
		Filled:    res.Filled,
		Fills:     fills,
		Resting:   res.Resting,
	})
}

type cancelOrderResponse struct {
	Status string       `json:"status"`
	Order  domain.Order `json:"order"`
}

// CancelOrder removes a resting order owned by the verified caller and
// refunds its remaining collateral.
// DELETE /api/clob/markets/{id}/orders/{side}/{index}
func (h *ClobHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	id := pathParam(r, "id")

	side, err := domain.ParseBookSide(pathParam(r, "side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be bid or ask")
		return
	}
	index, err := strconv.Atoi(pathParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	order, err := h.exchange.CancelOrder(r.Context(), id, account, side, index)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, cancelOrderResponse{
		Status: "cancelled",
		Order:  order,
	})
}

type resolveClobRequest struct {
	Side string `json:"side"` // winning side, yes | no
}

type resolveClobResponse struct {
	Market  domain.ClobMarket `json:"market"`
	Receipt string            `json:"receipt"`
}

// Resolve settles the market to a winning side. Only the market authority
// may call it.
// POST /api/clob/markets/{id}/resolve
func (h *ClobHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	id := pathParam(r, "id")

	var req resolveClobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	winner, err := domain.ParseOutcome(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	market, receipt, err := h.exchange.Resolve(r.Context(), id, account, winner)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveClobResponse{
		Market:  market,
		Receipt: receipt,
	})
}

// Claim redeems the verified caller's winning shares at full payout.
// POST /api/clob/markets/{id}/claim
func (h *ClobHandler) Claim(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing verified account")
		return
	}
	id := pathParam(r, "id")

	pay, receipt, err := h.exchange.Claim(r.Context(), id, account)
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

// GetPosition returns one account's YES/NO share balances in a market.
// GET /api/clob/markets/{id}/positions/{account}
func (h *ClobHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	account, ok := normalizeAccount(pathParam(r, "account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed account address")
		return
	}

	pos, err := h.exchange.GetPosition(r.Context(), id, account)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

type listFillsResponse struct {
	Fills  []domain.Fill `json:"fills"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListFills returns a market's fill log, newest first.
// GET /api/clob/markets/{id}/fills?limit=50&offset=0
func (h *ClobHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	opts := parseListOpts(r)

	fills, err := h.exchange.ListFills(r.Context(), id, opts)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}

	writeJSON(w, http.StatusOK, listFillsResponse{
		Fills:  fills,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
