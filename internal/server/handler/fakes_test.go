package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/engine"
	"github.com/outcomex/settle/internal/server/middleware"
	"github.com/outcomex/settle/internal/service"
)

const testAccount = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRequest builds a request with path values and, optionally, a verified
// account in the context, as the signature middleware would leave it.
func newRequest(method, target, body, account string, pathValues map[string]string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	if account != "" {
		req = req.WithContext(middleware.WithAccount(req.Context(), account))
	}
	return req
}

// marketServiceStub implements MarketService with overridable methods.
type marketServiceStub struct {
	createFn   func(ctx context.Context, authority string, p service.CreateMarketParams) (domain.Market, error)
	getFn      func(ctx context.Context, id string) (domain.Market, error)
	listFn     func(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	positionFn func(ctx context.Context, marketID, owner string) (domain.Position, error)
	buyFn      func(ctx context.Context, marketID, buyer string, outcome int, amount int64) (domain.Position, error)
	resolveFn  func(ctx context.Context, marketID, caller string, outcome int) (domain.Market, string, error)
	claimFn    func(ctx context.Context, marketID, claimer string) (engine.Payment, string, error)
}

func (s *marketServiceStub) CreateMarket(ctx context.Context, authority string, p service.CreateMarketParams) (domain.Market, error) {
	if s.createFn == nil {
		return domain.Market{}, nil
	}
	return s.createFn(ctx, authority, p)
}

func (s *marketServiceStub) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if s.getFn == nil {
		return domain.Market{}, nil
	}
	return s.getFn(ctx, id)
}

func (s *marketServiceStub) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, opts)
}

func (s *marketServiceStub) GetPosition(ctx context.Context, marketID, owner string) (domain.Position, error) {
	if s.positionFn == nil {
		return domain.Position{}, nil
	}
	return s.positionFn(ctx, marketID, owner)
}

func (s *marketServiceStub) Buy(ctx context.Context, marketID, buyer string, outcome int, amount int64) (domain.Position, error) {
	if s.buyFn == nil {
		return domain.Position{}, nil
	}
	return s.buyFn(ctx, marketID, buyer, outcome, amount)
}

func (s *marketServiceStub) Resolve(ctx context.Context, marketID, caller string, outcome int) (domain.Market, string, error) {
	if s.resolveFn == nil {
		return domain.Market{}, "", nil
	}
	return s.resolveFn(ctx, marketID, caller, outcome)
}

func (s *marketServiceStub) Claim(ctx context.Context, marketID, claimer string) (engine.Payment, string, error) {
	if s.claimFn == nil {
		return engine.Payment{}, "", nil
	}
	return s.claimFn(ctx, marketID, claimer)
}

// exchangeServiceStub implements ExchangeService with overridable methods.
type exchangeServiceStub struct {
	createFn    func(ctx context.Context, authority string, p service.CreateClobParams) (domain.ClobMarket, error)
	getFn       func(ctx context.Context, id string) (domain.ClobMarket, error)
	listFn      func(ctx context.Context, opts domain.ListOpts) ([]domain.ClobMarket, error)
	bookFn      func(ctx context.Context, marketID string) (domain.BookSnapshot, error)
	positionFn  func(ctx context.Context, marketID, owner string) (domain.ClobPosition, error)
	listFillsFn func(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error)
	placeFn     func(ctx context.Context, marketID, owner string, exposure domain.Outcome, side domain.BookSide, price, size int64) (*engine.PlaceResult, error)
	cancelFn    func(ctx context.Context, marketID, owner string, side domain.BookSide, index int) (domain.Order, error)
	resolveFn   func(ctx context.Context, marketID, caller string, winner domain.Outcome) (domain.ClobMarket, string, error)
	claimFn     func(ctx context.Context, marketID, claimer string) (engine.Payment, string, error)
}

func (s *exchangeServiceStub) CreateMarket(ctx context.Context, authority string, p service.CreateClobParams) (domain.ClobMarket, error) {
	if s.createFn == nil {
		return domain.ClobMarket{}, nil
	}
	return s.createFn(ctx, authority, p)
}

func (s *exchangeServiceStub) GetMarket(ctx context.Context, id string) (domain.ClobMarket, error) {
	if s.getFn == nil {
		return domain.ClobMarket{}, nil
	}
	return s.getFn(ctx, id)
}

func (s *exchangeServiceStub) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.ClobMarket, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, opts)
}

func (s *exchangeServiceStub) GetBook(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	if s.bookFn == nil {
		return domain.BookSnapshot{}, nil
	}
	return s.bookFn(ctx, marketID)
}

func (s *exchangeServiceStub) GetPosition(ctx context.Context, marketID, owner string) (domain.ClobPosition, error) {
	if s.positionFn == nil {
		return domain.ClobPosition{}, nil
	}
	return s.positionFn(ctx, marketID, owner)
}

func (s *exchangeServiceStub) ListFills(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error) {
	if s.listFillsFn == nil {
		return nil, nil
	}
	return s.listFillsFn(ctx, marketID, opts)
}

func (s *exchangeServiceStub) PlaceOrder(ctx context.Context, marketID, owner string, exposure domain.Outcome, side domain.BookSide, price, size int64) (*engine.PlaceResult, error) {
	if s.placeFn == nil {
		return &engine.PlaceResult{}, nil
	}
	return s.placeFn(ctx, marketID, owner, exposure, side, price, size)
}

func (s *exchangeServiceStub) CancelOrder(ctx context.Context, marketID, owner string, side domain.BookSide, index int) (domain.Order, error) {
	if s.cancelFn == nil {
		return domain.Order{}, nil
	}
	return s.cancelFn(ctx, marketID, owner, side, index)
}

func (s *exchangeServiceStub) Resolve(ctx context.Context, marketID, caller string, winner domain.Outcome) (domain.ClobMarket, string, error) {
	if s.resolveFn == nil {
		return domain.ClobMarket{}, "", nil
	}
	return s.resolveFn(ctx, marketID, caller, winner)
}

func (s *exchangeServiceStub) Claim(ctx context.Context, marketID, claimer string) (engine.Payment, string, error) {
	if s.claimFn == nil {
		return engine.Payment{}, "", nil
	}
	return s.claimFn(ctx, marketID, claimer)
}

// ledgerServiceStub implements LedgerService with overridable methods.
type ledgerServiceStub struct {
	depositFn  func(ctx context.Context, account string, amount int64) (int64, error)
	withdrawFn func(ctx context.Context, account string, amount int64) (int64, error)
	balanceFn  func(ctx context.Context, account string) (int64, error)
}

func (s *ledgerServiceStub) Deposit(ctx context.Context, account string, amount int64) (int64, error) {
	if s.depositFn == nil {
		return 0, nil
	}
	return s.depositFn(ctx, account, amount)
}

func (s *ledgerServiceStub) Withdraw(ctx context.Context, account string, amount int64) (int64, error) {
	if s.withdrawFn == nil {
		return 0, nil
	}
	return s.withdrawFn(ctx, account, amount)
}

func (s *ledgerServiceStub) Balance(ctx context.Context, account string) (int64, error) {
	if s.balanceFn == nil {
		return 0, nil
	}
	return s.balanceFn(ctx, account)
}
