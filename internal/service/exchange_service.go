package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/engine"
)

// CreateClobParams carries the caller-supplied fields of a binary CLOB
// market. As with parimutuel markets, the creator becomes the authority.
type CreateClobParams struct {
	ID         string
	Question   string
	ResolvesAt time.Time
}

// ExchangeService runs order-book instructions: create, place, cancel,
// resolve, claim. The CLOB market row is the per-market lock; every
// instruction locks it before touching the book, positions, or ledger.
type ExchangeService struct {
	store  domain.Store
	cache  domain.MarketCache
	books  domain.BookCache
	bus    domain.SignalBus
	signer ReceiptSigner
	clock  domain.Clock
	logger *slog.Logger
}

// NewExchangeService creates an ExchangeService with all required
// dependencies.
func NewExchangeService(
	store domain.Store,
	cache domain.MarketCache,
	books domain.BookCache,
	bus domain.SignalBus,
	signer ReceiptSigner,
	clock domain.Clock,
	logger *slog.Logger,
) *ExchangeService {
	return &ExchangeService{
		store:  store,
		cache:  cache,
		books:  books,
		bus:    bus,
		signer: signer,
		clock:  clock,
		logger: logger,
	}
}

// CreateMarket validates and persists a new CLOB market along with its
// empty order book.
func (s *ExchangeService) CreateMarket(ctx context.Context, authority string, p CreateClobParams) (domain.ClobMarket, error) {
	m, book, err := engine.NewClobMarket(p.ID, p.Question, authority, p.ResolvesAt, s.clock.Now())
	if err != nil {
		return domain.ClobMarket{}, fmt.Errorf("exchange_service: create market: %w", err)
	}

	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.ClobMarkets().Create(ctx, m); err != nil {
			return err
		}
		if err := tx.Books().Create(ctx, book); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clob.market_created", map[string]any{
			"market_id": m.ID,
			"authority": authority,
		})
	})
	if err != nil {
		return domain.ClobMarket{}, fmt.Errorf("exchange_service: create market %q: %w", p.ID, err)
	}

	if cacheErr := s.cache.SetClobMarket(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "exchange_service: cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "exchange_service: market created",
		slog.String("market_id", m.ID),
		slog.String("authority", authority),
	)

	return m, nil
}

// GetMarket retrieves a CLOB market by ID, cache first.
func (s *ExchangeService) GetMarket(ctx context.Context, id string) (domain.ClobMarket, error) {
	m, err := s.cache.GetClobMarket(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.store.ClobMarkets().Get(ctx, id)
	if err != nil {
		return domain.ClobMarket{}, fmt.Errorf("exchange_service: get market %q: %w", id, err)
	}

	if cacheErr := s.cache.SetClobMarket(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "exchange_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// ListMarkets returns CLOB markets directly from the persistent store.
func (s *ExchangeService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.ClobMarket, error) {
	markets, err := s.store.ClobMarkets().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("exchange_service: list markets: %w", err)
	}
	return markets, nil
}

// GetBook returns the aggregated public book view, cache first. Owner
// attribution never leaves this method; only price levels do.
func (s *ExchangeService) GetBook(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	snap, err := s.books.GetSnapshot(ctx, marketID)
	if err == nil {
		return snap, nil
	}

	book, err := s.store.Books().Get(ctx, marketID)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("exchange_service: get book %q: %w", marketID, err)
	}
	snap = book.Snapshot(s.clock.Now())

	if cacheErr := s.books.SetSnapshot(ctx, snap); cacheErr != nil {
		s.logger.WarnContext(ctx, "exchange_service: book cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", cacheErr.Error()),
		)
	}

	return snap, nil
}

// GetPosition returns one trader's YES/NO balances in a market.
func (s *ExchangeService) GetPosition(ctx context.Context, marketID, owner string) (domain.ClobPosition, error) {
	pos, err := s.store.ClobPositions().Get(ctx, marketID, owner)
	if err != nil {
		return domain.ClobPosition{}, fmt.Errorf("exchange_service: get position %q/%q: %w", marketID, owner, err)
	}
	return pos, nil
}

// ListFills returns the fill log for a market, newest first.
func (s *ExchangeService) ListFills(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error) {
	fills, err := s.store.Fills().ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("exchange_service: list fills %q: %w", marketID, err)
	}
	return fills, nil
}

// PlaceOrder runs one limit order end to end: lock the market, match
// against the book, move collateral, persist fills and positions, and rest
// any remainder. The returned result carries the fills and the resting
// order, if any.
func (s *ExchangeService) PlaceOrder(ctx context.Context, marketID, owner string, exposure domain.Outcome, side domain.BookSide, price, size int64) (*engine.PlaceResult, error) {
	var res *engine.PlaceResult

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		m, err := tx.ClobMarkets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		book, err := tx.Books().Get(ctx, marketID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		res, err = engine.PlaceOrder(&m, &book, owner, exposure, side, price, size, now)
		if err != nil {
			return err
		}

		if err := tx.Ledger().Escrow(ctx, marketID, owner, res.Escrow); err != nil {
			return err
		}
		if res.Release > 0 {
			if err := tx.Ledger().Release(ctx, marketID, owner, res.Release); err != nil {
				return err
			}
		}

		if len(res.Fills) > 0 {
			for i := range res.Fills {
				res.Fills[i].ID = uuid.NewString()
			}
			if err := tx.Fills().InsertBatch(ctx, res.Fills); err != nil {
				return err
			}
			if err := applyFills(ctx, tx, marketID, now, res.Fills); err != nil {
				return err
			}
		}

		m.UpdatedAt = now
		if err := tx.ClobMarkets().Update(ctx, m); err != nil {
			return err
		}
		if err := tx.Books().Save(ctx, book); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clob.order_placed", map[string]any{
			"market_id": marketID,
			"owner":     owner,
			"exposure":  string(exposure),
			"side":      string(side),
			"price":     price,
			"size":      size,
			"filled":    res.Filled,
			"escrow":    res.Escrow,
			"release":   res.Release,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("exchange_service: place order %q: %w", marketID, err)
	}

	s.invalidate(ctx, marketID)
	for _, f := range res.Fills {
		publishEvent(ctx, s.bus, s.logger, domain.ChannelFills, domain.FillEvent{
			MarketID:  f.MarketID,
			OrderID:   f.OrderID,
			Maker:     f.Maker,
			Taker:     f.Taker,
			TakerSide: f.TakerSide,
			Price:     f.Price,
			Size:      f.Size,
			At:        f.CreatedAt,
		})
	}

	s.logger.InfoContext(ctx, "exchange_service: order placed",
		slog.String("market_id", marketID),
		slog.String("owner", owner),
		slog.String("side", string(res.Side)),
		slog.Int64("price", res.Price),
		slog.Int64("size", size),
		slog.Int64("filled", res.Filled),
		slog.Bool("resting", res.Resting != nil),
	)

	return res, nil
}

// CancelOrder removes a resting order and refunds its remaining collateral.
// Allowed after resolution so unfilled collateral is never stranded.
func (s *ExchangeService) CancelOrder(ctx context.Context, marketID, owner string, side domain.BookSide, index int) (domain.Order, error) {
	var cancelled domain.Order

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		// Cancel reads no market state, but the row lock keeps it
		// serialized with concurrent placements on the same book.
		if _, err := tx.ClobMarkets().GetForUpdate(ctx, marketID); err != nil {
			return err
		}
		book, err := tx.Books().Get(ctx, marketID)
		if err != nil {
			return err
		}

		order, refund, err := engine.CancelOrder(&book, owner, side, index)
		if err != nil {
			return err
		}
		cancelled = order

		if err := tx.Ledger().Release(ctx, marketID, owner, refund); err != nil {
			return err
		}
		if err := tx.Books().Save(ctx, book); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clob.order_cancelled", map[string]any{
			"market_id": marketID,
			"owner":     owner,
			"side":      string(side),
			"index":     index,
			"order_id":  order.ID,
			"refund":    refund,
		})
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("exchange_service: cancel order %q: %w", marketID, err)
	}

	s.invalidateBook(ctx, marketID)

	s.logger.InfoContext(ctx, "exchange_service: order cancelled",
		slog.String("market_id", marketID),
		slog.String("owner", owner),
		slog.Int64("order_id", cancelled.ID),
	)

	return cancelled, nil
}

// Resolve marks the winning side and returns the updated market with an
// operator-signed resolution receipt.
func (s *ExchangeService) Resolve(ctx context.Context, marketID, caller string, winner domain.Outcome) (domain.ClobMarket, string, error) {
	var (
		m       domain.ClobMarket
		receipt string
	)
	settledAt := s.clock.Now()

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		m, err = tx.ClobMarkets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}

		if err := engine.ResolveClob(&m, caller, winner); err != nil {
			return err
		}

		receipt, err = s.signer.SignResolution(marketID, string(winner), settledAt)
		if err != nil {
			return err
		}

		m.UpdatedAt = settledAt
		if err := tx.ClobMarkets().Update(ctx, m); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clob.resolved", map[string]any{
			"market_id": marketID,
			"winner":    string(winner),
			"receipt":   receipt,
		})
	})
	if err != nil {
		return domain.ClobMarket{}, "", fmt.Errorf("exchange_service: resolve %q: %w", marketID, err)
	}

	s.invalidate(ctx, marketID)
	publishEvent(ctx, s.bus, s.logger, domain.ChannelResolutions, domain.ResolutionEvent{
		Kind:     domain.MarketKindClob,
		MarketID: marketID,
		Outcome:  string(winner),
		Receipt:  receipt,
		At:       settledAt,
	})

	s.logger.InfoContext(ctx, "exchange_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("winner", string(winner)),
	)

	return m, receipt, nil
}

// Claim pays out the caller's winning shares at SharePayout per share and
// clears both sides of the position. No fee applies to CLOB claims.
func (s *ExchangeService) Claim(ctx context.Context, marketID, claimer string) (engine.Payment, string, error) {
	var (
		pay     engine.Payment
		receipt string
	)
	settledAt := s.clock.Now()

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		m, err := tx.ClobMarkets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}

		pos, err := tx.ClobPositions().Get(ctx, marketID, claimer)
		if errors.Is(err, domain.ErrNotFound) {
			if !m.Resolved {
				return domain.ErrMarketNotResolved
			}
			return domain.ErrNoWinnings
		} else if err != nil {
			return err
		}

		pay, err = engine.ClaimClob(&m, &pos)
		if err != nil {
			return err
		}

		if err := tx.Ledger().Release(ctx, marketID, claimer, pay.Net); err != nil {
			return err
		}

		receipt, err = s.signer.SignClaim(marketID, claimer, pay.Gross, pay.Fee, pay.Net, settledAt)
		if err != nil {
			return err
		}

		pos.UpdatedAt = settledAt
		if err := tx.ClobPositions().Upsert(ctx, pos); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clob.claimed", map[string]any{
			"market_id": marketID,
			"claimer":   claimer,
			"net":       pay.Net,
		})
	})
	if err != nil {
		return engine.Payment{}, "", fmt.Errorf("exchange_service: claim %q: %w", marketID, err)
	}

	publishEvent(ctx, s.bus, s.logger, domain.ChannelClaims, domain.ClaimEvent{
		Kind:     domain.MarketKindClob,
		MarketID: marketID,
		Claimer:  claimer,
		Gross:    pay.Gross,
		Fee:      pay.Fee,
		Net:      pay.Net,
		Receipt:  receipt,
		At:       settledAt,
	})

	s.logger.InfoContext(ctx, "exchange_service: winnings claimed",
		slog.String("market_id", marketID),
		slog.String("claimer", claimer),
		slog.Int64("net", pay.Net),
	)

	return pay, receipt, nil
}

// applyFills credits the traded shares to every touched position. Positions
// load once per owner, so a self-trade credits both legs of a single
// struct.
func applyFills(ctx context.Context, tx domain.Store, marketID string, now time.Time, fills []domain.Fill) error {
	positions := make(map[string]*domain.ClobPosition)

	load := func(owner string) (*domain.ClobPosition, error) {
		if p, ok := positions[owner]; ok {
			return p, nil
		}
		pos, err := tx.ClobPositions().Get(ctx, marketID, owner)
		if errors.Is(err, domain.ErrNotFound) {
			pos = domain.ClobPosition{MarketID: marketID, Owner: owner, CreatedAt: now}
		} else if err != nil {
			return nil, err
		}
		p := &pos
		positions[owner] = p
		return p, nil
	}

	for _, f := range fills {
		taker, err := load(f.Taker)
		if err != nil {
			return err
		}
		maker, err := load(f.Maker)
		if err != nil {
			return err
		}
		engine.ApplyFill(taker, maker, f)
	}

	for _, p := range positions {
		p.UpdatedAt = now
		if err := tx.ClobPositions().Upsert(ctx, *p); err != nil {
			return err
		}
	}
	return nil
}

// invalidate drops both the market snapshot and the book snapshot.
func (s *ExchangeService) invalidate(ctx context.Context, marketID string) {
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "exchange_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	s.invalidateBook(ctx, marketID)
}

// invalidateBook drops only the cached book snapshot.
func (s *ExchangeService) invalidateBook(ctx context.Context, marketID string) {
	if err := s.books.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "exchange_service: book cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
