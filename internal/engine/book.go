package engine

import (
	"time"

	"github.com/outcomex/settle/internal/domain"
)

// PlaceResult describes everything a single order instruction did: the
// YES-denominated terms it traded under, the collateral motions the caller
// must apply against the ledger, the fills produced, and the resting
// remainder if any. Escrow is locked before matching; Release is the
// taker's price-improvement surplus handed back afterwards, so the escrow
// retained per filled share pair is always exactly SharePayout.
type PlaceResult struct {
	Owner     string
	TakerSide domain.Outcome  // exposure the taker accrues on each fill
	Side      domain.BookSide // normalized book side
	Price     int64           // normalized limit price
	Size      int64
	Escrow    int64
	Release   int64
	Filled    int64
	Fills     []domain.Fill
	Resting   *domain.Order // nil when fully filled
}

// NewClobMarket validates the creation parameters and returns a fresh
// binary market with an empty book.
func NewClobMarket(id, question, authority string, resolvesAt, now time.Time) (domain.ClobMarket, domain.OrderBook, error) {
	if len(id) > domain.MaxMarketIDLen {
		return domain.ClobMarket{}, domain.OrderBook{}, domain.ErrMarketIDTooLong
	}
	if len(question) > domain.MaxQuestionLen {
		return domain.ClobMarket{}, domain.OrderBook{}, domain.ErrQuestionTooLong
	}
	m := domain.ClobMarket{
		ID:             id,
		Question:       question,
		Authority:      authority,
		ResolutionTime: resolvesAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return m, domain.OrderBook{MarketID: id}, nil
}

// NormalizeOrder maps an order expressed against either exposure onto the
// single YES book: a NO order at price p carries the same risk as a YES
// order at PriceScale-p on the opposite side.
func NormalizeOrder(exposure domain.Outcome, side domain.BookSide, price int64) (domain.BookSide, int64) {
	if exposure == domain.OutcomeNo {
		return side.Opposite(), domain.PriceScale - price
	}
	return side, price
}

// PlaceOrder runs one limit order through the book: normalize, escrow
// collateral at the limit price, match against the opposite side at maker
// prices, and rest any remainder. The market and book are mutated in
// place; on error the caller must discard both, matching the all-or-
// nothing contract of an instruction.
func PlaceOrder(m *domain.ClobMarket, book *domain.OrderBook, owner string, exposure domain.Outcome, side domain.BookSide, price, size int64, now time.Time) (*PlaceResult, error) {
	if price <= 0 || price >= domain.PriceScale {
		return nil, domain.ErrInvalidPrice
	}
	if size <= 0 {
		return nil, domain.ErrInvalidSize
	}
	if m.Resolved {
		return nil, domain.ErrMarketResolved
	}
	if !now.Before(m.ResolutionTime) {
		return nil, domain.ErrMarketExpired
	}

	normSide, normPrice := NormalizeOrder(exposure, side, price)
	escrow, err := Collateral(normSide, normPrice, size)
	if err != nil {
		return nil, err
	}

	res := &PlaceResult{
		Owner:     owner,
		TakerSide: domain.OutcomeYes,
		Side:      normSide,
		Price:     normPrice,
		Size:      size,
		Escrow:    escrow,
	}
	if normSide == domain.SideAsk {
		res.TakerSide = domain.OutcomeNo
	}

	remaining := size
	for remaining > 0 {
		maker, ok := bestCrossing(book, normSide, normPrice)
		if !ok {
			break
		}
		n := min(remaining, maker.Size)
		res.Fills = append(res.Fills, domain.Fill{
			MarketID:  m.ID,
			OrderID:   maker.ID,
			Maker:     maker.Owner,
			Taker:     owner,
			TakerSide: res.TakerSide,
			Price:     maker.Price,
			Size:      n,
			CreatedAt: now,
		})
		// Fills execute at the maker's price; the taker's improvement per
		// share is bounded by the limit price, so this cannot overflow the
		// escrowed amount.
		if normSide == domain.SideBid {
			res.Release += (normPrice - maker.Price) * n
		} else {
			res.Release += (maker.Price - normPrice) * n
		}
		if res.TakerSide == domain.OutcomeYes {
			m.YesVolume += n
		} else {
			m.NoVolume += n
		}
		remaining -= n
		maker.Size -= n
		if maker.Size == 0 {
			popBest(book, normSide)
		}
	}
	res.Filled = size - remaining

	if remaining > 0 {
		list := book.Side(normSide)
		if len(list) >= domain.MaxOrdersPerSide {
			return nil, domain.ErrOrderBookFull
		}
		book.Seq++
		order := domain.Order{
			ID:       book.Seq,
			Owner:    owner,
			Price:    normPrice,
			Size:     remaining,
			PlacedAt: now,
		}
		book.SetSide(normSide, insertByPriority(list, normSide, order))
		res.Resting = &order
	}
	return res, nil
}

// CancelOrder removes a resting order addressed by book side and index and
// reports the collateral to hand back. Cancellation stays open after
// resolution so unfilled collateral is never stranded.
func CancelOrder(book *domain.OrderBook, owner string, side domain.BookSide, index int) (domain.Order, int64, error) {
	list := book.Side(side)
	if index < 0 || index >= len(list) {
		return domain.Order{}, 0, domain.ErrInvalidOrderIndex
	}
	o := list[index]
	if o.Owner != owner {
		return domain.Order{}, 0, domain.ErrNotOrderOwner
	}
	refund, err := Collateral(side, o.Price, o.Size)
	if err != nil {
		return domain.Order{}, 0, err
	}
	book.SetSide(side, append(list[:index], list[index+1:]...))
	return o, refund, nil
}

// bestCrossing returns the front of the opposite side when it crosses the
// incoming limit price.
func bestCrossing(book *domain.OrderBook, side domain.BookSide, price int64) (*domain.Order, bool) {
	if side == domain.SideBid {
		if len(book.Asks) == 0 || book.Asks[0].Price > price {
			return nil, false
		}
		return &book.Asks[0], true
	}
	if len(book.Bids) == 0 || book.Bids[0].Price < price {
		return nil, false
	}
	return &book.Bids[0], true
}

func popBest(book *domain.OrderBook, side domain.BookSide) {
	if side == domain.SideBid {
		book.Asks = book.Asks[1:]
	} else {
		book.Bids = book.Bids[1:]
	}
}

// insertByPriority places an order before the first strictly worse-priced
// entry, which keeps bids non-increasing, asks non-decreasing, and arrival
// order within a price level.
func insertByPriority(list []domain.Order, side domain.BookSide, o domain.Order) []domain.Order {
	idx := len(list)
	for i := range list {
		if side == domain.SideBid && list[i].Price < o.Price {
			idx = i
			break
		}
		if side == domain.SideAsk && list[i].Price > o.Price {
			idx = i
			break
		}
	}
	list = append(list, domain.Order{})
	copy(list[idx+1:], list[idx:])
	list[idx] = o
	return list
}
