package domain

import "time"

const (
	// PriceScale is the basis-point denominator: 10000 = 100% probability.
	PriceScale = 10000

	// SharePayout is the redemption value of one winning CLOB share, equal
	// to the full collateral behind a matched share pair.
	SharePayout = PriceScale

	// MaxOrdersPerSide bounds each resting list. This is a market rule, not
	// a capacity optimization.
	MaxOrdersPerSide = 50
)

// Order is a resting YES-denominated order.
type Order struct {
	ID       int64     `json:"id"` // monotonic per book, derived from the book sequence
	Owner    string    `json:"owner"`
	Price    int64     `json:"price"` // basis points, 1..9999
	Size     int64     `json:"size"`  // remaining shares
	PlacedAt time.Time `json:"placed_at"`
}

// OrderBook holds the two resting sides of one CLOB market. Bids are kept
// non-increasing in price and asks non-decreasing; arrival order is
// preserved within a price level.
type OrderBook struct {
	MarketID string
	Bids     []Order
	Asks     []Order
	Seq      int64 // last assigned order id
}

// Side returns the resting list for a book side.
func (b *OrderBook) Side(s BookSide) []Order {
	if s == SideBid {
		return b.Bids
	}
	return b.Asks
}

// SetSide replaces the resting list for a book side.
func (b *OrderBook) SetSide(s BookSide, orders []Order) {
	if s == SideBid {
		b.Bids = orders
	} else {
		b.Asks = orders
	}
}

// BestBid returns the highest resting bid.
func (b *OrderBook) BestBid() (Order, bool) {
	if len(b.Bids) == 0 {
		return Order{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest resting ask.
func (b *OrderBook) BestAsk() (Order, bool) {
	if len(b.Asks) == 0 {
		return Order{}, false
	}
	return b.Asks[0], true
}

// PriceLevel is one aggregated price+size entry of a book snapshot.
type PriceLevel struct {
	Price int64 `json:"price"`
	Size  int64 `json:"size"`
}

// BookSnapshot is the public view of a book: per-level aggregates without
// owner identities.
type BookSnapshot struct {
	MarketID string       `json:"market_id"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
	BestBid  int64        `json:"best_bid"` // 0 when the side is empty
	BestAsk  int64        `json:"best_ask"` // 0 when the side is empty
	At       time.Time    `json:"at"`
}

// Snapshot aggregates the book into price levels, preserving side order.
func (b *OrderBook) Snapshot(at time.Time) BookSnapshot {
	snap := BookSnapshot{
		MarketID: b.MarketID,
		Bids:     aggregateLevels(b.Bids),
		Asks:     aggregateLevels(b.Asks),
		At:       at,
	}
	if o, ok := b.BestBid(); ok {
		snap.BestBid = o.Price
	}
	if o, ok := b.BestAsk(); ok {
		snap.BestAsk = o.Price
	}
	return snap
}

func aggregateLevels(orders []Order) []PriceLevel {
	levels := make([]PriceLevel, 0, len(orders))
	for _, o := range orders {
		if n := len(levels); n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].Size += o.Size
			continue
		}
		levels = append(levels, PriceLevel{Price: o.Price, Size: o.Size})
	}
	return levels
}
