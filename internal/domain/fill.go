package domain

import "time"

// Fill records one match between an incoming order and a resting order.
// The taker is credited TakerSide shares at the maker's price; the maker is
// credited the opposite side. Fills are the append-only log positions
// derive from and the unit of archival.
type Fill struct {
	ID        string    `json:"id"` // uuid
	MarketID  string    `json:"market_id"`
	OrderID   int64     `json:"order_id"` // resting (maker) order id
	Maker     string    `json:"maker"`
	Taker     string    `json:"taker"`
	TakerSide Outcome   `json:"taker_side"`
	Price     int64     `json:"price"` // maker price, basis points
	Size      int64     `json:"size"`  // shares
	CreatedAt time.Time `json:"created_at"`
}
