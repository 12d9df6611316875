package domain

import "time"

// Signal bus channels carrying settlement events. The WebSocket hub
// re-broadcasts each channel to subscribed clients.
const (
	ChannelFills       = "fills"
	ChannelResolutions = "resolutions"
	ChannelClaims      = "claims"

	// StreamEvents is the durable stream every event is appended to.
	StreamEvents = "settle:events"
)

// FillEvent is published on ChannelFills for every executed fill.
type FillEvent struct {
	MarketID  string    `json:"market_id"`
	OrderID   int64     `json:"order_id"`
	Maker     string    `json:"maker"`
	Taker     string    `json:"taker"`
	TakerSide Outcome   `json:"taker_side"`
	Price     int64     `json:"price"`
	Size      int64     `json:"size"`
	At        time.Time `json:"at"`
}

// ResolutionEvent is published on ChannelResolutions when an authority
// resolves a market.
type ResolutionEvent struct {
	Kind      MarketKind `json:"kind"`
	MarketID  string     `json:"market_id"`
	Outcome   string     `json:"outcome"` // outcome label (pool) or side (clob)
	Receipt   string     `json:"receipt,omitempty"`
	At        time.Time  `json:"at"`
}

// ClaimEvent is published on ChannelClaims when winnings are paid out.
type ClaimEvent struct {
	Kind     MarketKind `json:"kind"`
	MarketID string     `json:"market_id"`
	Claimer  string     `json:"claimer"`
	Gross    int64      `json:"gross"`
	Fee      int64      `json:"fee"`
	Net      int64      `json:"net"`
	Receipt  string     `json:"receipt,omitempty"`
	At       time.Time  `json:"at"`
}
