package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market snapshot lookups for read endpoints.
type MarketCache interface {
	SetMarket(ctx context.Context, market Market) error
	GetMarket(ctx context.Context, id string) (Market, error)
	SetClobMarket(ctx context.Context, market ClobMarket) error
	GetClobMarket(ctx context.Context, id string) (ClobMarket, error)
	Invalidate(ctx context.Context, id string) error
}

// BookCache stores aggregated book snapshots.
type BookCache interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, marketID string) (BookSnapshot, error)
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking for background jobs that must
// run on a single instance at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for settlement events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
