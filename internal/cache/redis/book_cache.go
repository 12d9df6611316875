package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomex/settle/internal/domain"
)

// snapshotTTL is deliberately short: snapshots go stale with every order,
// and invalidation on commit already covers the common case. The TTL only
// bounds staleness if an invalidate is lost.
const snapshotTTL = 10 * time.Second

// BookCache implements domain.BookCache with JSON snapshots under
// book:{marketID}. Only the aggregated public view is cached, never the
// owner-attributed resting orders.
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(marketID string) string { return "book:" + marketID }

// SetSnapshot stores an aggregated book snapshot.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", snap.MarketID, err)
	}
	if err := bc.rdb.Set(ctx, bookKey(snap.MarketID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", snap.MarketID, err)
	}
	return nil
}

// GetSnapshot retrieves a book snapshot, domain.ErrNotFound on a miss.
func (bc *BookCache) GetSnapshot(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, bookKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookSnapshot{}, domain.ErrNotFound
		}
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s: %w", marketID, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: unmarshal book %s: %w", marketID, err)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot of one market.
func (bc *BookCache) Invalidate(ctx context.Context, marketID string) error {
	if err := bc.rdb.Del(ctx, bookKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate book %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
