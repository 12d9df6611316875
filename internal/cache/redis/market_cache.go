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

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized market data. Cached reads serve the market detail endpoints;
// every settlement instruction invalidates on commit.
//
// Key schema:
//
//	market:{id}     - hash with field "data" containing a parimutuel market
//	clobmarket:{id} - hash with field "data" containing a CLOB market
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id string) string     { return "market:" + id }
func clobMarketKey(id string) string { return "clobmarket:" + id }

// SetMarket stores a parimutuel market with a 5-minute TTL.
func (mc *MarketCache) SetMarket(ctx context.Context, market domain.Market) error {
	return mc.set(ctx, marketKey(market.ID), market)
}

// GetMarket retrieves a parimutuel market, domain.ErrNotFound on a miss.
func (mc *MarketCache) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var market domain.Market
	if err := mc.get(ctx, marketKey(id), &market); err != nil {
		return domain.Market{}, err
	}
	return market, nil
}

// SetClobMarket stores a CLOB market with a 5-minute TTL.
func (mc *MarketCache) SetClobMarket(ctx context.Context, market domain.ClobMarket) error {
	return mc.set(ctx, clobMarketKey(market.ID), market)
}

// GetClobMarket retrieves a CLOB market, domain.ErrNotFound on a miss.
func (mc *MarketCache) GetClobMarket(ctx context.Context, id string) (domain.ClobMarket, error) {
	var market domain.ClobMarket
	if err := mc.get(ctx, clobMarketKey(id), &market); err != nil {
		return domain.ClobMarket{}, err
	}
	return market, nil
}

// Invalidate removes the cached copies of a market id, both kinds.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(id))
	pipe.Del(ctx, clobMarketKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

func (mc *MarketCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (mc *MarketCache) get(ctx context.Context, key string, v any) error {
	data, err := mc.rdb.HGet(ctx, key, "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
