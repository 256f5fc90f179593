package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// RateCache implements domain.RateCache using plain Redis strings with a
// TTL. Rates are stored in decimal string form at "rate:{symbol}:usd" so no
// float round-trip can distort them.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(symbol string) string {
	return "rate:" + symbol + ":usd"
}

// Get returns the cached USD rate for a native currency symbol. A miss is
// reported via ok=false, not an error.
func (rc *RateCache) Get(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	val, err := rc.rdb.Get(ctx, rateKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: get rate %s: %w", symbol, err)
	}

	rate, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: parse cached rate %s: %w", symbol, err)
	}
	return rate, true, nil
}

// Set stores the rate with the given TTL.
func (rc *RateCache) Set(ctx context.Context, symbol string, rate decimal.Decimal, ttl time.Duration) error {
	if err := rc.rdb.Set(ctx, rateKey(symbol), rate.String(), ttl).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", symbol, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
