package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// DecimalsCache implements domain.DecimalsCache. Token decimals are
// immutable on-chain, so entries are stored without expiry at
// "decimals:{chain}:{token}".
type DecimalsCache struct {
	rdb *redis.Client
}

// NewDecimalsCache creates a DecimalsCache backed by the given Client.
func NewDecimalsCache(c *Client) *DecimalsCache {
	return &DecimalsCache{rdb: c.Underlying()}
}

func decimalsKey(chain, token string) string {
	return "decimals:" + chain + ":" + token
}

// Get returns the cached decimal precision for a token. A miss is reported
// via ok=false, not an error.
func (dc *DecimalsCache) Get(ctx context.Context, chain, token string) (uint8, bool, error) {
	val, err := dc.rdb.Get(ctx, decimalsKey(chain, token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis: get decimals %s/%s: %w", chain, token, err)
	}

	n, err := strconv.ParseUint(val, 10, 8)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse cached decimals %s/%s: %w", chain, token, err)
	}
	return uint8(n), true, nil
}

// Set stores the decimal precision without expiry.
func (dc *DecimalsCache) Set(ctx context.Context, chain, token string, decimals uint8) error {
	key := decimalsKey(chain, token)
	if err := dc.rdb.Set(ctx, key, strconv.FormatUint(uint64(decimals), 10), 0).Err(); err != nil {
		return fmt.Errorf("redis: set decimals %s/%s: %w", chain, token, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DecimalsCache = (*DecimalsCache)(nil)
