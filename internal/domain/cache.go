package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateCache holds native/USD spot rates for a short TTL so that bursts of
// quote requests do not hammer the rate source. A miss is reported via the
// ok flag, not an error.
type RateCache interface {
	Get(ctx context.Context, symbol string) (rate decimal.Decimal, ok bool, err error)
	Set(ctx context.Context, symbol string, rate decimal.Decimal, ttl time.Duration) error
}

// DecimalsCache stores ERC20 decimal precisions keyed by chain and token
// address. Decimals are immutable on-chain, so entries never expire.
type DecimalsCache interface {
	Get(ctx context.Context, chain, token string) (decimals uint8, ok bool, err error)
	Set(ctx context.Context, chain, token string, decimals uint8) error
}

// SignalBus is a lightweight pub/sub channel for purchase status events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
