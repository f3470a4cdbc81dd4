package domain

import (
	"context"
	"time"
)

// PriceSource supplies current prices for a batch of symbols. Symbols it
// cannot price are absent from the returned map.
type PriceSource interface {
	GetBatchPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// PriceCache is the Redis-backed price source that the external price-feed
// aggregator writes into.
type PriceCache interface {
	PriceSource
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and an append-only event stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
