package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// PriceCache implements domain.PriceCache over the hashes the price-feed
// aggregator maintains. Each symbol lives at "price:{symbol}" with fields
// "price" and "ts" (Unix nanoseconds).
//
// Quotes older than maxAge are reported as missing so the monitor never
// acts on a stale price.
type PriceCache struct {
	c      *Client
	maxAge time.Duration
	now    func() time.Time
}

// NewPriceCache creates a PriceCache. A zero maxAge accepts any age.
func NewPriceCache(c *Client, maxAge time.Duration) *PriceCache {
	return &PriceCache{c: c, maxAge: maxAge, now: time.Now}
}

func (pc *PriceCache) key(symbol string) string {
	return pc.c.Key("price", symbol)
}

// SetPrice stores the latest price and timestamp for a symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.c.rdb.HSet(ctx, pc.key(symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice returns the latest usable quote for symbol, or
// domain.ErrPriceUnavailable when it is missing, stale or non-positive.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.key(symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	price, ts, ok := pc.parse(vals)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return price, ts, nil
}

// GetBatchPrices fetches all symbols in one pipeline. Symbols without a
// usable quote are absent from the result.
func (pc *PriceCache) GetBatchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.c.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, s := range symbols {
		cmds[s] = pipe.HGetAll(ctx, pc.key(s))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: batch prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(symbols))
	for s, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, ok := pc.parse(vals); ok {
			result[s] = price
		}
	}
	return result, nil
}

func (pc *PriceCache) parse(vals map[string]string) (float64, time.Time, bool) {
	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil || price <= 0 {
		return 0, time.Time{}, false
	}
	nanos, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	ts := time.Unix(0, nanos)
	if pc.maxAge > 0 && pc.now().Sub(ts) > pc.maxAge {
		return 0, time.Time{}, false
	}
	return price, ts, true
}

var _ domain.PriceCache = (*PriceCache)(nil)
