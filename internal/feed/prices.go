package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// PricesChannel is the bus channel the price aggregator publishes to.
const PricesChannel = "prices"

// priceEvent is the JSON shape published to PricesChannel.
type priceEvent struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// PriceIngest subscribes to published prices and writes them into the price
// cache the monitor reads from.
type PriceIngest struct {
	bus    domain.SignalBus
	cache  domain.PriceCache
	logger *slog.Logger
	now    func() time.Time
}

// NewPriceIngest creates a PriceIngest.
func NewPriceIngest(bus domain.SignalBus, cache domain.PriceCache, logger *slog.Logger) *PriceIngest {
	return &PriceIngest{
		bus:    bus,
		cache:  cache,
		logger: logger.With(slog.String("component", "price_ingest")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run subscribes to PricesChannel and stores each update until ctx is done.
func (p *PriceIngest) Run(ctx context.Context) error {
	ch, err := p.bus.Subscribe(ctx, PricesChannel)
	if err != nil {
		return err
	}
	p.logger.Info("price ingest started")
	defer p.logger.Info("price ingest stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := p.handleMessage(ctx, data); err != nil {
				p.logger.Debug("price ingest handle message failed",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (p *PriceIngest) handleMessage(ctx context.Context, data []byte) error {
	var ev priceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return nil
	}
	if ev.Price <= 0 {
		return errors.New("non-positive price for " + symbol)
	}
	ts := p.now()
	if ev.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err == nil {
			ts = t.UTC()
		}
	}
	return p.cache.SetPrice(ctx, symbol, ev.Price, ts)
}
