package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// PaperConfig tunes the simulated venue.
type PaperConfig struct {
	SlippageBps   float64
	MatchInterval time.Duration
}

type paperOffer struct {
	id     string
	pair   domain.AssetPair
	amount float64
	price  float64
	// fillsBelow is set when the offer was placed under the market and so
	// fills once the price falls to it.
	fillsBelow bool
}

// Paper is an in-process venue that fills offers against the price cache.
// Market exits fill at the cached price less slippage.
type Paper struct {
	prices domain.PriceSource
	cfg    PaperConfig
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	seq    int64
	offers map[string]*paperOffer
}

// NewPaper creates a paper venue pricing from prices.
func NewPaper(prices domain.PriceSource, cfg PaperConfig, logger *slog.Logger) *Paper {
	if cfg.MatchInterval <= 0 {
		cfg.MatchInterval = 5 * time.Second
	}
	return &Paper{
		prices: prices,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "paper_venue")),
		now:    func() time.Time { return time.Now().UTC() },
		offers: make(map[string]*paperOffer),
	}
}

func (p *Paper) price(ctx context.Context, symbol string) (float64, bool) {
	prices, err := p.prices.GetBatchPrices(ctx, []string{symbol})
	if err != nil {
		return 0, false
	}
	v, ok := prices[symbol]
	return v, ok && v > 0
}

func (p *Paper) place(ctx context.Context, req domain.OfferRequest) (*paperOffer, error) {
	if req.Amount <= 0 || req.Price <= 0 {
		return nil, fmt.Errorf("paper: offer amount and price must be positive")
	}
	ref, ok := p.price(ctx, req.Pair.Symbol())
	return &paperOffer{
		pair:       req.Pair,
		amount:     req.Amount,
		price:      req.Price,
		fillsBelow: ok && req.Price < ref,
	}, nil
}

func (p *Paper) SubmitLimitOffer(ctx context.Context, req domain.OfferRequest) (string, error) {
	offer, err := p.place(ctx, req)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.add(offer), nil
}

// SubmitLimitOffers validates every offer before booking any of them.
func (p *Paper) SubmitLimitOffers(ctx context.Context, reqs []domain.OfferRequest) ([]string, error) {
	placed := make([]*paperOffer, 0, len(reqs))
	for _, r := range reqs {
		offer, err := p.place(ctx, r)
		if err != nil {
			return nil, err
		}
		placed = append(placed, offer)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(placed))
	for _, o := range placed {
		ids = append(ids, p.add(o))
	}
	return ids, nil
}

// add books o. Caller holds p.mu.
func (p *Paper) add(o *paperOffer) string {
	p.seq++
	o.id = "paper-" + strconv.FormatInt(p.seq, 10)
	p.offers[o.id] = o
	return o.id
}

func (p *Paper) OfferExists(_ context.Context, offerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.offers[offerID]
	return ok, nil
}

func (p *Paper) CancelOffer(_ context.Context, offerID string, _ domain.AssetPair, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.offers[offerID]; !ok {
		return fmt.Errorf("paper: offer %s: %w", offerID, domain.ErrNotFound)
	}
	delete(p.offers, offerID)
	return nil
}

func (p *Paper) SubmitMarketSell(ctx context.Context, req domain.MarketExitRequest) (float64, error) {
	price, ok := p.price(ctx, req.Position.Symbol)
	if !ok {
		price = req.Price
	}
	if price <= 0 {
		return 0, fmt.Errorf("paper: no price for %s: %w", req.Position.Symbol, domain.ErrPriceUnavailable)
	}
	slip := decimal.NewFromFloat(p.cfg.SlippageBps).Div(decimal.NewFromInt(10_000))
	px := decimal.NewFromFloat(price)
	if req.Side == domain.ExitOrderSideBuy {
		px = px.Mul(decimal.NewFromInt(1).Add(slip))
	} else {
		px = px.Mul(decimal.NewFromInt(1).Sub(slip))
	}
	return px.Round(8).InexactFloat64(), nil
}

// Match fills every offer the current prices have crossed and removes it
// from the book.
func (p *Paper) Match(ctx context.Context) ([]domain.FillEvent, error) {
	p.mu.Lock()
	symbols := make(map[string]struct{})
	for _, o := range p.offers {
		symbols[o.pair.Symbol()] = struct{}{}
	}
	p.mu.Unlock()
	if len(symbols) == 0 {
		return nil, nil
	}

	list := make([]string, 0, len(symbols))
	for s := range symbols {
		list = append(list, s)
	}
	prices, err := p.prices.GetBatchPrices(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("paper: match prices: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var fills []domain.FillEvent
	for id, o := range p.offers {
		px, ok := prices[o.pair.Symbol()]
		if !ok {
			continue
		}
		crossed := px >= o.price
		if o.fillsBelow {
			crossed = px <= o.price
		}
		if !crossed {
			continue
		}
		delete(p.offers, id)
		fills = append(fills, domain.FillEvent{
			OfferID:   id,
			Amount:    o.amount,
			Price:     o.price,
			Timestamp: p.now(),
		})
	}
	sort.Slice(fills, func(i, j int) bool { return fills[i].OfferID < fills[j].OfferID })
	return fills, nil
}

// Run matches on every interval and pushes fills into out until ctx is done.
func (p *Paper) Run(ctx context.Context, out chan<- domain.FillEvent) error {
	ticker := time.NewTicker(p.cfg.MatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fills, err := p.Match(ctx)
			if err != nil {
				p.logger.WarnContext(ctx, "paper match failed", slog.String("error", err.Error()))
				continue
			}
			for _, f := range fills {
				select {
				case out <- f:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

var _ domain.VenueGateway = (*Paper)(nil)
