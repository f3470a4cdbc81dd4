package linkedorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/monitor"
)

// PollerConfig is the validated poller configuration.
type PollerConfig struct {
	Interval    time.Duration
	Concurrency int
}

// Validate checks cfg once at construction.
func (c PollerConfig) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("linkedorder: invalid poller config: %w", errors.Join(errs...))
	}
	return nil
}

// PollSummary aggregates one poll.
type PollSummary struct {
	Checked      int
	OCOTriggered int
	Refilled     int
	Filled       int
	Expired      int
	Errors       int
	Duration     time.Duration
}

// Poller reconciles live linked orders against the venue on a timer. It is
// also the entry point for push fill notifications.
type Poller struct {
	cfg     PollerConfig
	orders  domain.AdvancedOrderStore
	oco     *OCOEngine
	iceberg *IcebergEngine
	gate    monitor.ExclusiveRunGate
	logger  *slog.Logger
	now     func() time.Time

	inflight sync.WaitGroup
}

// NewPoller creates a Poller. A nil gate defaults to a monitor.LocalGate.
func NewPoller(
	cfg PollerConfig,
	orders domain.AdvancedOrderStore,
	oco *OCOEngine,
	iceberg *IcebergEngine,
	gate monitor.ExclusiveRunGate,
	logger *slog.Logger,
) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gate == nil {
		gate = &monitor.LocalGate{}
	}
	return &Poller{
		cfg:     cfg,
		orders:  orders,
		oco:     oco,
		iceberg: iceberg,
		gate:    gate,
		logger:  logger.With(slog.String("component", "linked_order_poller")),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run polls until ctx is cancelled, skipping ticks while a poll is running.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "linked order poller started", slog.Duration("interval", p.cfg.Interval))
	defer p.logger.Info("linked order poller stopped")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.inflight.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.inflight.Add(1)
			go func() {
				defer p.inflight.Done()
				p.Tick(ctx)
			}()
		}
	}
}

// Tick performs one guarded poll. It returns false when skipped.
func (p *Poller) Tick(ctx context.Context) (PollSummary, bool) {
	release, ok, err := p.gate.TryEnter(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "run gate failed, poll skipped", slog.String("error", err.Error()))
		return PollSummary{}, false
	}
	if !ok {
		p.logger.WarnContext(ctx, "previous poll still in progress, tick skipped")
		return PollSummary{}, false
	}
	defer release()
	return p.PollOnce(ctx), true
}

// PollOnce checks every live OCO and iceberg order once.
func (p *Poller) PollOnce(ctx context.Context) (sum PollSummary) {
	start := time.Now()
	var c pollCounters
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "poll panicked", slog.Any("panic", r))
			c.errors.Add(1)
		}
		sum = c.summary(time.Since(start))
		if sum.Checked > 0 {
			p.logger.InfoContext(ctx, "linked order poll completed",
				slog.Int("checked", sum.Checked),
				slog.Int("oco_triggered", sum.OCOTriggered),
				slog.Int("refilled", sum.Refilled),
				slog.Int("filled", sum.Filled),
				slog.Int("expired", sum.Expired),
				slog.Int("errors", sum.Errors),
				slog.Duration("duration", sum.Duration),
			)
		}
	}()

	var live []domain.AdvancedOrder
	for _, t := range []domain.AdvancedOrderType{domain.AdvancedOrderOCO, domain.AdvancedOrderIceberg} {
		orders, err := p.orders.ListLive(ctx, t)
		if err != nil {
			p.logger.ErrorContext(ctx, "list live orders failed",
				slog.String("type", string(t)),
				slog.String("error", err.Error()),
			)
			c.errors.Add(1)
			continue
		}
		live = append(live, orders...)
	}
	c.checked.Add(int64(len(live)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, o := range live {
		g.Go(func() error {
			p.checkIsolated(gctx, o, &c)
			return nil
		})
	}
	_ = g.Wait()
	return
}

// HandleFill routes a venue fill notification to the order owning the offer.
// Unknown offers are ignored.
func (p *Poller) HandleFill(ctx context.Context, fill domain.FillEvent) error {
	o, err := p.orders.FindByOfferID(ctx, fill.OfferID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("linkedorder: find order for offer %s: %w", fill.OfferID, err)
	}
	var c pollCounters
	return p.check(ctx, o, &c)
}

func (p *Poller) checkIsolated(ctx context.Context, o domain.AdvancedOrder, c *pollCounters) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "order check panicked",
				slog.String("order_id", o.ID),
				slog.Any("panic", r),
			)
			c.errors.Add(1)
		}
	}()
	if err := p.check(ctx, o, c); err != nil {
		c.errors.Add(1)
		p.logger.WarnContext(ctx, "order check failed",
			slog.String("order_id", o.ID),
			slog.String("type", string(o.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Poller) check(ctx context.Context, o domain.AdvancedOrder, c *pollCounters) error {
	if o.IsExpired(p.now()) {
		var expired bool
		var err error
		switch o.Type {
		case domain.AdvancedOrderOCO:
			_, expired, err = p.oco.Expire(ctx, o.ID)
		case domain.AdvancedOrderIceberg:
			_, expired, err = p.iceberg.Expire(ctx, o.ID)
		}
		if expired {
			c.expired.Add(1)
		}
		return err
	}

	switch o.Type {
	case domain.AdvancedOrderOCO:
		_, triggered, err := p.oco.CheckAndExecute(ctx, o.ID)
		if triggered {
			c.ocoTriggered.Add(1)
		}
		return err
	case domain.AdvancedOrderIceberg:
		updated, changed, err := p.iceberg.CheckAndRefill(ctx, o.ID)
		if err != nil {
			return err
		}
		if changed {
			if updated.Status == domain.AdvancedOrderFilled {
				c.filled.Add(1)
			} else if updated.ErrorMessage == "" {
				c.refilled.Add(1)
			} else {
				c.errors.Add(1)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidOrder, o.Type)
	}
}

type pollCounters struct {
	checked      atomic.Int64
	ocoTriggered atomic.Int64
	refilled     atomic.Int64
	filled       atomic.Int64
	expired      atomic.Int64
	errors       atomic.Int64
}

func (c *pollCounters) summary(d time.Duration) PollSummary {
	return PollSummary{
		Checked:      int(c.checked.Load()),
		OCOTriggered: int(c.ocoTriggered.Load()),
		Refilled:     int(c.refilled.Load()),
		Filled:       int(c.filled.Load()),
		Expired:      int(c.expired.Load()),
		Errors:       int(c.errors.Load()),
		Duration:     d,
	}
}
