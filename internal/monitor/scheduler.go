// Package monitor drives the periodic evaluation of open positions against
// live prices.
package monitor

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
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/executor"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/trigger"
)

// Exiter executes a triggered exit.
type Exiter interface {
	ExecuteExit(ctx context.Context, req executor.ExitRequest) (executor.ExitResult, error)
}

// Config is the validated scheduler configuration.
type Config struct {
	Interval     time.Duration
	Concurrency  int
	PriceTimeout time.Duration
}

// DefaultConfig returns the reference cadence: 30s ticks, 10 concurrent
// positions.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		Concurrency:  10,
		PriceTimeout: 10 * time.Second,
	}
}

// Validate checks cfg once at construction.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.PriceTimeout <= 0 {
		errs = append(errs, errors.New("price timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("monitor: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Summary aggregates one run.
type Summary struct {
	Checked             int           `json:"checked"`
	StopLossTriggered   int           `json:"stop_loss_triggered"`
	TakeProfitTriggered int           `json:"take_profit_triggered"`
	TrailingUpdated     int           `json:"trailing_updated"`
	Errors              int           `json:"errors"`
	Duration            time.Duration `json:"duration"`
}

// Scheduler ticks on a fixed interval and evaluates every open position.
type Scheduler struct {
	cfg       Config
	positions domain.PositionStore
	prices    domain.PriceSource
	exits     Exiter
	gate      ExclusiveRunGate
	announcer executor.Announcer
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

// NewScheduler creates a Scheduler. A nil gate defaults to a LocalGate.
func NewScheduler(
	cfg Config,
	positions domain.PositionStore,
	prices domain.PriceSource,
	exits Exiter,
	gate ExclusiveRunGate,
	announcer executor.Announcer,
	logger *slog.Logger,
) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gate == nil {
		gate = &LocalGate{}
	}
	return &Scheduler{
		cfg:       cfg,
		positions: positions,
		prices:    prices,
		exits:     exits,
		gate:      gate,
		announcer: announcer,
		logger:    logger.With(slog.String("component", "monitor")),
	}, nil
}

// Run ticks until ctx is cancelled. Each tick runs in its own goroutine so a
// slow run makes the following ticks skip instead of queueing. On shutdown
// Run waits for the in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "monitor started", slog.Duration("interval", s.cfg.Interval))
	defer s.logger.Info("monitor stopped")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.inflight.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				s.Tick(ctx)
			}()
		}
	}
}

// Tick performs one guarded run. It returns false when the run was skipped
// because another run held the gate.
func (s *Scheduler) Tick(ctx context.Context) (Summary, bool) {
	release, ok, err := s.gate.TryEnter(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "run gate failed, tick skipped", slog.String("error", err.Error()))
		return Summary{}, false
	}
	if !ok {
		s.logger.WarnContext(ctx, "previous run still in progress, tick skipped")
		return Summary{}, false
	}
	defer release()

	return s.RunOnce(ctx), true
}

// RunOnce evaluates all open positions once. The summary is always produced,
// including when the run fails part way.
func (s *Scheduler) RunOnce(ctx context.Context) (sum Summary) {
	start := time.Now()
	var c counters
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "monitor run panicked", slog.Any("panic", r))
			c.errors.Add(1)
		}
		sum = c.summary(time.Since(start))
		s.emit(ctx, sum)
	}()

	open, err := s.positions.ListOpen(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list open positions failed", slog.String("error", err.Error()))
		c.errors.Add(1)
		return
	}
	c.checked.Add(int64(len(open)))
	if len(open) == 0 {
		return
	}

	prices := s.fetchPrices(ctx, open)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, pos := range open {
		g.Go(func() error {
			s.processIsolated(gctx, pos, prices, &c)
			return nil
		})
	}
	_ = g.Wait()
	return
}

// fetchPrices performs the single batched lookup for the run. A failed
// lookup yields an empty map so every position is counted as an error.
func (s *Scheduler) fetchPrices(ctx context.Context, open []domain.Position) map[string]float64 {
	seen := make(map[string]struct{}, len(open))
	symbols := make([]string, 0, len(open))
	for _, pos := range open {
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		seen[pos.Symbol] = struct{}{}
		symbols = append(symbols, pos.Symbol)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PriceTimeout)
	defer cancel()
	prices, err := s.prices.GetBatchPrices(pctx, symbols)
	if err != nil {
		s.logger.ErrorContext(ctx, "batch price lookup failed",
			slog.Int("symbols", len(symbols)),
			slog.String("error", err.Error()),
		)
		return map[string]float64{}
	}
	return prices
}

func (s *Scheduler) processIsolated(ctx context.Context, pos domain.Position, prices map[string]float64, c *counters) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "position processing panicked",
				slog.String("position_id", pos.ID),
				slog.Any("panic", r),
			)
			c.errors.Add(1)
		}
	}()

	if err := s.process(ctx, pos, prices[pos.Symbol], c); err != nil {
		if errors.Is(err, domain.ErrPositionClosed) {
			return
		}
		c.errors.Add(1)
		s.logger.WarnContext(ctx, "position processing failed",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// process applies, in order: trailing update, stop-loss, take-profit. A
// stop-loss trigger ends processing of the position for this run.
func (s *Scheduler) process(ctx context.Context, pos domain.Position, price float64, c *counters) error {
	if price <= 0 {
		return fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, pos.Symbol)
	}

	if upd, ok := trigger.EvaluateTrailing(pos, price); ok {
		applied, err := s.positions.UpdateTrailing(ctx, pos.ID, upd.HighestPrice, upd.StopLossPrice)
		if err != nil {
			return fmt.Errorf("update trailing stop: %w", err)
		}
		if applied {
			old := *pos.StopLossPrice
			pos.HighestPrice = upd.HighestPrice
			pos.StopLossPrice = domain.Float64Ptr(upd.StopLossPrice)
			c.trailing.Add(1)
			s.announceTrailing(ctx, pos, old, price)
		}
	}

	if trigger.StopLossHit(pos, price) {
		res, err := s.exits.ExecuteExit(ctx, executor.ExitRequest{
			Position:     pos,
			Reason:       domain.ExitReasonStopLoss,
			CurrentPrice: price,
			FullClose:    true,
		})
		if err != nil {
			return err
		}
		if !res.Duplicate {
			c.stopLoss.Add(1)
		}
		return nil
	}

	if d, ok := trigger.EvaluateTakeProfit(pos, price); ok {
		res, err := s.exits.ExecuteExit(ctx, executor.ExitRequest{
			Position:     pos,
			Reason:       domain.ExitReasonTakeProfit,
			CurrentPrice: price,
			Quantity:     d.Quantity,
			FullClose:    d.FullClose,
			Level:        d.Level,
		})
		if err != nil {
			return err
		}
		if !res.Duplicate {
			c.takeProfit.Add(1)
		}
	}
	return nil
}

func (s *Scheduler) announceTrailing(ctx context.Context, pos domain.Position, oldStop, price float64) {
	s.logger.DebugContext(ctx, "trailing stop raised",
		slog.String("position_id", pos.ID),
		slog.Float64("old_stop", oldStop),
		slog.Float64("new_stop", *pos.StopLossPrice),
	)
	if s.announcer == nil {
		return
	}
	s.announcer.Announce(ctx, domain.Event{
		Name:     domain.EventTrailingStopUpdated,
		Kind:     domain.EventKindState,
		UserID:   pos.UserID,
		EntityID: pos.ID,
		Payload: map[string]any{
			"position":     pos.ID,
			"currentPrice": price,
			"highestPrice": pos.HighestPrice,
			"oldStop":      oldStop,
			"newStop":      *pos.StopLossPrice,
		},
	})
}

func (s *Scheduler) emit(ctx context.Context, sum Summary) {
	s.logger.InfoContext(ctx, "monitor run completed",
		slog.Int("checked", sum.Checked),
		slog.Int("stop_loss_triggered", sum.StopLossTriggered),
		slog.Int("take_profit_triggered", sum.TakeProfitTriggered),
		slog.Int("trailing_updated", sum.TrailingUpdated),
		slog.Int("errors", sum.Errors),
		slog.Duration("duration", sum.Duration),
	)
	if s.announcer == nil || sum.Checked == 0 {
		return
	}
	s.announcer.Announce(ctx, domain.Event{
		Name:     domain.EventMonitorRunCompleted,
		Kind:     domain.EventKindState,
		EntityID: "positions",
		Payload: map[string]any{
			"checked":             sum.Checked,
			"stopLossTriggered":   sum.StopLossTriggered,
			"takeProfitTriggered": sum.TakeProfitTriggered,
			"trailingUpdated":     sum.TrailingUpdated,
			"errors":              sum.Errors,
			"durationMs":          sum.Duration.Milliseconds(),
		},
	})
}

type counters struct {
	checked    atomic.Int64
	stopLoss   atomic.Int64
	takeProfit atomic.Int64
	trailing   atomic.Int64
	errors     atomic.Int64
}

func (c *counters) summary(d time.Duration) Summary {
	return Summary{
		Checked:             int(c.checked.Load()),
		StopLossTriggered:   int(c.stopLoss.Load()),
		TakeProfitTriggered: int(c.takeProfit.Load()),
		TrailingUpdated:     int(c.trailing.Load()),
		Errors:              int(c.errors.Load()),
		Duration:            d,
	}
}
