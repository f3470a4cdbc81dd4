// Package feed pumps external push streams into the engine: venue fill
// notifications into the linked-order poller and published prices into the
// price cache.
package feed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// FillSource streams venue fills into out until ctx is done.
type FillSource interface {
	Run(ctx context.Context, out chan<- domain.FillEvent) error
}

// FillHandler reacts to one fill.
type FillHandler interface {
	HandleFill(ctx context.Context, fill domain.FillEvent) error
}

// FillFeed connects a FillSource to a FillHandler. Handler errors are logged
// and do not stop the feed; the poller reconciles anything missed.
type FillFeed struct {
	source  FillSource
	handler FillHandler
	buffer  int
	logger  *slog.Logger
}

// NewFillFeed creates a FillFeed.
func NewFillFeed(source FillSource, handler FillHandler, buffer int, logger *slog.Logger) *FillFeed {
	if buffer <= 0 {
		buffer = 64
	}
	return &FillFeed{
		source:  source,
		handler: handler,
		buffer:  buffer,
		logger:  logger.With(slog.String("component", "fill_feed")),
	}
}

// Run blocks until ctx is cancelled or the source fails.
func (f *FillFeed) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "fill feed started")
	defer f.logger.Info("fill feed stopped")

	ch := make(chan domain.FillEvent, f.buffer)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.source.Run(ctx, ch)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case fill := <-ch:
				f.handle(ctx, fill)
			}
		}
	})
	return g.Wait()
}

func (f *FillFeed) handle(ctx context.Context, fill domain.FillEvent) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.ErrorContext(ctx, "fill handler panicked",
				slog.String("offer_id", fill.OfferID),
				slog.Any("panic", r),
			)
		}
	}()
	if err := f.handler.HandleFill(ctx, fill); err != nil {
		f.logger.WarnContext(ctx, "fill handling failed",
			slog.String("offer_id", fill.OfferID),
			slog.Float64("amount", fill.Amount),
			slog.String("error", err.Error()),
		)
	}
}
