package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/feed"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/linkedorder"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/monitor"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/retention"
)

const announcerCleanupInterval = time.Minute

// MonitorMode runs the exit monitor: the scheduler that evaluates stop-loss,
// take-profit and trailing stops on every open position.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startMonitor(ctx, g, deps); err != nil {
		return err
	}
	a.startSupport(ctx, g, deps)
	return g.Wait()
}

// LinkedMode runs the OCO and iceberg poller and the fill feed.
func (a *App) LinkedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting linked order mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startLinked(ctx, g, deps); err != nil {
		return err
	}
	a.startSupport(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startMonitor(ctx, g, deps); err != nil {
		return err
	}
	if err := a.startLinked(ctx, g, deps); err != nil {
		return err
	}
	a.startSupport(ctx, g, deps)
	return g.Wait()
}

func (a *App) startMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.PriceCache == nil {
		return errors.New("monitor: the price cache requires redis")
	}
	var gate monitor.ExclusiveRunGate
	if a.cfg.Monitor.DistributedGate && deps.LockManager != nil {
		gate = monitor.NewLeaseGate(deps.LockManager, "monitor", a.cfg.Monitor.LeaseTTL.Duration)
	}
	sched, err := monitor.NewScheduler(monitor.Config{
		Interval:     a.cfg.Monitor.Interval.Duration,
		Concurrency:  a.cfg.Monitor.Concurrency,
		PriceTimeout: a.cfg.Monitor.PriceTimeout.Duration,
	}, deps.Store.Positions(), deps.PriceCache, deps.Coordinator, gate, deps.Announcer, a.logger)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return sched.Run(ctx)
	})

	if deps.SignalBus != nil && deps.PriceCache != nil {
		ingest := feed.NewPriceIngest(deps.SignalBus, deps.PriceCache, a.logger)
		g.Go(func() error {
			return ingest.Run(ctx)
		})
	}
	return nil
}

func (a *App) startLinked(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	var gate monitor.ExclusiveRunGate
	if a.cfg.Monitor.DistributedGate && deps.LockManager != nil {
		gate = monitor.NewLeaseGate(deps.LockManager, "linked_orders", a.cfg.Monitor.LeaseTTL.Duration)
	}
	poller, err := linkedorder.NewPoller(linkedorder.PollerConfig{
		Interval:    a.cfg.LinkedOrders.Interval.Duration,
		Concurrency: a.cfg.LinkedOrders.Concurrency,
	}, deps.Store.AdvancedOrders(), deps.OCO, deps.Iceberg, gate, a.logger)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return poller.Run(ctx)
	})

	// Paper offers only fill when matched, so the paper venue always feeds.
	var source feed.FillSource
	switch {
	case deps.Paper != nil:
		source = deps.Paper
	case deps.FillStream != nil:
		source = deps.FillStream
	}
	if source != nil {
		fills := feed.NewFillFeed(source, poller, a.cfg.LinkedOrders.FillBuffer, a.logger)
		g.Go(func() error {
			return fills.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "no fill stream configured, relying on polling")
	}
	return nil
}

// startSupport runs the housekeeping shared by every mode.
func (a *App) startSupport(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		ticker := time.NewTicker(announcerCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				deps.Announcer.Cleanup()
			}
		}
	})

	if deps.Archiver != nil {
		job := retention.NewJob(deps.Archiver,
			time.Duration(a.cfg.Archive.RetentionDays)*24*time.Hour, a.logger)
		g.Go(func() error {
			return job.RunCron(ctx, a.cfg.Archive.Cron)
		})
	}

	a.logger.InfoContext(ctx, "engine running",
		slog.String("venue", a.cfg.Venue.Kind),
		slog.String("store", a.cfg.Store.Backend),
		slog.Bool("notifications", deps.Notifier.Enabled()),
		slog.Bool("archive", deps.Archiver != nil),
	)
}
