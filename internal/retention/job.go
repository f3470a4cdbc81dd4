// Package retention exports closed positions and terminal linked orders to
// cold storage on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// Job runs the archiver for records older than the retention window.
type Job struct {
	archiver  domain.Archiver
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJob creates a retention Job.
func NewJob(archiver domain.Archiver, retention time.Duration, logger *slog.Logger) *Job {
	return &Job{
		archiver:  archiver,
		retention: retention,
		logger:    logger.With(slog.String("component", "retention")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce archives positions and linked orders closed before now minus the
// retention window.
func (j *Job) RunOnce(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	j.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Duration("retention", j.retention),
	)

	positions, err := j.archiver.ArchivePositions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention: archive positions before %v: %w", cutoff, err)
	}
	orders, err := j.archiver.ArchiveAdvancedOrders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention: archive advanced orders before %v: %w", cutoff, err)
	}

	j.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("positions_archived", positions),
		slog.Int64("advanced_orders_archived", orders),
	)
	return nil
}

// RunCron runs the job on a 5-field cron schedule until ctx is cancelled.
// Failed runs are logged and retried at the next slot.
func (j *Job) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	j.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", expr))

	for {
		next, err := sched.Next(j.now())
		if err != nil {
			return err
		}
		wait := next.Sub(j.now())
		j.logger.Debug("archiver waiting for next run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
