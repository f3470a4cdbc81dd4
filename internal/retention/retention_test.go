package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleNext(t *testing.T) {
	base := time.Date(2026, 10, 16, 10, 30, 20, 0, time.UTC) // a Friday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 10, 16, 10, 31, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 10, 16, 10, 45, 0, 0, time.UTC)},
		{"0 9-17 * * 1-5", time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		{"30 4 * * 0", time.Date(2026, 10, 18, 4, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			require.NoError(t, err)
			got, err := s.Next(base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScheduleRejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "a * * * *", "5-1 * * * *"} {
		_, err := ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
}

type fakeArchiver struct {
	positionsBefore time.Time
	ordersCalled    bool
	err             error
}

func (f *fakeArchiver) ArchivePositions(_ context.Context, before time.Time) (int64, error) {
	f.positionsBefore = before
	return 3, f.err
}

func (f *fakeArchiver) ArchiveAdvancedOrders(context.Context, time.Time) (int64, error) {
	f.ordersCalled = true
	return 1, nil
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	arch := &fakeArchiver{}
	job := NewJob(arch, 30*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.RunOnce(context.Background()))
	assert.Equal(t, time.Date(2026, 9, 16, 0, 0, 0, 0, time.UTC), arch.positionsBefore)
	assert.True(t, arch.ordersCalled)
}

func TestRunOnceStopsOnPositionFailure(t *testing.T) {
	boom := errors.New("s3 down")
	arch := &fakeArchiver{err: boom}
	job := NewJob(arch, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, job.RunOnce(context.Background()), boom)
	assert.False(t, arch.ordersCalled)
}

func TestRunCronStopsOnCancel(t *testing.T) {
	job := NewJob(&fakeArchiver{}, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.RunCron(ctx, "0 3 * * *"), context.Canceled)
	assert.Error(t, job.RunCron(context.Background(), "bad"))
}
