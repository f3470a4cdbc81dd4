package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// ExclusiveRunGate admits at most one run of a job at a time. TryEnter never
// blocks: when another run holds the gate it returns ok=false and the caller
// skips its run.
type ExclusiveRunGate interface {
	TryEnter(ctx context.Context) (release func(), ok bool, err error)
}

// LocalGate is an in-process gate for a single scheduler instance.
type LocalGate struct {
	running atomic.Bool
}

// TryEnter implements ExclusiveRunGate.
func (g *LocalGate) TryEnter(context.Context) (func(), bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.running.Store(false)
		}
	}, true, nil
}

// LeaseGate extends a LocalGate with a distributed TTL lease keyed by job
// name so that only one instance in a deployment runs the job per tick. The
// TTL must outlive the slowest expected run.
type LeaseGate struct {
	local LocalGate
	locks domain.LockManager
	key   string
	ttl   time.Duration
}

// NewLeaseGate creates a LeaseGate for job.
func NewLeaseGate(locks domain.LockManager, job string, ttl time.Duration) *LeaseGate {
	return &LeaseGate{locks: locks, key: "job:" + job, ttl: ttl}
}

// TryEnter implements ExclusiveRunGate. A lease held by another instance is
// reported as ok=false, not as an error.
func (g *LeaseGate) TryEnter(ctx context.Context) (func(), bool, error) {
	releaseLocal, ok, _ := g.local.TryEnter(ctx)
	if !ok {
		return nil, false, nil
	}
	unlock, err := g.locks.Acquire(ctx, g.key, g.ttl)
	if err != nil {
		releaseLocal()
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return func() {
		unlock()
		releaseLocal()
	}, true, nil
}
