// Package memory implements the domain store interfaces in process memory.
// It backs paper-trading runs and tests. Transactions serialize on a single
// mutex and apply to a private copy of the state that replaces the live
// state on commit.
//
// The mutex is held for the whole transaction, including any venue calls
// made inside it, so exits and linked-order checks run one at a time on this
// backend. Use postgres where checks must overlap.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

type state struct {
	positions  map[string]domain.Position
	exitOrders map[string]domain.ExitOrder
	advanced   map[string]domain.AdvancedOrder
}

func newState() *state {
	return &state{
		positions:  make(map[string]domain.Position),
		exitOrders: make(map[string]domain.ExitOrder),
		advanced:   make(map[string]domain.AdvancedOrder),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.positions {
		c.positions[k] = v
	}
	for k, v := range s.exitOrders {
		c.exitOrders[k] = v
	}
	for k, v := range s.advanced {
		c.advanced[k] = copyAdvanced(v)
	}
	return c
}

// Store is an in-memory domain.Store.
type Store struct {
	mu    sync.Mutex
	st    *state
	audit []domain.AuditEntry
	now   func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// view binds the store methods either to the live state (tx == nil) or to a
// transaction's private copy.
type view struct {
	s  *Store
	tx *state
}

func (v view) with(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.st)
}

// InTx runs fn against a copy of the state and swaps it in when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.st.clone()
	v := view{s: s, tx: tx}
	if err := fn(domain.TxStores{
		Positions:      positionStore{v},
		ExitOrders:     exitOrderStore{v},
		AdvancedOrders: advancedOrderStore{v},
	}); err != nil {
		return err
	}
	s.st = tx
	return nil
}

func (s *Store) Positions() domain.PositionStore           { return positionStore{view{s: s}} }
func (s *Store) ExitOrders() domain.ExitOrderStore         { return exitOrderStore{view{s: s}} }
func (s *Store) AdvancedOrders() domain.AdvancedOrderStore { return advancedOrderStore{view{s: s}} }
func (s *Store) Audit() domain.AuditStore                  { return auditStore{s} }

// Close is a no-op.
func (s *Store) Close() {}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

func inWindow(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && !t.Before(*opts.Until) {
		return false
	}
	return true
}

type auditStore struct {
	s *Store
}

func (a auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audit = append(a.s.audit, domain.AuditEntry{
		ID:        int64(len(a.s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: a.s.now(),
	})
	return nil
}

func (a auditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	out := make([]domain.AuditEntry, 0, len(a.s.audit))
	for i := len(a.s.audit) - 1; i >= 0; i-- {
		if inWindow(a.s.audit[i].CreatedAt, opts) {
			out = append(out, a.s.audit[i])
		}
	}
	return paginate(out, opts), nil
}

func sortPositions(ps []domain.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].OpenedAt.Equal(ps[j].OpenedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].OpenedAt.Before(ps[j].OpenedAt)
	})
}
