package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

type positionStore struct {
	v view
}

func (p positionStore) Create(_ context.Context, pos domain.Position) error {
	return p.v.with(func(st *state) error {
		if _, ok := st.positions[pos.ID]; ok {
			return fmt.Errorf("memory: position %s: %w", pos.ID, domain.ErrAlreadyExists)
		}
		if pos.UpdatedAt.IsZero() {
			pos.UpdatedAt = p.v.s.now()
		}
		st.positions[pos.ID] = pos
		return nil
	})
}

func (p positionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	var out domain.Position
	err := p.v.with(func(st *state) error {
		pos, ok := st.positions[id]
		if !ok {
			return fmt.Errorf("memory: position %s: %w", id, domain.ErrNotFound)
		}
		out = pos
		return nil
	})
	return out, err
}

func (p positionStore) GetForUpdate(ctx context.Context, id string) (domain.Position, error) {
	return p.GetByID(ctx, id)
}

func (p positionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	var out []domain.Position
	err := p.v.with(func(st *state) error {
		for _, pos := range st.positions {
			if pos.IsOpen() {
				out = append(out, pos)
			}
		}
		return nil
	})
	sortPositions(out)
	return out, err
}

func (p positionStore) ListByUser(_ context.Context, userID string, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	err := p.v.with(func(st *state) error {
		for _, pos := range st.positions {
			if pos.UserID != userID || (status != "" && pos.Status != status) || !inWindow(pos.OpenedAt, opts) {
				continue
			}
			out = append(out, pos)
		}
		return nil
	})
	sortPositions(out)
	return paginate(out, opts), err
}

func (p positionStore) ListClosedBefore(_ context.Context, before time.Time) ([]domain.Position, error) {
	var out []domain.Position
	err := p.v.with(func(st *state) error {
		for _, pos := range st.positions {
			if !pos.IsOpen() && pos.ClosedAt != nil && pos.ClosedAt.Before(before) {
				out = append(out, pos)
			}
		}
		return nil
	})
	sortPositions(out)
	return out, err
}

func (p positionStore) UpdateTrailing(_ context.Context, id string, highestPrice, stopLossPrice float64) (bool, error) {
	applied := false
	err := p.v.with(func(st *state) error {
		pos, ok := st.positions[id]
		if !ok {
			return fmt.Errorf("memory: position %s: %w", id, domain.ErrNotFound)
		}
		if !pos.IsOpen() || pos.StopLossPrice == nil || stopLossPrice <= *pos.StopLossPrice {
			return nil
		}
		pos.HighestPrice = highestPrice
		pos.StopLossPrice = domain.Float64Ptr(stopLossPrice)
		pos.UpdatedAt = p.v.s.now()
		st.positions[id] = pos
		applied = true
		return nil
	})
	return applied, err
}

func (p positionStore) RecordPartialExit(_ context.Context, params domain.PartialExitParams) error {
	return p.v.with(func(st *state) error {
		pos, ok := st.positions[params.ID]
		if !ok {
			return fmt.Errorf("memory: position %s: %w", params.ID, domain.ErrNotFound)
		}
		if !pos.IsOpen() {
			return fmt.Errorf("memory: position %s: %w", params.ID, domain.ErrPositionClosed)
		}
		pos.Quantity = params.Quantity
		pos.TakeProfitLevelsHit = params.LevelsHit
		pos.RealizedPnL = params.RealizedPnL
		pos.UpdatedAt = p.v.s.now()
		st.positions[params.ID] = pos
		return nil
	})
}

func (p positionStore) Close(_ context.Context, params domain.ClosePositionParams) error {
	return p.v.with(func(st *state) error {
		pos, ok := st.positions[params.ID]
		if !ok {
			return fmt.Errorf("memory: position %s: %w", params.ID, domain.ErrNotFound)
		}
		if !pos.IsOpen() {
			return fmt.Errorf("memory: position %s: %w", params.ID, domain.ErrPositionClosed)
		}
		reason := params.Reason
		closedAt := params.ClosedAt
		pos.Status = domain.PositionStatusClosed
		pos.ExitPrice = domain.Float64Ptr(params.ExitPrice)
		pos.ExitReason = &reason
		pos.RealizedPnL = params.RealizedPnL
		pos.ClosedAt = &closedAt
		pos.Quantity = 0
		pos.UpdatedAt = p.v.s.now()
		st.positions[params.ID] = pos
		return nil
	})
}
