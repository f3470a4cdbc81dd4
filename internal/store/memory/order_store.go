package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

type exitOrderStore struct {
	v view
}

func (e exitOrderStore) Find(_ context.Context, key domain.ExitOrderKey) (domain.ExitOrder, error) {
	var out domain.ExitOrder
	err := e.v.with(func(st *state) error {
		for _, eo := range st.exitOrders {
			if eo.ExitOrderKey == key {
				out = eo
				return nil
			}
		}
		return fmt.Errorf("memory: exit order for %s: %w", key.PositionID, domain.ErrNotFound)
	})
	return out, err
}

func (e exitOrderStore) Insert(_ context.Context, eo domain.ExitOrder) error {
	return e.v.with(func(st *state) error {
		for _, existing := range st.exitOrders {
			if existing.ExitOrderKey == eo.ExitOrderKey {
				return fmt.Errorf("memory: exit order for %s: %w", eo.PositionID, domain.ErrAlreadyExists)
			}
		}
		st.exitOrders[eo.ID] = eo
		return nil
	})
}

func (e exitOrderStore) RecordFill(_ context.Context, id string, fillPrice, realizedPnL float64, filledAt time.Time) error {
	return e.v.with(func(st *state) error {
		eo, ok := st.exitOrders[id]
		if !ok {
			return fmt.Errorf("memory: exit order %s: %w", id, domain.ErrNotFound)
		}
		eo.FillPrice = fillPrice
		eo.RealizedPnL = realizedPnL
		eo.FilledAt = &filledAt
		st.exitOrders[id] = eo
		return nil
	})
}

func (e exitOrderStore) ListByPosition(_ context.Context, positionID string) ([]domain.ExitOrder, error) {
	var out []domain.ExitOrder
	err := e.v.with(func(st *state) error {
		for _, eo := range st.exitOrders {
			if eo.PositionID == positionID {
				out = append(out, eo)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

type advancedOrderStore struct {
	v view
}

func copyAdvanced(o domain.AdvancedOrder) domain.AdvancedOrder {
	if o.OCO != nil {
		oco := *o.OCO
		if oco.TriggeredLeg != nil {
			leg := *oco.TriggeredLeg
			oco.TriggeredLeg = &leg
		}
		o.OCO = &oco
	}
	if o.Iceberg != nil {
		ice := *o.Iceberg
		o.Iceberg = &ice
	}
	return o
}

func (a advancedOrderStore) Create(_ context.Context, o domain.AdvancedOrder) error {
	return a.v.with(func(st *state) error {
		if _, ok := st.advanced[o.ID]; ok {
			return fmt.Errorf("memory: advanced order %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = a.v.s.now()
		}
		st.advanced[o.ID] = copyAdvanced(o)
		return nil
	})
}

func (a advancedOrderStore) Update(_ context.Context, o domain.AdvancedOrder) error {
	return a.v.with(func(st *state) error {
		if _, ok := st.advanced[o.ID]; !ok {
			return fmt.Errorf("memory: advanced order %s: %w", o.ID, domain.ErrNotFound)
		}
		o.UpdatedAt = a.v.s.now()
		st.advanced[o.ID] = copyAdvanced(o)
		return nil
	})
}

func (a advancedOrderStore) GetByID(_ context.Context, id string) (domain.AdvancedOrder, error) {
	var out domain.AdvancedOrder
	err := a.v.with(func(st *state) error {
		o, ok := st.advanced[id]
		if !ok {
			return fmt.Errorf("memory: advanced order %s: %w", id, domain.ErrNotFound)
		}
		out = copyAdvanced(o)
		return nil
	})
	return out, err
}

func (a advancedOrderStore) GetForUpdate(ctx context.Context, id string) (domain.AdvancedOrder, error) {
	return a.GetByID(ctx, id)
}

func (a advancedOrderStore) FindByOfferID(_ context.Context, offerID string) (domain.AdvancedOrder, error) {
	var out domain.AdvancedOrder
	err := a.v.with(func(st *state) error {
		for _, o := range st.advanced {
			for _, id := range o.OfferIDs() {
				if id == offerID {
					out = copyAdvanced(o)
					return nil
				}
			}
		}
		return fmt.Errorf("memory: advanced order with offer %s: %w", offerID, domain.ErrNotFound)
	})
	return out, err
}

func (a advancedOrderStore) list(match func(o domain.AdvancedOrder) bool) ([]domain.AdvancedOrder, error) {
	var out []domain.AdvancedOrder
	err := a.v.with(func(st *state) error {
		for _, o := range st.advanced {
			if match(o) {
				out = append(out, copyAdvanced(o))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (a advancedOrderStore) ListLive(_ context.Context, orderType domain.AdvancedOrderType) ([]domain.AdvancedOrder, error) {
	return a.list(func(o domain.AdvancedOrder) bool {
		return o.Type == orderType && !o.Status.IsTerminal()
	})
}

func (a advancedOrderStore) ListByUser(_ context.Context, userID string, status domain.AdvancedOrderStatus, opts domain.ListOpts) ([]domain.AdvancedOrder, error) {
	out, err := a.list(func(o domain.AdvancedOrder) bool {
		return o.UserID == userID && (status == "" || o.Status == status) && inWindow(o.CreatedAt, opts)
	})
	return paginate(out, opts), err
}

func (a advancedOrderStore) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.AdvancedOrder, error) {
	return a.list(func(o domain.AdvancedOrder) bool {
		return o.Status.IsTerminal() && o.UpdatedAt.Before(before)
	})
}
