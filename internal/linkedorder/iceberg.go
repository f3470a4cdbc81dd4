package linkedorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// IcebergEngine runs iceberg orders: a large order exposed one display-sized
// slice at a time, refilled when the visible slice fills.
type IcebergEngine struct {
	engine
}

// NewIcebergEngine creates an IcebergEngine.
func NewIcebergEngine(
	store domain.Store,
	venue domain.VenueGateway,
	keys domain.KeyResolver,
	announcer Announcer,
	venueTimeout time.Duration,
	logger *slog.Logger,
) *IcebergEngine {
	return &IcebergEngine{
		engine: newEngine(store, venue, keys, announcer, venueTimeout,
			logger.With(slog.String("component", "iceberg_engine"))),
	}
}

// CreateOrder validates p, places the first slice and persists the order
// ACTIVE. Nothing is persisted if the first slice cannot be placed.
func (e *IcebergEngine) CreateOrder(ctx context.Context, p IcebergParams) (domain.AdvancedOrder, error) {
	now := e.now()
	if err := p.Validate(now); err != nil {
		return domain.AdvancedOrder{}, err
	}
	key, err := e.signingKey(ctx, p.UserID)
	if err != nil {
		return domain.AdvancedOrder{}, err
	}

	slice := nextSlice(p.DisplayAmount, p.TotalAmount, 0)
	offerID, err := e.submitOffer(ctx, domain.OfferRequest{
		Pair: p.Pair, Amount: slice, Price: p.LimitPrice, SigningKey: key,
	})
	if err != nil {
		return domain.AdvancedOrder{}, fmt.Errorf("iceberg: place first slice: %w", err)
	}

	o := domain.AdvancedOrder{
		ID:         uuid.New().String(),
		UserID:     p.UserID,
		Type:       domain.AdvancedOrderIceberg,
		Status:     domain.AdvancedOrderActive,
		Pair:       p.Pair,
		PositionID: p.PositionID,
		Iceberg: &domain.IcebergPayload{
			TotalAmount:            p.TotalAmount,
			DisplayAmount:          p.DisplayAmount,
			CurrentDisplayedAmount: slice,
			ActiveOfferID:          offerID,
			LimitPrice:             p.LimitPrice,
		},
		ExpiresAt: p.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.AdvancedOrders().Create(ctx, o); err != nil {
		if cerr := e.cancelOffer(ctx, offerID, p.Pair, key); cerr != nil {
			e.logger.ErrorContext(ctx, "orphaned iceberg slice left on book",
				slog.String("offer_id", offerID),
				slog.String("error", cerr.Error()),
			)
		}
		return domain.AdvancedOrder{}, fmt.Errorf("iceberg: persist order: %w", err)
	}

	e.logger.InfoContext(ctx, "iceberg order placed",
		slog.String("order_id", o.ID),
		slog.String("offer_id", offerID),
		slog.Float64("total", p.TotalAmount),
		slog.Float64("display", p.DisplayAmount),
	)
	return o, nil
}

// CheckAndRefill detects a filled slice, records the fill and exposes the
// next slice. It reports whether the order changed.
//
// A failed refill keeps the recorded fill and leaves the next slice pending:
// CurrentDisplayedAmount holds its size while ActiveOfferID stays empty, so
// the next check retries the placement without counting the fill twice.
func (e *IcebergEngine) CheckAndRefill(ctx context.Context, orderID string) (domain.AdvancedOrder, bool, error) {
	var (
		out       domain.AdvancedOrder
		changed   bool
		refillErr error
		event     string
	)
	err := e.store.InTx(ctx, func(tx domain.TxStores) error {
		changed, refillErr, event = false, nil, ""

		o, err := tx.AdvancedOrders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		out = o
		if o.Status.IsTerminal() || o.Iceberg == nil {
			return nil
		}
		ice := o.Iceberg

		if ice.ActiveOfferID != "" {
			exists, err := e.offerExists(ctx, ice.ActiveOfferID)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			filled := decimal.NewFromFloat(ice.FilledAmount).Add(decimal.NewFromFloat(ice.CurrentDisplayedAmount))
			if total := decimal.NewFromFloat(ice.TotalAmount); filled.GreaterThan(total) {
				filled = total
			}
			ice.FilledAmount = filled.InexactFloat64()
			ice.CurrentDisplayedAmount = 0
			ice.ActiveOfferID = ""
			changed = true
		}

		if ice.FilledAmount >= ice.TotalAmount {
			o.Status = domain.AdvancedOrderFilled
			o.ErrorMessage = ""
			event = domain.EventIcebergFilled
		} else {
			slice := nextSlice(ice.DisplayAmount, ice.TotalAmount, ice.FilledAmount)
			key, err := e.signingKey(ctx, o.UserID)
			var offerID string
			if err == nil {
				offerID, err = e.submitOffer(ctx, domain.OfferRequest{
					Pair: o.Pair, Amount: slice, Price: ice.LimitPrice, SigningKey: key,
				})
			}
			if err != nil {
				refillErr = err
				ice.CurrentDisplayedAmount = slice
				o.ErrorMessage = err.Error()
			} else {
				ice.ActiveOfferID = offerID
				ice.CurrentDisplayedAmount = slice
				ice.RefillCount++
				o.Status = domain.AdvancedOrderPartiallyFilled
				o.ErrorMessage = ""
				event = domain.EventIcebergRefilled
			}
			changed = true
		}

		if err := tx.AdvancedOrders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.AdvancedOrder{}, false, fmt.Errorf("iceberg: check %s: %w", orderID, err)
	}

	log := e.logger.With(slog.String("order_id", out.ID))
	if refillErr != nil {
		log.WarnContext(ctx, "iceberg refill failed", slog.String("error", refillErr.Error()))
		e.announce(ctx, domain.EventAdvancedOrderFailed, domain.EventKindAlert, out, map[string]any{
			"error":        refillErr.Error(),
			"filledAmount": out.Iceberg.FilledAmount,
		})
	}
	if event != "" {
		log.InfoContext(ctx, "iceberg slice filled",
			slog.String("status", string(out.Status)),
			slog.Float64("filled", out.Iceberg.FilledAmount),
			slog.Int("refills", out.Iceberg.RefillCount),
		)
		kind := domain.EventKindState
		if event == domain.EventIcebergFilled {
			kind = domain.EventKindTrigger
		}
		e.announce(ctx, event, kind, out, map[string]any{
			"filledAmount":    out.Iceberg.FilledAmount,
			"totalAmount":     out.Iceberg.TotalAmount,
			"displayedAmount": out.Iceberg.CurrentDisplayedAmount,
			"refillCount":     out.Iceberg.RefillCount,
		})
	}
	return out, changed, nil
}

// CancelOrder cancels the visible slice. The hidden remainder was never on
// the book. Orders already in a terminal state are rejected.
func (e *IcebergEngine) CancelOrder(ctx context.Context, orderID string) (domain.AdvancedOrder, error) {
	var out domain.AdvancedOrder
	err := e.store.InTx(ctx, func(tx domain.TxStores) error {
		o, err := tx.AdvancedOrders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Type != domain.AdvancedOrderIceberg || o.Iceberg == nil {
			return fmt.Errorf("%w: order %s is not an iceberg order", domain.ErrInvalidOrder, o.ID)
		}
		if o.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidState, o.ID, o.Status)
		}

		if id := o.Iceberg.ActiveOfferID; id != "" {
			key, err := e.signingKey(ctx, o.UserID)
			if err != nil {
				return err
			}
			if err := e.cancelOffer(ctx, id, o.Pair, key); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrVenue, err)
			}
		}
		o.Iceberg.ActiveOfferID = ""
		o.Iceberg.CurrentDisplayedAmount = 0
		o.Status = domain.AdvancedOrderCancelled
		if err := tx.AdvancedOrders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.AdvancedOrder{}, fmt.Errorf("iceberg: cancel %s: %w", orderID, err)
	}

	e.logger.InfoContext(ctx, "iceberg order cancelled",
		slog.String("order_id", out.ID),
		slog.Float64("filled", out.Iceberg.FilledAmount),
	)
	e.announce(ctx, domain.EventIcebergCancelled, domain.EventKindState, out, map[string]any{
		"filledAmount": out.Iceberg.FilledAmount,
		"totalAmount":  out.Iceberg.TotalAmount,
	})
	return out, nil
}

// Expire cancels the visible slice of an expired order and marks it EXPIRED.
func (e *IcebergEngine) Expire(ctx context.Context, orderID string) (domain.AdvancedOrder, bool, error) {
	return e.expire(ctx, orderID, func(o *domain.AdvancedOrder) {
		o.Iceberg.ActiveOfferID = ""
		o.Iceberg.CurrentDisplayedAmount = 0
	})
}

// nextSlice returns min(display, total-filled).
func nextSlice(display, total, filled float64) float64 {
	remaining := decimal.NewFromFloat(total).Sub(decimal.NewFromFloat(filled))
	d := decimal.NewFromFloat(display)
	if remaining.LessThan(d) {
		return remaining.InexactFloat64()
	}
	return d.InexactFloat64()
}
