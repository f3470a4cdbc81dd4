package linkedorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// OCOEngine runs one-cancels-other orders: two resting limit offers where
// the first to fill cancels the other.
//
// Fill detection is by absence: an offer no longer on the book is treated as
// filled. When both legs are found absent in the same check the stop-loss
// leg is checked first and wins. Without a venue-side cancel-on-fill
// primitive this is a race, not a linearizable outcome.
type OCOEngine struct {
	engine
}

// NewOCOEngine creates an OCOEngine.
func NewOCOEngine(
	store domain.Store,
	venue domain.VenueGateway,
	keys domain.KeyResolver,
	announcer Announcer,
	venueTimeout time.Duration,
	logger *slog.Logger,
) *OCOEngine {
	return &OCOEngine{
		engine: newEngine(store, venue, keys, announcer, venueTimeout,
			logger.With(slog.String("component", "oco_engine"))),
	}
}

// CreateOrder validates p, persists an ACTIVE order and places both legs in
// one all-or-nothing venue call. A venue failure leaves the order CANCELLED
// with the error recorded; the order is returned alongside the error.
func (e *OCOEngine) CreateOrder(ctx context.Context, p OCOParams) (domain.AdvancedOrder, error) {
	now := e.now()
	if err := p.Validate(now); err != nil {
		return domain.AdvancedOrder{}, err
	}
	key, err := e.signingKey(ctx, p.UserID)
	if err != nil {
		return domain.AdvancedOrder{}, err
	}

	o := domain.AdvancedOrder{
		ID:         uuid.New().String(),
		UserID:     p.UserID,
		Type:       domain.AdvancedOrderOCO,
		Status:     domain.AdvancedOrderActive,
		Pair:       p.Pair,
		PositionID: p.PositionID,
		OCO: &domain.OCOPayload{
			StopLoss:   domain.OCOLeg{TriggerPrice: p.StopLossPrice, Amount: p.Amount},
			TakeProfit: domain.OCOLeg{TriggerPrice: p.TakeProfitPrice, Amount: p.Amount},
		},
		ExpiresAt: p.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.AdvancedOrders().Create(ctx, o); err != nil {
		return domain.AdvancedOrder{}, fmt.Errorf("oco: persist order: %w", err)
	}
	log := e.logger.With(slog.String("order_id", o.ID), slog.String("user_id", o.UserID))

	vctx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	ids, err := e.venue.SubmitLimitOffers(vctx, []domain.OfferRequest{
		{Pair: p.Pair, Amount: p.Amount, Price: p.StopLossPrice, SigningKey: key},
		{Pair: p.Pair, Amount: p.Amount, Price: p.TakeProfitPrice, SigningKey: key},
	})
	cancel()
	if err == nil && len(ids) != 2 {
		err = fmt.Errorf("venue returned %d offer ids for 2 legs", len(ids))
	}
	if err != nil {
		o.Status = domain.AdvancedOrderCancelled
		o.ErrorMessage = err.Error()
		if uerr := e.store.AdvancedOrders().Update(ctx, o); uerr != nil {
			log.ErrorContext(ctx, "record oco placement failure", slog.String("error", uerr.Error()))
		}
		log.WarnContext(ctx, "oco placement failed", slog.String("error", err.Error()))
		e.announce(ctx, domain.EventAdvancedOrderFailed, domain.EventKindAlert, o, map[string]any{"error": err.Error()})
		return o, fmt.Errorf("oco: place legs: %w", errors.Join(domain.ErrVenue, err))
	}

	o.OCO.StopLoss.OfferID = ids[0]
	o.OCO.TakeProfit.OfferID = ids[1]
	if err := e.store.AdvancedOrders().Update(ctx, o); err != nil {
		// The stored order does not know its legs; pull them off the book.
		for _, id := range ids {
			if cerr := e.cancelOffer(ctx, id, p.Pair, key); cerr != nil {
				log.ErrorContext(ctx, "orphaned oco leg left on book",
					slog.String("offer_id", id),
					slog.String("error", cerr.Error()),
				)
			}
		}
		o.Status = domain.AdvancedOrderCancelled
		o.ErrorMessage = err.Error()
		e.announce(ctx, domain.EventAdvancedOrderFailed, domain.EventKindAlert, o, map[string]any{"error": err.Error()})
		return o, fmt.Errorf("oco: record offer ids: %w", err)
	}
	log.InfoContext(ctx, "oco order placed",
		slog.String("stop_loss_offer", ids[0]),
		slog.String("take_profit_offer", ids[1]),
	)
	return o, nil
}

// CheckAndExecute detects a filled leg and settles the order. It reports
// whether this call moved the order to FILLED. Orders that are not ACTIVE
// are left untouched.
func (e *OCOEngine) CheckAndExecute(ctx context.Context, orderID string) (domain.AdvancedOrder, bool, error) {
	var (
		out          domain.AdvancedOrder
		triggered    bool
		cancelFailed error
	)
	err := e.store.InTx(ctx, func(tx domain.TxStores) error {
		triggered, cancelFailed = false, nil

		o, err := tx.AdvancedOrders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		out = o
		if o.Status != domain.AdvancedOrderActive || o.OCO == nil {
			return nil
		}

		var filled domain.OCOLegKind
		for _, kind := range []domain.OCOLegKind{domain.OCOLegStopLoss, domain.OCOLegTakeProfit} {
			leg := o.OCO.Leg(kind)
			if leg.OfferID == "" {
				continue
			}
			exists, err := e.offerExists(ctx, leg.OfferID)
			if err != nil {
				return err
			}
			if !exists {
				filled = kind
				break
			}
		}
		if filled == "" {
			return nil
		}

		sibling := o.OCO.Leg(filled.Sibling())
		if sibling.OfferID != "" {
			key, err := e.signingKey(ctx, o.UserID)
			if err == nil {
				err = e.cancelOffer(ctx, sibling.OfferID, o.Pair, key)
			}
			cancelFailed = err
		}

		now := e.now()
		leg := o.OCO.Leg(filled)
		leg.Executed = true
		leg.ExecutedAt = &now
		o.OCO.TriggeredLeg = &filled
		o.Status = domain.AdvancedOrderFilled
		if cancelFailed != nil {
			o.ErrorMessage = cancelFailed.Error()
		}
		if err := tx.AdvancedOrders.Update(ctx, o); err != nil {
			return err
		}
		out, triggered = o, true
		return nil
	})
	if err != nil {
		return domain.AdvancedOrder{}, false, fmt.Errorf("oco: check %s: %w", orderID, err)
	}
	if !triggered {
		return out, false, nil
	}

	leg := *out.OCO.TriggeredLeg
	log := e.logger.With(slog.String("order_id", out.ID), slog.String("triggered_leg", string(leg)))
	if cancelFailed != nil {
		log.WarnContext(ctx, "sibling cancel failed", slog.String("error", cancelFailed.Error()))
	}
	log.InfoContext(ctx, "oco order triggered")
	e.announce(ctx, domain.EventOCOTriggered, domain.EventKindTrigger, out, map[string]any{
		"triggeredLeg":     string(leg),
		"triggerPrice":     out.OCO.Leg(leg).TriggerPrice,
		"amount":           out.OCO.Leg(leg).Amount,
		"siblingCancelled": cancelFailed == nil,
	})
	return out, true, nil
}

// CancelOrder cancels both unexecuted legs. If every attempted cancel fails
// the order stays ACTIVE and an error is returned; otherwise the order is
// CANCELLED and any residual failure is recorded on it.
func (e *OCOEngine) CancelOrder(ctx context.Context, orderID string) (domain.AdvancedOrder, error) {
	var out domain.AdvancedOrder
	err := e.store.InTx(ctx, func(tx domain.TxStores) error {
		o, err := tx.AdvancedOrders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Type != domain.AdvancedOrderOCO || o.OCO == nil {
			return fmt.Errorf("%w: order %s is not an oco order", domain.ErrInvalidOrder, o.ID)
		}
		if o.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidState, o.ID, o.Status)
		}

		key, err := e.signingKey(ctx, o.UserID)
		if err != nil {
			return err
		}
		var attempted int
		var failures []error
		for _, kind := range []domain.OCOLegKind{domain.OCOLegStopLoss, domain.OCOLegTakeProfit} {
			leg := o.OCO.Leg(kind)
			if leg.Executed || leg.OfferID == "" {
				continue
			}
			attempted++
			if err := e.cancelOffer(ctx, leg.OfferID, o.Pair, key); err != nil {
				failures = append(failures, fmt.Errorf("%s leg: %w", kind, err))
			}
		}
		if attempted > 0 && len(failures) == attempted {
			return errors.Join(domain.ErrVenue, errors.Join(failures...))
		}

		o.Status = domain.AdvancedOrderCancelled
		if len(failures) > 0 {
			o.ErrorMessage = errors.Join(failures...).Error()
		}
		if err := tx.AdvancedOrders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.AdvancedOrder{}, fmt.Errorf("oco: cancel %s: %w", orderID, err)
	}

	e.logger.InfoContext(ctx, "oco order cancelled",
		slog.String("order_id", out.ID),
		slog.String("residual_error", out.ErrorMessage),
	)
	e.announce(ctx, domain.EventOCOCancelled, domain.EventKindState, out, nil)
	return out, nil
}

// Expire cancels the legs of an expired order and marks it EXPIRED.
func (e *OCOEngine) Expire(ctx context.Context, orderID string) (domain.AdvancedOrder, bool, error) {
	return e.expire(ctx, orderID, func(*domain.AdvancedOrder) {})
}
