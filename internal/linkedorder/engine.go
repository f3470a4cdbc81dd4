package linkedorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// Announcer publishes engine events.
type Announcer interface {
	Announce(ctx context.Context, evt domain.Event)
}

// engine holds what the OCO and iceberg engines share.
type engine struct {
	store        domain.Store
	venue        domain.VenueGateway
	keys         domain.KeyResolver
	announcer    Announcer
	venueTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func newEngine(
	store domain.Store,
	venue domain.VenueGateway,
	keys domain.KeyResolver,
	announcer Announcer,
	venueTimeout time.Duration,
	logger *slog.Logger,
) engine {
	if venueTimeout <= 0 {
		venueTimeout = 15 * time.Second
	}
	return engine{
		store:        store,
		venue:        venue,
		keys:         keys,
		announcer:    announcer,
		venueTimeout: venueTimeout,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (e engine) signingKey(ctx context.Context, userID string) (string, error) {
	if e.keys == nil {
		return "", nil
	}
	key, err := e.keys.SigningKey(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("linkedorder: resolve signing key: %w", errors.Join(domain.ErrSigningFailed, err))
	}
	return key, nil
}

func (e engine) offerExists(ctx context.Context, offerID string) (bool, error) {
	vctx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	defer cancel()
	ok, err := e.venue.OfferExists(vctx, offerID)
	if err != nil {
		return false, fmt.Errorf("linkedorder: look up offer %s: %w", offerID, errors.Join(domain.ErrVenue, err))
	}
	return ok, nil
}

func (e engine) cancelOffer(ctx context.Context, offerID string, pair domain.AssetPair, signingKey string) error {
	vctx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	defer cancel()
	if err := e.venue.CancelOffer(vctx, offerID, pair, signingKey); err != nil {
		return fmt.Errorf("cancel offer %s: %w", offerID, err)
	}
	return nil
}

func (e engine) submitOffer(ctx context.Context, req domain.OfferRequest) (string, error) {
	vctx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	defer cancel()
	id, err := e.venue.SubmitLimitOffer(vctx, req)
	if err != nil {
		return "", fmt.Errorf("linkedorder: submit offer: %w", errors.Join(domain.ErrVenue, err))
	}
	return id, nil
}

func (e engine) announce(ctx context.Context, name string, kind domain.EventKind, o domain.AdvancedOrder, payload map[string]any) {
	if e.announcer == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order"] = o.ID
	payload["orderType"] = string(o.Type)
	payload["status"] = string(o.Status)
	if o.PositionID != nil {
		payload["position"] = *o.PositionID
	}
	e.announcer.Announce(ctx, domain.Event{
		Name:     name,
		Kind:     kind,
		UserID:   o.UserID,
		EntityID: o.ID,
		Payload:  payload,
	})
}

// expire cancels the order's outstanding offers best effort and marks it
// EXPIRED.
func (e engine) expire(ctx context.Context, orderID string, clear func(o *domain.AdvancedOrder)) (domain.AdvancedOrder, bool, error) {
	var (
		out     domain.AdvancedOrder
		expired bool
	)
	err := e.store.InTx(ctx, func(tx domain.TxStores) error {
		o, err := tx.AdvancedOrders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		out = o
		if o.Status.IsTerminal() || !o.IsExpired(e.now()) {
			return nil
		}

		key, err := e.signingKey(ctx, o.UserID)
		if err != nil {
			return err
		}
		var residual []error
		for _, id := range o.OfferIDs() {
			if err := e.cancelOffer(ctx, id, o.Pair, key); err != nil {
				residual = append(residual, err)
			}
		}
		clear(&o)
		o.Status = domain.AdvancedOrderExpired
		if len(residual) > 0 {
			o.ErrorMessage = errors.Join(residual...).Error()
		}
		if err := tx.AdvancedOrders.Update(ctx, o); err != nil {
			return err
		}
		out, expired = o, true
		return nil
	})
	if err != nil {
		return domain.AdvancedOrder{}, false, fmt.Errorf("linkedorder: expire %s: %w", orderID, err)
	}
	if expired {
		e.logger.InfoContext(ctx, "advanced order expired", slog.String("order_id", out.ID))
		e.announce(ctx, domain.EventAdvancedOrderExpired, domain.EventKindState, out, nil)
	}
	return out, expired, nil
}
