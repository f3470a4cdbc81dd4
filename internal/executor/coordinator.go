package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/trigger"
)

// Announcer publishes engine events.
type Announcer interface {
	Announce(ctx context.Context, evt domain.Event)
}

// ExitRequest asks the coordinator to flatten (part of) a position.
type ExitRequest struct {
	Position     domain.Position
	Reason       domain.ExitReason
	CurrentPrice float64
	// Quantity is ignored when FullClose is set; the locked row's remaining
	// quantity is used instead.
	Quantity  float64
	FullClose bool
	// Level is the take-profit ladder level for partial exits, 0 otherwise.
	Level int
}

// ExitResult reports what ExecuteExit did.
type ExitResult struct {
	ExitOrderID   string
	ExecutedPrice float64
	Quantity      float64
	RealizedPnL   float64
	// Duplicate is set when an exit for the same key already existed and no
	// venue call was made.
	Duplicate bool
	Closed    bool
}

// Coordinator turns trigger decisions into at-most-once venue exits. The
// idempotency check, the exit record, the venue call and the position update
// share one transaction; the venue call is bounded by a timeout.
type Coordinator struct {
	store        domain.Transactor
	venue        domain.VenueGateway
	keys         domain.KeyResolver
	announcer    Announcer
	venueTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewCoordinator creates a Coordinator. keys may be nil when the venue does
// not need a signing key (paper trading).
func NewCoordinator(
	store domain.Transactor,
	venue domain.VenueGateway,
	keys domain.KeyResolver,
	announcer Announcer,
	venueTimeout time.Duration,
	logger *slog.Logger,
) *Coordinator {
	if venueTimeout <= 0 {
		venueTimeout = 15 * time.Second
	}
	return &Coordinator{
		store:        store,
		venue:        venue,
		keys:         keys,
		announcer:    announcer,
		venueTimeout: venueTimeout,
		logger:       logger.With(slog.String("component", "exit_coordinator")),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteExit performs the exit described by req. An exit already recorded
// for the same key short-circuits with Duplicate set and the recorded fill
// price. A position closed by someone else returns domain.ErrPositionClosed
// without announcing. Any other failure leaves the position untouched,
// announces an operational alert and is returned; the next tick retries.
func (c *Coordinator) ExecuteExit(ctx context.Context, req ExitRequest) (ExitResult, error) {
	pos := req.Position
	key := domain.TerminalExitKey(pos)
	if !req.FullClose {
		key = domain.PartialExitKey(pos, req.Level)
	}
	log := c.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("reason", string(req.Reason)),
		slog.Int("level", req.Level),
	)

	signingKey, err := c.signingKey(ctx, pos.UserID)
	if err != nil {
		c.announceFailure(ctx, req, err)
		return ExitResult{}, err
	}

	var res ExitResult
	err = c.store.InTx(ctx, func(tx domain.TxStores) error {
		res = ExitResult{}

		locked, err := tx.Positions.GetForUpdate(ctx, pos.ID)
		if err != nil {
			return fmt.Errorf("executor: lock position: %w", err)
		}

		existing, err := tx.ExitOrders.Find(ctx, key)
		switch {
		case err == nil:
			res = ExitResult{
				ExitOrderID:   existing.ID,
				ExecutedPrice: existing.FillPrice,
				Quantity:      existing.Quantity,
				RealizedPnL:   existing.RealizedPnL,
				Duplicate:     true,
				Closed:        !locked.IsOpen(),
			}
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("executor: find exit order: %w", err)
		}

		if !locked.IsOpen() {
			return domain.ErrPositionClosed
		}

		qty := locked.Quantity
		full := req.FullClose
		if !full && req.Quantity < locked.Quantity {
			qty = req.Quantity
		} else {
			full = true
		}

		now := c.now()
		eo := domain.ExitOrder{
			ID:           uuid.New().String(),
			ExitOrderKey: key,
			UserID:       locked.UserID,
			Reason:       req.Reason,
			Quantity:     qty,
			TriggerPrice: req.CurrentPrice,
			CreatedAt:    now,
		}
		if err := tx.ExitOrders.Insert(ctx, eo); err != nil {
			return fmt.Errorf("executor: insert exit order: %w", err)
		}

		vctx, cancel := context.WithTimeout(ctx, c.venueTimeout)
		fill, err := c.venue.SubmitMarketSell(vctx, domain.MarketExitRequest{
			Position:   locked,
			Side:       key.Side,
			Quantity:   qty,
			Price:      req.CurrentPrice,
			SigningKey: signingKey,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("executor: submit market exit: %w", errors.Join(domain.ErrVenue, err))
		}

		pnl := trigger.RealizedPnL(locked, fill, qty)
		if err := tx.ExitOrders.RecordFill(ctx, eo.ID, fill, pnl, now); err != nil {
			return fmt.Errorf("executor: record fill: %w", err)
		}

		cumulative := decimal.NewFromFloat(locked.RealizedPnL).Add(decimal.NewFromFloat(pnl)).InexactFloat64()
		if full {
			err = tx.Positions.Close(ctx, domain.ClosePositionParams{
				ID:          locked.ID,
				ExitPrice:   fill,
				Reason:      req.Reason,
				RealizedPnL: cumulative,
				ClosedAt:    now,
			})
		} else {
			remaining := decimal.NewFromFloat(locked.Quantity).Sub(decimal.NewFromFloat(qty)).InexactFloat64()
			err = tx.Positions.RecordPartialExit(ctx, domain.PartialExitParams{
				ID:          locked.ID,
				Quantity:    remaining,
				LevelsHit:   req.Level,
				RealizedPnL: cumulative,
			})
		}
		if err != nil {
			return fmt.Errorf("executor: update position: %w", err)
		}

		res = ExitResult{
			ExitOrderID:   eo.ID,
			ExecutedPrice: fill,
			Quantity:      qty,
			RealizedPnL:   pnl,
			Closed:        full,
		}
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrPositionClosed):
		log.DebugContext(ctx, "position already closed, exit skipped")
		return ExitResult{}, err
	case err != nil:
		log.ErrorContext(ctx, "exit failed", slog.String("error", err.Error()))
		c.announceFailure(ctx, req, err)
		return ExitResult{}, err
	case res.Duplicate:
		log.DebugContext(ctx, "exit already recorded", slog.String("exit_order_id", res.ExitOrderID))
		return res, nil
	}

	log.InfoContext(ctx, "exit executed",
		slog.String("exit_order_id", res.ExitOrderID),
		slog.Float64("current_price", req.CurrentPrice),
		slog.Float64("executed_price", res.ExecutedPrice),
		slog.Float64("quantity", res.Quantity),
		slog.Float64("pnl", res.RealizedPnL),
		slog.Bool("closed", res.Closed),
	)
	c.announceTrigger(ctx, req, res)
	return res, nil
}

func (c *Coordinator) signingKey(ctx context.Context, userID string) (string, error) {
	if c.keys == nil {
		return "", nil
	}
	key, err := c.keys.SigningKey(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("executor: resolve signing key: %w", errors.Join(domain.ErrSigningFailed, err))
	}
	return key, nil
}

func (c *Coordinator) announceTrigger(ctx context.Context, req ExitRequest, res ExitResult) {
	if c.announcer == nil {
		return
	}
	name := domain.EventStopLossHit
	payload := map[string]any{
		"position":      req.Position.ID,
		"user":          req.Position.UserID,
		"currentPrice":  req.CurrentPrice,
		"executedPrice": res.ExecutedPrice,
		"pnl":           res.RealizedPnL,
		"quantity":      res.Quantity,
	}
	switch req.Reason {
	case domain.ExitReasonTakeProfit:
		name = domain.EventTakeProfitHit
		if req.Level > 0 {
			name = domain.EventTakeProfitLevelHit
			payload["level"] = req.Level
			payload["fullyClose"] = res.Closed
		}
	case domain.ExitReasonManual:
		name = domain.EventPositionClosed
	}
	c.announcer.Announce(ctx, domain.Event{
		Name:     name,
		Kind:     domain.EventKindTrigger,
		UserID:   req.Position.UserID,
		EntityID: req.Position.ID,
		Payload:  payload,
	})
}

func (c *Coordinator) announceFailure(ctx context.Context, req ExitRequest, err error) {
	if c.announcer == nil {
		return
	}
	name := domain.EventStopLossFailed
	switch req.Reason {
	case domain.ExitReasonTakeProfit:
		name = domain.EventTakeProfitFailed
	case domain.ExitReasonManual:
		name = domain.EventPositionCloseFailed
	}
	payload := map[string]any{
		"position":     req.Position.ID,
		"currentPrice": req.CurrentPrice,
		"error":        err.Error(),
	}
	if req.Level > 0 {
		payload["level"] = req.Level
	}
	c.announcer.Announce(ctx, domain.Event{
		Name:     name,
		Kind:     domain.EventKindAlert,
		UserID:   req.Position.UserID,
		EntityID: req.Position.ID,
		Payload:  payload,
	})
}
