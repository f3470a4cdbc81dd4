package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/executor"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/trigger"
)

// Announcer publishes engine events.
type Announcer interface {
	Announce(ctx context.Context, evt domain.Event)
}

// Exiter executes position exits.
type Exiter interface {
	ExecuteExit(ctx context.Context, req executor.ExitRequest) (executor.ExitResult, error)
}

// OpenPositionParams describes a new position and its protective thresholds.
// A zero EntryPrice is filled from the price source.
type OpenPositionParams struct {
	UserID           string
	Symbol           string
	Pair             domain.AssetPair
	Side             domain.PositionSide
	EntryPrice       float64
	Quantity         float64
	StopLossPrice    *float64
	IsTrailingStop   bool
	TrailingPercent  float64
	TakeProfitPrice  *float64
	TakeProfitLevels []domain.TakeProfitLevel
}

// PositionService opens positions with validated thresholds and closes them
// on request through the exit coordinator.
type PositionService struct {
	positions domain.PositionStore
	prices    domain.PriceSource
	exiter    Exiter
	announcer Announcer
	logger    *slog.Logger
	now       func() time.Time
}

// NewPositionService creates a PositionService. announcer may be nil.
func NewPositionService(
	positions domain.PositionStore,
	prices domain.PriceSource,
	exiter Exiter,
	announcer Announcer,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		prices:    prices,
		exiter:    exiter,
		announcer: announcer,
		logger:    logger.With(slog.String("component", "position_service")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Open validates p and persists a new open position. Trailing stops start at
// entry less the trailing percent with the entry as high-water mark.
func (s *PositionService) Open(ctx context.Context, p OpenPositionParams) (domain.Position, error) {
	if p.UserID == "" {
		return domain.Position{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidOrder)
	}
	if p.Symbol == "" {
		p.Symbol = p.Pair.Symbol()
	}
	if p.Side == "" {
		p.Side = domain.PositionSideLong
	}
	if p.EntryPrice == 0 {
		price, err := s.currentPrice(ctx, p.Symbol)
		if err != nil {
			return domain.Position{}, err
		}
		p.EntryPrice = price
	}

	now := s.now()
	pos := domain.Position{
		ID:               uuid.New().String(),
		UserID:           p.UserID,
		Symbol:           p.Symbol,
		Pair:             p.Pair,
		Side:             p.Side,
		EntryPrice:       p.EntryPrice,
		InitialQuantity:  p.Quantity,
		Quantity:         p.Quantity,
		StopLossPrice:    p.StopLossPrice,
		IsTrailingStop:   p.IsTrailingStop,
		TrailingPercent:  p.TrailingPercent,
		TakeProfitPrice:  p.TakeProfitPrice,
		TakeProfitLevels: p.TakeProfitLevels,
		Status:           domain.PositionStatusOpen,
		OpenedAt:         now,
		UpdatedAt:        now,
	}
	if err := trigger.ValidateThresholds(pos); err != nil {
		return domain.Position{}, err
	}
	if pos.IsTrailingStop {
		stop, high := trigger.InitialTrailing(pos.EntryPrice, pos.TrailingPercent)
		pos.StopLossPrice = &stop
		pos.HighestPrice = high
	}

	if err := s.positions.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: create position: %w", err)
	}

	payload := map[string]any{
		"position":   pos.ID,
		"symbol":     pos.Symbol,
		"side":       string(pos.Side),
		"entryPrice": pos.EntryPrice,
		"quantity":   pos.Quantity,
		"trailing":   pos.IsTrailingStop,
	}
	if pos.StopLossPrice != nil {
		payload["stopLoss"] = *pos.StopLossPrice
	}
	if pos.TakeProfitPrice != nil {
		payload["takeProfit"] = *pos.TakeProfitPrice
	}
	if s.announcer != nil {
		s.announcer.Announce(ctx, domain.Event{
			Name:     domain.EventPositionOpened,
			Kind:     domain.EventKindState,
			UserID:   pos.UserID,
			EntityID: pos.ID,
			Payload:  payload,
		})
	}

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("quantity", pos.Quantity),
	)
	return pos, nil
}

// Close flattens the remaining quantity at market with reason MANUAL. The
// user must own the position.
func (s *PositionService) Close(ctx context.Context, userID, positionID string) (executor.ExitResult, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return executor.ExitResult{}, fmt.Errorf("position_service: get position %q: %w", positionID, err)
	}
	if pos.UserID != userID {
		return executor.ExitResult{}, fmt.Errorf("position_service: position %q: %w", positionID, domain.ErrNotFound)
	}
	if !pos.IsOpen() {
		return executor.ExitResult{}, fmt.Errorf("position_service: position %q: %w", positionID, domain.ErrPositionClosed)
	}
	price, err := s.currentPrice(ctx, pos.Symbol)
	if err != nil {
		return executor.ExitResult{}, err
	}

	res, err := s.exiter.ExecuteExit(ctx, executor.ExitRequest{
		Position:     pos,
		Reason:       domain.ExitReasonManual,
		CurrentPrice: price,
		FullClose:    true,
	})
	if err != nil {
		return executor.ExitResult{}, fmt.Errorf("position_service: close %q: %w", positionID, err)
	}
	return res, nil
}

func (s *PositionService) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if s.prices == nil {
		return 0, fmt.Errorf("position_service: price %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	prices, err := s.prices.GetBatchPrices(ctx, []string{symbol})
	if err != nil {
		return 0, fmt.Errorf("position_service: price %s: %w", symbol, errors.Join(domain.ErrPriceUnavailable, err))
	}
	price, ok := prices[symbol]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("position_service: price %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return price, nil
}
