package service

import (
	"context"
	"fmt"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// DefaultPageSize caps list queries that do not set a limit.
const DefaultPageSize = 100

// OrderQueryService answers read-only queries about a user's positions,
// exits and linked orders. Records owned by another user read as not found.
type OrderQueryService struct {
	store domain.Store
}

// NewOrderQueryService creates an OrderQueryService.
func NewOrderQueryService(store domain.Store) *OrderQueryService {
	return &OrderQueryService{store: store}
}

func pageOpts(opts domain.ListOpts) domain.ListOpts {
	if opts.Limit <= 0 || opts.Limit > DefaultPageSize {
		opts.Limit = DefaultPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}

// Position returns one of the user's positions.
func (s *OrderQueryService) Position(ctx context.Context, userID, id string) (domain.Position, error) {
	pos, err := s.store.Positions().GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("query: position %q: %w", id, err)
	}
	if pos.UserID != userID {
		return domain.Position{}, fmt.Errorf("query: position %q: %w", id, domain.ErrNotFound)
	}
	return pos, nil
}

// Positions lists the user's positions. An empty status lists all.
func (s *OrderQueryService) Positions(ctx context.Context, userID string, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error) {
	list, err := s.store.Positions().ListByUser(ctx, userID, status, pageOpts(opts))
	if err != nil {
		return nil, fmt.Errorf("query: positions for %q: %w", userID, err)
	}
	return list, nil
}

// Exits returns the exit records of one of the user's positions, oldest first.
func (s *OrderQueryService) Exits(ctx context.Context, userID, positionID string) ([]domain.ExitOrder, error) {
	if _, err := s.Position(ctx, userID, positionID); err != nil {
		return nil, err
	}
	exits, err := s.store.ExitOrders().ListByPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("query: exits for %q: %w", positionID, err)
	}
	return exits, nil
}

// AdvancedOrder returns one of the user's OCO or iceberg orders.
func (s *OrderQueryService) AdvancedOrder(ctx context.Context, userID, id string) (domain.AdvancedOrder, error) {
	o, err := s.store.AdvancedOrders().GetByID(ctx, id)
	if err != nil {
		return domain.AdvancedOrder{}, fmt.Errorf("query: advanced order %q: %w", id, err)
	}
	if o.UserID != userID {
		return domain.AdvancedOrder{}, fmt.Errorf("query: advanced order %q: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

// AdvancedOrders lists the user's linked orders. An empty status lists all.
func (s *OrderQueryService) AdvancedOrders(ctx context.Context, userID string, status domain.AdvancedOrderStatus, opts domain.ListOpts) ([]domain.AdvancedOrder, error) {
	list, err := s.store.AdvancedOrders().ListByUser(ctx, userID, status, pageOpts(opts))
	if err != nil {
		return nil, fmt.Errorf("query: advanced orders for %q: %w", userID, err)
	}
	return list, nil
}

// AuditTrail lists audit entries, newest first.
func (s *OrderQueryService) AuditTrail(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	entries, err := s.store.Audit().List(ctx, pageOpts(opts))
	if err != nil {
		return nil, fmt.Errorf("query: audit trail: %w", err)
	}
	return entries, nil
}
