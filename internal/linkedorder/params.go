// Package linkedorder implements the OCO and iceberg state machines layered
// on venue limit offers.
package linkedorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// OCOParams is a validated request for a one-cancels-other order. Both legs
// offer Amount of the selling asset.
type OCOParams struct {
	UserID          string
	Pair            domain.AssetPair
	PositionID      *string
	StopLossPrice   float64
	TakeProfitPrice float64
	Amount          float64
	ExpiresAt       *time.Time
}

// Validate rejects malformed requests before anything is persisted.
func (p OCOParams) Validate(now time.Time) error {
	var errs []error
	if p.UserID == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	errs = append(errs, validatePair(p.Pair)...)
	if p.StopLossPrice <= 0 {
		errs = append(errs, errors.New("stop-loss price must be positive"))
	}
	if p.StopLossPrice >= p.TakeProfitPrice {
		errs = append(errs, errors.New("stop-loss price must be below take-profit price"))
	}
	if p.Amount <= 0 {
		errs = append(errs, errors.New("amount must be positive"))
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		errs = append(errs, errors.New("expiry must be in the future"))
	}
	return joinInvalid(errs)
}

// IcebergParams is a validated request for an iceberg order.
type IcebergParams struct {
	UserID        string
	Pair          domain.AssetPair
	PositionID    *string
	TotalAmount   float64
	DisplayAmount float64
	LimitPrice    float64
	ExpiresAt     *time.Time
}

// Validate rejects malformed requests before any venue call.
func (p IcebergParams) Validate(now time.Time) error {
	var errs []error
	if p.UserID == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	errs = append(errs, validatePair(p.Pair)...)
	if p.DisplayAmount <= 0 {
		errs = append(errs, errors.New("display amount must be positive"))
	}
	if p.DisplayAmount >= p.TotalAmount {
		errs = append(errs, errors.New("display amount must be below total amount"))
	}
	if p.LimitPrice <= 0 {
		errs = append(errs, errors.New("limit price must be positive"))
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		errs = append(errs, errors.New("expiry must be in the future"))
	}
	return joinInvalid(errs)
}

func validatePair(pair domain.AssetPair) []error {
	var errs []error
	if pair.Selling == "" || pair.Buying == "" {
		errs = append(errs, errors.New("selling and buying assets are required"))
	} else if pair.Selling == pair.Buying {
		errs = append(errs, errors.New("selling and buying assets must differ"))
	}
	return errs
}

func joinInvalid(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidOrder, errors.Join(errs...))
}
