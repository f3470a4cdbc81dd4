package trigger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// ValidateThresholds checks a position's protective thresholds before it is
// persisted. Errors wrap domain.ErrInvalidOrder.
func ValidateThresholds(pos domain.Position) error {
	if pos.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive", domain.ErrInvalidOrder)
	}
	if pos.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOrder)
	}
	if pos.IsTrailingStop {
		if pos.IsShort() {
			return fmt.Errorf("%w: trailing stop is only supported for long positions", domain.ErrInvalidOrder)
		}
		if pos.TrailingPercent < MinTrailingPercent || pos.TrailingPercent > MaxTrailingPercent {
			return fmt.Errorf("%w: trailing percent must be between %.1f and %.0f", domain.ErrInvalidOrder,
				MinTrailingPercent, MaxTrailingPercent)
		}
	}
	if sl := pos.StopLossPrice; sl != nil && !pos.IsTrailingStop {
		if *sl <= 0 {
			return fmt.Errorf("%w: stop-loss price must be positive", domain.ErrInvalidOrder)
		}
		if !pos.IsShort() && *sl >= pos.EntryPrice {
			return fmt.Errorf("%w: stop-loss must be below entry for a long position", domain.ErrInvalidOrder)
		}
		if pos.IsShort() && *sl <= pos.EntryPrice {
			return fmt.Errorf("%w: stop-loss must be above entry for a short position", domain.ErrInvalidOrder)
		}
	}
	if tp := pos.TakeProfitPrice; tp != nil {
		if *tp <= 0 {
			return fmt.Errorf("%w: take-profit price must be positive", domain.ErrInvalidOrder)
		}
		if !beyondEntry(pos, *tp) {
			return fmt.Errorf("%w: take-profit must be on the profit side of entry", domain.ErrInvalidOrder)
		}
	}

	total := decimal.Zero
	for i, lvl := range pos.TakeProfitLevels {
		if lvl.Price <= 0 || lvl.ClosePercent <= 0 {
			return fmt.Errorf("%w: take-profit level %d must have positive price and close percent", domain.ErrInvalidOrder, i+1)
		}
		if i == 0 && !beyondEntry(pos, lvl.Price) {
			return fmt.Errorf("%w: take-profit level 1 must be on the profit side of entry", domain.ErrInvalidOrder)
		}
		if i > 0 {
			prev := pos.TakeProfitLevels[i-1].Price
			if (!pos.IsShort() && lvl.Price <= prev) || (pos.IsShort() && lvl.Price >= prev) {
				return fmt.Errorf("%w: take-profit levels must be strictly ordered away from entry", domain.ErrInvalidOrder)
			}
		}
		total = total.Add(decimal.NewFromFloat(lvl.ClosePercent))
	}
	if total.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: take-profit close percents sum to %s, above 100", domain.ErrInvalidOrder, total.String())
	}
	return nil
}

// beyondEntry reports whether price is strictly on the profit side of the
// position's entry: above it for longs, below it for shorts.
func beyondEntry(pos domain.Position, price float64) bool {
	if pos.IsShort() {
		return price < pos.EntryPrice
	}
	return price > pos.EntryPrice
}
