package trigger

import (
	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// TakeProfitDecision describes the exit a take-profit trigger asks for.
type TakeProfitDecision struct {
	// Level is the highest 1-based ladder level reached, or 0 for a single
	// target.
	Level       int
	TargetPrice float64
	Quantity    float64
	FullClose   bool
}

// EvaluateTakeProfit checks the position's take-profit target or ladder.
// When a ladder is configured it takes precedence over the single target.
// Ladder levels reached in the same observation are merged into one exit.
func EvaluateTakeProfit(pos domain.Position, currentPrice float64) (TakeProfitDecision, bool) {
	if !pos.IsOpen() || pos.Quantity <= 0 {
		return TakeProfitDecision{}, false
	}
	if len(pos.TakeProfitLevels) > 0 {
		return evaluateLadder(pos, currentPrice)
	}
	if pos.TakeProfitPrice == nil || !reached(pos, currentPrice, *pos.TakeProfitPrice) {
		return TakeProfitDecision{}, false
	}
	return TakeProfitDecision{
		TargetPrice: *pos.TakeProfitPrice,
		Quantity:    pos.Quantity,
		FullClose:   true,
	}, true
}

func evaluateLadder(pos domain.Position, currentPrice float64) (TakeProfitDecision, bool) {
	levels := pos.TakeProfitLevels
	last := -1
	pct := decimal.Zero
	for i := pos.TakeProfitLevelsHit; i < len(levels); i++ {
		if !reached(pos, currentPrice, levels[i].Price) {
			break
		}
		last = i
		pct = pct.Add(decimal.NewFromFloat(levels[i].ClosePercent))
	}
	if last < 0 {
		return TakeProfitDecision{}, false
	}

	cumulative := decimal.Zero
	for i := 0; i <= last; i++ {
		cumulative = cumulative.Add(decimal.NewFromFloat(levels[i].ClosePercent))
	}
	full := last == len(levels)-1 || cumulative.GreaterThanOrEqual(decimal.NewFromInt(100))

	qty := pos.Quantity
	if !full {
		q := decimal.NewFromFloat(pos.InitialQuantity).Mul(pct).Div(decimal.NewFromInt(100)).Round(pricePlaces)
		if q.LessThan(decimal.NewFromFloat(pos.Quantity)) {
			qty = q.InexactFloat64()
		} else {
			full = true
		}
	}

	return TakeProfitDecision{
		Level:       last + 1,
		TargetPrice: levels[last].Price,
		Quantity:    qty,
		FullClose:   full,
	}, true
}

func reached(pos domain.Position, currentPrice, target float64) bool {
	if pos.IsShort() {
		return currentPrice <= target
	}
	return currentPrice >= target
}
