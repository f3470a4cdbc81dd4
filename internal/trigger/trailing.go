// Package trigger holds the pure evaluators that turn a live price and a
// position's persisted thresholds into a trigger decision. Nothing here
// performs I/O.
package trigger

import (
	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// pricePlaces is the precision stop levels are rounded to.
const pricePlaces = 8

const (
	MinTrailingPercent = 0.1
	MaxTrailingPercent = 50.0
)

// TrailingUpdate carries the new high-water mark and stop level to persist.
type TrailingUpdate struct {
	HighestPrice  float64
	StopLossPrice float64
}

// EvaluateTrailing ratchets a long position's stop behind a new price high.
// It reports false when nothing should change: trailing disabled, position
// not open, no stop set, price not above the previous high, or the candidate
// stop not strictly above the current one.
func EvaluateTrailing(pos domain.Position, currentPrice float64) (TrailingUpdate, bool) {
	if !pos.IsTrailingStop || !pos.IsOpen() || pos.StopLossPrice == nil || pos.IsShort() {
		return TrailingUpdate{}, false
	}
	if currentPrice <= pos.HighestPrice {
		return TrailingUpdate{}, false
	}

	newStop := trailingStop(currentPrice, pos.TrailingPercent)
	if newStop <= *pos.StopLossPrice {
		return TrailingUpdate{}, false
	}
	return TrailingUpdate{HighestPrice: currentPrice, StopLossPrice: newStop}, true
}

// InitialTrailing seeds the stop and high-water mark for a position opened
// with trailing enabled.
func InitialTrailing(entryPrice, trailingPercent float64) (stopLoss, highest float64) {
	return trailingStop(entryPrice, trailingPercent), entryPrice
}

func trailingStop(high, percent float64) float64 {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100)))
	return decimal.NewFromFloat(high).Mul(factor).Round(pricePlaces).InexactFloat64()
}
