package trigger

import (
	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// StopLossHit reports whether currentPrice has reached or gapped through the
// position's stop level. Longs fire at or below the stop, shorts at or above.
func StopLossHit(pos domain.Position, currentPrice float64) bool {
	if !pos.IsOpen() || pos.StopLossPrice == nil {
		return false
	}
	if pos.IsShort() {
		return currentPrice >= *pos.StopLossPrice
	}
	return currentPrice <= *pos.StopLossPrice
}

// RealizedPnL returns the profit of closing quantity at exitPrice.
func RealizedPnL(pos domain.Position, exitPrice, quantity float64) float64 {
	diff := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(pos.EntryPrice))
	if pos.IsShort() {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(quantity)).Round(pricePlaces).InexactFloat64()
}
