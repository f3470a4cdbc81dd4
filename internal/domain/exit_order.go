package domain

import "time"

// ExitOrderType is the venue order type of an automated exit.
type ExitOrderType string

const ExitOrderTypeMarket ExitOrderType = "MARKET"

// ExitOrderSide is the side of the exit trade.
type ExitOrderSide string

const (
	ExitOrderSideSell ExitOrderSide = "SELL"
	ExitOrderSideBuy  ExitOrderSide = "BUY"
)

// ExitOrderKey is the composite idempotency key of an exit. Level is zero for
// the terminal exit (ExitOrder=true) and the 1-based take-profit level for a
// partial exit (ExitOrder=false).
type ExitOrderKey struct {
	PositionID string
	Type       ExitOrderType
	Side       ExitOrderSide
	ExitOrder  bool
	Level      int
}

// TerminalExitKey returns the key of the single exit that closes pos.
func TerminalExitKey(pos Position) ExitOrderKey {
	return ExitOrderKey{
		PositionID: pos.ID,
		Type:       ExitOrderTypeMarket,
		Side:       ExitSideFor(pos),
		ExitOrder:  true,
	}
}

// PartialExitKey returns the key of a partial take-profit exit at level.
func PartialExitKey(pos Position, level int) ExitOrderKey {
	return ExitOrderKey{
		PositionID: pos.ID,
		Type:       ExitOrderTypeMarket,
		Side:       ExitSideFor(pos),
		ExitOrder:  false,
		Level:      level,
	}
}

// ExitSideFor returns the trade side that flattens pos.
func ExitSideFor(pos Position) ExitOrderSide {
	if pos.IsShort() {
		return ExitOrderSideBuy
	}
	return ExitOrderSideSell
}

// ExitOrder records one automated exit. Its presence is the authoritative
// "already executed" signal for its key.
type ExitOrder struct {
	ID string
	ExitOrderKey
	UserID       string
	Reason       ExitReason
	Quantity     float64
	TriggerPrice float64
	FillPrice    float64
	RealizedPnL  float64
	CreatedAt    time.Time
	FilledAt     *time.Time
}
