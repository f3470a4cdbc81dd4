package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// PositionSide is the direction of the exposure. Long is the reference case.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ExitReasonManual     ExitReason = "MANUAL"
)

// TakeProfitLevel is one rung of a multi-level take-profit ladder.
// ClosePercent is a share of the initial quantity.
type TakeProfitLevel struct {
	Price        float64 `json:"price"`
	ClosePercent float64 `json:"close_percent"`
}

// Position is a user's open (or historical) spot exposure with its
// protective thresholds.
type Position struct {
	ID     string
	UserID string
	Symbol string // price-feed symbol, e.g. "XLM/USDC"
	Pair   AssetPair
	Side   PositionSide

	EntryPrice      float64
	InitialQuantity float64
	Quantity        float64 // remaining open quantity

	StopLossPrice   *float64
	IsTrailingStop  bool
	TrailingPercent float64
	HighestPrice    float64

	TakeProfitPrice     *float64
	TakeProfitLevels    []TakeProfitLevel
	TakeProfitLevelsHit int

	RealizedPnL float64
	Status      PositionStatus
	ExitPrice   *float64
	ExitReason  *ExitReason
	OpenedAt    time.Time
	ClosedAt    *time.Time
	UpdatedAt   time.Time
}

// IsOpen reports whether the position is still being monitored.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// IsShort reports whether the position profits from falling prices.
func (p Position) IsShort() bool {
	return p.Side == PositionSideShort
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
