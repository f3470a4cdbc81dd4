package domain

import "time"

// Event names published on the event bus.
const (
	EventStopLossHit          = "position.stop_loss_hit"
	EventStopLossFailed       = "position.stop_loss_failed"
	EventTakeProfitHit        = "position.take_profit_hit"
	EventTakeProfitLevelHit   = "position.take_profit_level_hit"
	EventTakeProfitFailed     = "position.take_profit_failed"
	EventTrailingStopUpdated  = "position.trailing_stop_updated"
	EventPositionOpened       = "position.opened"
	EventPositionClosed       = "position.closed"
	EventPositionCloseFailed  = "position.close_failed"
	EventOCOTriggered         = "advanced_order.oco_triggered"
	EventOCOCancelled         = "advanced_order.oco_cancelled"
	EventIcebergRefilled      = "advanced_order.iceberg_refilled"
	EventIcebergFilled        = "advanced_order.iceberg_filled"
	EventIcebergCancelled     = "advanced_order.iceberg_cancelled"
	EventAdvancedOrderFailed  = "advanced_order.failed"
	EventAdvancedOrderExpired = "advanced_order.expired"
	EventMonitorRunCompleted  = "monitor.run_completed"
)

// EventKind separates user-facing outcomes from operational alerts.
type EventKind string

const (
	EventKindTrigger EventKind = "trigger"
	EventKindAlert   EventKind = "alert"
	EventKindState   EventKind = "state"
)

// Event is one announcement for notification and ops consumers.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"event"`
	Kind       EventKind      `json:"kind"`
	UserID     string         `json:"user_id,omitempty"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}
