package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ClosePositionParams carries the terminal fields written exactly once when a
// position closes.
type ClosePositionParams struct {
	ID          string
	ExitPrice   float64
	Reason      ExitReason
	RealizedPnL float64
	ClosedAt    time.Time
}

// PartialExitParams records a partial take-profit fill.
type PartialExitParams struct {
	ID          string
	Quantity    float64 // remaining quantity after the fill
	LevelsHit   int
	RealizedPnL float64 // cumulative
}

// PositionStore persists positions. Inside a transaction GetForUpdate takes a
// row lock; outside one it behaves like GetByID.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	GetForUpdate(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListByUser(ctx context.Context, userID string, status PositionStatus, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
	// UpdateTrailing raises the high-water mark and stop level. It only
	// applies when the new stop is strictly above the stored one and the
	// position is still open; otherwise it reports false.
	UpdateTrailing(ctx context.Context, id string, highestPrice, stopLossPrice float64) (bool, error)
	RecordPartialExit(ctx context.Context, p PartialExitParams) error
	Close(ctx context.Context, p ClosePositionParams) error
}

// ExitOrderStore persists exit records. Find followed by Insert inside one
// transaction is the idempotency primitive.
type ExitOrderStore interface {
	Find(ctx context.Context, key ExitOrderKey) (ExitOrder, error)
	Insert(ctx context.Context, eo ExitOrder) error
	RecordFill(ctx context.Context, id string, fillPrice, realizedPnL float64, filledAt time.Time) error
	ListByPosition(ctx context.Context, positionID string) ([]ExitOrder, error)
}

// AdvancedOrderStore persists OCO and iceberg orders.
type AdvancedOrderStore interface {
	Create(ctx context.Context, o AdvancedOrder) error
	Update(ctx context.Context, o AdvancedOrder) error
	GetByID(ctx context.Context, id string) (AdvancedOrder, error)
	GetForUpdate(ctx context.Context, id string) (AdvancedOrder, error)
	FindByOfferID(ctx context.Context, offerID string) (AdvancedOrder, error)
	ListLive(ctx context.Context, orderType AdvancedOrderType) ([]AdvancedOrder, error)
	ListByUser(ctx context.Context, userID string, status AdvancedOrderStatus, opts ListOpts) ([]AdvancedOrder, error)
	ListTerminalBefore(ctx context.Context, before time.Time) ([]AdvancedOrder, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// TxStores are store views bound to one transaction.
type TxStores struct {
	Positions      PositionStore
	ExitOrders     ExitOrderStore
	AdvancedOrders AdvancedOrderStore
}

// Transactor runs fn inside a database transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx TxStores) error) error
}

// Store bundles the non-transactional store views with the transactor.
type Store interface {
	Transactor
	Positions() PositionStore
	ExitOrders() ExitOrderStore
	AdvancedOrders() AdvancedOrderStore
	Audit() AuditStore
	Close()
}
