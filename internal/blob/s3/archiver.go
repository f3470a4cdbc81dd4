package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// multipartThreshold is the payload size above which uploads go through the
// multipart manager.
const multipartThreshold = 16 * 1024 * 1024

// PositionArchiveStore lists closed positions for archival.
type PositionArchiveStore interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// AdvancedOrderArchiveStore lists terminal linked orders for archival.
type AdvancedOrderArchiveStore interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.AdvancedOrder, error)
}

// ArchiveImpl implements domain.Archiver. Records older than the cutoff are
// written to S3 as JSONL, one object per kind and cutoff day. A day whose
// object already exists is skipped. Archived rows are not deleted from the
// primary store.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	positions PositionArchiveStore
	orders    AdvancedOrderArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	positions PositionArchiveStore,
	orders AdvancedOrderArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		reader:    reader,
		positions: positions,
		orders:    orders,
		audit:     audit,
	}
}

// ArchivePositions exports closed positions to archive/positions/<day>.jsonl.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	path := archivePath("positions", before)
	if done, err := a.reader.Exists(ctx, path); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions: %w", err)
	} else if done {
		return 0, nil
	}

	positions, err := a.positions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	records := make([]positionRecord, 0, len(positions))
	for _, p := range positions {
		records = append(records, toPositionRecord(p))
	}
	return upload(ctx, a, "positions", path, before, records)
}

// ArchiveAdvancedOrders exports terminal OCO and iceberg orders to
// archive/advanced_orders/<day>.jsonl.
func (a *ArchiveImpl) ArchiveAdvancedOrders(ctx context.Context, before time.Time) (int64, error) {
	path := archivePath("advanced_orders", before)
	if done, err := a.reader.Exists(ctx, path); err != nil {
		return 0, fmt.Errorf("s3blob: archive advanced orders: %w", err)
	} else if done {
		return 0, nil
	}

	orders, err := a.orders.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive advanced orders query: %w", err)
	}
	records := make([]advancedOrderRecord, 0, len(orders))
	for _, o := range orders {
		records = append(records, toAdvancedOrderRecord(o))
	}
	return upload(ctx, a, "advanced_orders", path, before, records)
}

func upload[T any](ctx context.Context, a *ArchiveImpl, kind, path string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// cutoff day:
//
//	archive/positions/2025-01-31.jsonl
//	archive/advanced_orders/2025-01-31.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01-02"))
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

type positionRecord struct {
	ID                  string                   `json:"id"`
	UserID              string                   `json:"user_id"`
	Symbol              string                   `json:"symbol"`
	Pair                domain.AssetPair         `json:"pair"`
	Side                domain.PositionSide      `json:"side"`
	EntryPrice          float64                  `json:"entry_price"`
	InitialQuantity     float64                  `json:"initial_quantity"`
	Quantity            float64                  `json:"quantity"`
	StopLossPrice       *float64                 `json:"stop_loss_price,omitempty"`
	IsTrailingStop      bool                     `json:"is_trailing_stop"`
	TrailingPercent     float64                  `json:"trailing_percent,omitempty"`
	HighestPrice        float64                  `json:"highest_price,omitempty"`
	TakeProfitPrice     *float64                 `json:"take_profit_price,omitempty"`
	TakeProfitLevels    []domain.TakeProfitLevel `json:"take_profit_levels,omitempty"`
	TakeProfitLevelsHit int                      `json:"take_profit_levels_hit"`
	RealizedPnL         float64                  `json:"realized_pnl"`
	Status              domain.PositionStatus    `json:"status"`
	ExitPrice           *float64                 `json:"exit_price,omitempty"`
	ExitReason          *domain.ExitReason       `json:"exit_reason,omitempty"`
	OpenedAt            time.Time                `json:"opened_at"`
	ClosedAt            *time.Time               `json:"closed_at,omitempty"`
}

func toPositionRecord(p domain.Position) positionRecord {
	return positionRecord{
		ID:                  p.ID,
		UserID:              p.UserID,
		Symbol:              p.Symbol,
		Pair:                p.Pair,
		Side:                p.Side,
		EntryPrice:          p.EntryPrice,
		InitialQuantity:     p.InitialQuantity,
		Quantity:            p.Quantity,
		StopLossPrice:       p.StopLossPrice,
		IsTrailingStop:      p.IsTrailingStop,
		TrailingPercent:     p.TrailingPercent,
		HighestPrice:        p.HighestPrice,
		TakeProfitPrice:     p.TakeProfitPrice,
		TakeProfitLevels:    p.TakeProfitLevels,
		TakeProfitLevelsHit: p.TakeProfitLevelsHit,
		RealizedPnL:         p.RealizedPnL,
		Status:              p.Status,
		ExitPrice:           p.ExitPrice,
		ExitReason:          p.ExitReason,
		OpenedAt:            p.OpenedAt,
		ClosedAt:            p.ClosedAt,
	}
}

type advancedOrderRecord struct {
	ID           string                     `json:"id"`
	UserID       string                     `json:"user_id"`
	Type         domain.AdvancedOrderType   `json:"type"`
	Status       domain.AdvancedOrderStatus `json:"status"`
	Pair         domain.AssetPair           `json:"pair"`
	PositionID   *string                    `json:"position_id,omitempty"`
	OCO          *domain.OCOPayload         `json:"oco,omitempty"`
	Iceberg      *domain.IcebergPayload     `json:"iceberg,omitempty"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	ExpiresAt    *time.Time                 `json:"expires_at,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

func toAdvancedOrderRecord(o domain.AdvancedOrder) advancedOrderRecord {
	return advancedOrderRecord{
		ID:           o.ID,
		UserID:       o.UserID,
		Type:         o.Type,
		Status:       o.Status,
		Pair:         o.Pair,
		PositionID:   o.PositionID,
		OCO:          o.OCO,
		Iceberg:      o.Iceberg,
		ErrorMessage: o.ErrorMessage,
		ExpiresAt:    o.ExpiresAt,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
