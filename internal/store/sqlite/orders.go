package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

type exitOrderStore struct {
	q querier
}

const exitOrderCols = `id, position_id, order_type, side, exit_order, level,
	user_id, reason, quantity, trigger_price, fill_price, realized_pnl, created_at, filled_at`

func scanExitOrder(row scanner) (domain.ExitOrder, error) {
	var (
		eo                      domain.ExitOrder
		orderType, side, reason string
	)
	if err := row.Scan(
		&eo.ID, &eo.PositionID, &orderType, &side, &eo.ExitOrder, &eo.Level,
		&eo.UserID, &reason, &eo.Quantity, &eo.TriggerPrice, &eo.FillPrice, &eo.RealizedPnL,
		&eo.CreatedAt, &eo.FilledAt,
	); err != nil {
		return domain.ExitOrder{}, err
	}
	eo.Type = domain.ExitOrderType(orderType)
	eo.Side = domain.ExitOrderSide(side)
	eo.Reason = domain.ExitReason(reason)
	return eo, nil
}

func (s *exitOrderStore) Find(ctx context.Context, key domain.ExitOrderKey) (domain.ExitOrder, error) {
	eo, err := scanExitOrder(s.q.QueryRowContext(ctx, `SELECT `+exitOrderCols+` FROM exit_orders
		WHERE position_id = ? AND order_type = ? AND side = ? AND exit_order = ? AND level = ?`,
		key.PositionID, string(key.Type), string(key.Side), key.ExitOrder, key.Level,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ExitOrder{}, domain.ErrNotFound
		}
		return domain.ExitOrder{}, fmt.Errorf("sqlite: find exit order for %s: %w", key.PositionID, err)
	}
	return eo, nil
}

func (s *exitOrderStore) Insert(ctx context.Context, eo domain.ExitOrder) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO exit_orders (`+exitOrderCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eo.ID, eo.PositionID, string(eo.Type), string(eo.Side), eo.ExitOrder, eo.Level,
		eo.UserID, string(eo.Reason), eo.Quantity, eo.TriggerPrice, eo.FillPrice, eo.RealizedPnL,
		utc(eo.CreatedAt), utcPtr(eo.FilledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: insert exit order %s: %w", eo.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: insert exit order %s: %w", eo.ID, err)
	}
	return nil
}

func (s *exitOrderStore) RecordFill(ctx context.Context, id string, fillPrice, realizedPnL float64, filledAt time.Time) error {
	res, err := s.q.ExecContext(ctx, `UPDATE exit_orders SET fill_price = ?, realized_pnl = ?, filled_at = ? WHERE id = ?`,
		fillPrice, realizedPnL, utc(filledAt), id)
	if err != nil {
		return fmt.Errorf("sqlite: record fill for exit order %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *exitOrderStore) ListByPosition(ctx context.Context, positionID string) ([]domain.ExitOrder, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+exitOrderCols+` FROM exit_orders
		WHERE position_id = ? ORDER BY created_at, level`, positionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list exit orders for %s: %w", positionID, err)
	}
	defer rows.Close()
	var out []domain.ExitOrder
	for rows.Next() {
		eo, err := scanExitOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan exit order: %w", err)
		}
		out = append(out, eo)
	}
	return out, rows.Err()
}

type advancedOrderStore struct {
	q querier
}

const advancedOrderCols = `id, user_id, order_type, status, selling_asset, buying_asset,
	position_id, payload, error_message, expires_at, created_at, updated_at`

func scanAdvancedOrder(row scanner) (domain.AdvancedOrder, error) {
	var (
		o                 domain.AdvancedOrder
		orderType, status string
		selling, buying   string
		payload           string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &orderType, &status, &selling, &buying,
		&o.PositionID, &payload, &o.ErrorMessage, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.AdvancedOrder{}, err
	}
	o.Type = domain.AdvancedOrderType(orderType)
	o.Status = domain.AdvancedOrderStatus(status)
	o.Pair = domain.AssetPair{Selling: domain.Asset(selling), Buying: domain.Asset(buying)}
	if err := o.DecodePayload([]byte(payload)); err != nil {
		return domain.AdvancedOrder{}, fmt.Errorf("decode payload of %s: %w", o.ID, err)
	}
	return o, nil
}

func (s *advancedOrderStore) list(ctx context.Context, query string, args ...any) ([]domain.AdvancedOrder, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AdvancedOrder
	for rows.Next() {
		o, err := scanAdvancedOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *advancedOrderStore) Create(ctx context.Context, o domain.AdvancedOrder) error {
	payload, err := o.EncodePayload()
	if err != nil {
		return fmt.Errorf("sqlite: create advanced order %s: %w", o.ID, err)
	}
	updatedAt := o.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = o.CreatedAt
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO advanced_orders (`+advancedOrderCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, string(o.Type), string(o.Status), string(o.Pair.Selling), string(o.Pair.Buying),
		o.PositionID, string(payload), o.ErrorMessage, utcPtr(o.ExpiresAt), utc(o.CreatedAt), utc(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: create advanced order %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: create advanced order %s: %w", o.ID, err)
	}
	return nil
}

func (s *advancedOrderStore) Update(ctx context.Context, o domain.AdvancedOrder) error {
	payload, err := o.EncodePayload()
	if err != nil {
		return fmt.Errorf("sqlite: update advanced order %s: %w", o.ID, err)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE advanced_orders
		SET status = ?, payload = ?, error_message = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		string(o.Status), string(payload), o.ErrorMessage, utcPtr(o.ExpiresAt), utc(time.Now()), o.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update advanced order %s: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *advancedOrderStore) GetByID(ctx context.Context, id string) (domain.AdvancedOrder, error) {
	o, err := scanAdvancedOrder(s.q.QueryRowContext(ctx, `SELECT `+advancedOrderCols+` FROM advanced_orders WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AdvancedOrder{}, domain.ErrNotFound
		}
		return domain.AdvancedOrder{}, fmt.Errorf("sqlite: get advanced order %s: %w", id, err)
	}
	return o, nil
}

func (s *advancedOrderStore) GetForUpdate(ctx context.Context, id string) (domain.AdvancedOrder, error) {
	return s.GetByID(ctx, id)
}

func (s *advancedOrderStore) FindByOfferID(ctx context.Context, offerID string) (domain.AdvancedOrder, error) {
	o, err := scanAdvancedOrder(s.q.QueryRowContext(ctx, `SELECT `+advancedOrderCols+` FROM advanced_orders
		WHERE (order_type = 'OCO' AND (
				(json_extract(payload, '$.stop_loss.offer_id') = ?1 AND json_extract(payload, '$.stop_loss.executed') = 0)
				OR (json_extract(payload, '$.take_profit.offer_id') = ?1 AND json_extract(payload, '$.take_profit.executed') = 0)))
		   OR (order_type = 'ICEBERG' AND json_extract(payload, '$.active_offer_id') = ?1)
		ORDER BY updated_at DESC
		LIMIT 1`, offerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AdvancedOrder{}, fmt.Errorf("sqlite: advanced order with offer %s: %w", offerID, domain.ErrNotFound)
		}
		return domain.AdvancedOrder{}, fmt.Errorf("sqlite: find advanced order by offer %s: %w", offerID, err)
	}
	return o, nil
}

func (s *advancedOrderStore) ListLive(ctx context.Context, orderType domain.AdvancedOrderType) ([]domain.AdvancedOrder, error) {
	out, err := s.list(ctx, `SELECT `+advancedOrderCols+` FROM advanced_orders
		WHERE order_type = ? AND status IN ('ACTIVE', 'PARTIALLY_FILLED') ORDER BY created_at, id`, string(orderType))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list live %s orders: %w", orderType, err)
	}
	return out, nil
}

func (s *advancedOrderStore) ListByUser(ctx context.Context, userID string, status domain.AdvancedOrderStatus, opts domain.ListOpts) ([]domain.AdvancedOrder, error) {
	query := `SELECT ` + advancedOrderCols + ` FROM advanced_orders WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query, args = appendWindow(query, args, "created_at", opts)
	out, err := s.list(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list advanced orders for user %s: %w", userID, err)
	}
	return out, nil
}

func (s *advancedOrderStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.AdvancedOrder, error) {
	out, err := s.list(ctx, `SELECT `+advancedOrderCols+` FROM advanced_orders
		WHERE status IN ('FILLED', 'CANCELLED', 'EXPIRED') AND updated_at < ? ORDER BY created_at, id`, utc(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list terminal advanced orders: %w", err)
	}
	return out, nil
}

type auditStore struct {
	q querier
}

func (s *auditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(data), utc(time.Now())); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

func (s *auditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`
	var args []any
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, utc(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND created_at < ?"
		args = append(args, utc(*opts.Until))
	}
	query += " ORDER BY id DESC"
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()
	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
