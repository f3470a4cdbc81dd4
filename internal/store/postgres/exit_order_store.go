package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// ExitOrderStore implements domain.ExitOrderStore using PostgreSQL.
type ExitOrderStore struct {
	q querier
}

const exitOrderSelectCols = `id, position_id, order_type, side, exit_order, level,
	user_id, reason, quantity, trigger_price, fill_price, realized_pnl, created_at, filled_at`

func scanExitOrder(row pgx.Row) (domain.ExitOrder, error) {
	var (
		eo                      domain.ExitOrder
		orderType, side, reason string
	)
	err := row.Scan(
		&eo.ID, &eo.PositionID, &orderType, &side, &eo.ExitOrder, &eo.Level,
		&eo.UserID, &reason, &eo.Quantity, &eo.TriggerPrice, &eo.FillPrice, &eo.RealizedPnL,
		&eo.CreatedAt, &eo.FilledAt,
	)
	if err != nil {
		return domain.ExitOrder{}, err
	}
	eo.Type = domain.ExitOrderType(orderType)
	eo.Side = domain.ExitOrderSide(side)
	eo.Reason = domain.ExitReason(reason)
	return eo, nil
}

// Find looks up the exit recorded under key.
func (s *ExitOrderStore) Find(ctx context.Context, key domain.ExitOrderKey) (domain.ExitOrder, error) {
	query := `SELECT ` + exitOrderSelectCols + ` FROM exit_orders
		WHERE position_id = $1 AND order_type = $2 AND side = $3 AND exit_order = $4 AND level = $5`
	eo, err := scanExitOrder(s.q.QueryRow(ctx, query,
		key.PositionID, string(key.Type), string(key.Side), key.ExitOrder, key.Level,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExitOrder{}, domain.ErrNotFound
		}
		return domain.ExitOrder{}, fmt.Errorf("postgres: find exit order for %s: %w", key.PositionID, err)
	}
	return eo, nil
}

// Insert records a new exit. A second exit with the same key fails with
// ErrAlreadyExists.
func (s *ExitOrderStore) Insert(ctx context.Context, eo domain.ExitOrder) error {
	const query = `
		INSERT INTO exit_orders (
			id, position_id, order_type, side, exit_order, level,
			user_id, reason, quantity, trigger_price, fill_price, realized_pnl,
			created_at, filled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.q.Exec(ctx, query,
		eo.ID, eo.PositionID, string(eo.Type), string(eo.Side), eo.ExitOrder, eo.Level,
		eo.UserID, string(eo.Reason), eo.Quantity, eo.TriggerPrice, eo.FillPrice, eo.RealizedPnL,
		eo.CreatedAt, eo.FilledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: insert exit order %s: %w", eo.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert exit order %s: %w", eo.ID, err)
	}
	return nil
}

// RecordFill stores the venue fill of an exit.
func (s *ExitOrderStore) RecordFill(ctx context.Context, id string, fillPrice, realizedPnL float64, filledAt time.Time) error {
	const query = `
		UPDATE exit_orders SET fill_price = $2, realized_pnl = $3, filled_at = $4
		WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, id, fillPrice, realizedPnL, filledAt)
	if err != nil {
		return fmt.Errorf("postgres: record fill for exit order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByPosition returns the exits of a position in creation order.
func (s *ExitOrderStore) ListByPosition(ctx context.Context, positionID string) ([]domain.ExitOrder, error) {
	query := `SELECT ` + exitOrderSelectCols + ` FROM exit_orders
		WHERE position_id = $1 ORDER BY created_at, level`
	rows, err := s.q.Query(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exit orders for %s: %w", positionID, err)
	}
	defer rows.Close()

	var out []domain.ExitOrder
	for rows.Next() {
		eo, err := scanExitOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan exit order: %w", err)
		}
		out = append(out, eo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list exit orders rows: %w", err)
	}
	return out, nil
}
