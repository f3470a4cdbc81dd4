package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// AdvancedOrderStore implements domain.AdvancedOrderStore using PostgreSQL.
// The OCO or iceberg state lives in the payload JSONB column.
type AdvancedOrderStore struct {
	q       querier
	locking bool
}

const advancedOrderSelectCols = `id, user_id, order_type, status, selling_asset, buying_asset,
	position_id, payload, error_message, expires_at, created_at, updated_at`

func scanAdvancedOrder(row pgx.Row) (domain.AdvancedOrder, error) {
	var (
		o                 domain.AdvancedOrder
		orderType, status string
		selling, buying   string
		payload           []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &orderType, &status, &selling, &buying,
		&o.PositionID, &payload, &o.ErrorMessage, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.AdvancedOrder{}, err
	}
	o.Type = domain.AdvancedOrderType(orderType)
	o.Status = domain.AdvancedOrderStatus(status)
	o.Pair = domain.AssetPair{Selling: domain.Asset(selling), Buying: domain.Asset(buying)}
	if err := o.DecodePayload(payload); err != nil {
		return domain.AdvancedOrder{}, fmt.Errorf("decode payload of %s: %w", o.ID, err)
	}
	return o, nil
}

func scanAdvancedOrders(rows pgx.Rows) ([]domain.AdvancedOrder, error) {
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

// Create inserts a new advanced order.
func (s *AdvancedOrderStore) Create(ctx context.Context, o domain.AdvancedOrder) error {
	payload, err := o.EncodePayload()
	if err != nil {
		return fmt.Errorf("postgres: create advanced order %s: %w", o.ID, err)
	}
	updatedAt := o.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = o.CreatedAt
	}

	const query = `
		INSERT INTO advanced_orders (
			id, user_id, order_type, status, selling_asset, buying_asset,
			position_id, payload, error_message, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.q.Exec(ctx, query,
		o.ID, o.UserID, string(o.Type), string(o.Status), string(o.Pair.Selling), string(o.Pair.Buying),
		o.PositionID, payload, o.ErrorMessage, o.ExpiresAt, o.CreatedAt, updatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create advanced order %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create advanced order %s: %w", o.ID, err)
	}
	return nil
}

// Update replaces the mutable state of an advanced order.
func (s *AdvancedOrderStore) Update(ctx context.Context, o domain.AdvancedOrder) error {
	payload, err := o.EncodePayload()
	if err != nil {
		return fmt.Errorf("postgres: update advanced order %s: %w", o.ID, err)
	}

	const query = `
		UPDATE advanced_orders SET
			status        = $2,
			payload       = $3,
			error_message = $4,
			expires_at    = $5,
			updated_at    = NOW()
		WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, o.ID, string(o.Status), payload, o.ErrorMessage, o.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: update advanced order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves an advanced order by its ID.
func (s *AdvancedOrderStore) GetByID(ctx context.Context, id string) (domain.AdvancedOrder, error) {
	return s.get(ctx, id, false)
}

// GetForUpdate reads the order and, inside a transaction, locks its row.
func (s *AdvancedOrderStore) GetForUpdate(ctx context.Context, id string) (domain.AdvancedOrder, error) {
	return s.get(ctx, id, s.locking)
}

func (s *AdvancedOrderStore) get(ctx context.Context, id string, lock bool) (domain.AdvancedOrder, error) {
	query := `SELECT ` + advancedOrderSelectCols + ` FROM advanced_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	o, err := scanAdvancedOrder(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AdvancedOrder{}, domain.ErrNotFound
		}
		return domain.AdvancedOrder{}, fmt.Errorf("postgres: get advanced order %s: %w", id, err)
	}
	return o, nil
}

// FindByOfferID returns the order owning a venue offer that is still on the
// book: an unexecuted OCO leg or the active iceberg slice.
func (s *AdvancedOrderStore) FindByOfferID(ctx context.Context, offerID string) (domain.AdvancedOrder, error) {
	query := `SELECT ` + advancedOrderSelectCols + ` FROM advanced_orders
		WHERE (order_type = 'OCO' AND (
				(payload->'stop_loss'->>'offer_id' = $1 AND NOT (payload->'stop_loss'->>'executed')::boolean)
				OR (payload->'take_profit'->>'offer_id' = $1 AND NOT (payload->'take_profit'->>'executed')::boolean)))
		   OR (order_type = 'ICEBERG' AND payload->>'active_offer_id' = $1)
		ORDER BY updated_at DESC
		LIMIT 1`
	o, err := scanAdvancedOrder(s.q.QueryRow(ctx, query, offerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AdvancedOrder{}, fmt.Errorf("postgres: advanced order with offer %s: %w", offerID, domain.ErrNotFound)
		}
		return domain.AdvancedOrder{}, fmt.Errorf("postgres: find advanced order by offer %s: %w", offerID, err)
	}
	return o, nil
}

// ListLive returns the non-terminal orders of one type, oldest first.
func (s *AdvancedOrderStore) ListLive(ctx context.Context, orderType domain.AdvancedOrderType) ([]domain.AdvancedOrder, error) {
	query := `SELECT ` + advancedOrderSelectCols + ` FROM advanced_orders
		WHERE order_type = $1 AND status IN ('ACTIVE', 'PARTIALLY_FILLED')
		ORDER BY created_at, id`
	rows, err := s.q.Query(ctx, query, string(orderType))
	if err != nil {
		return nil, fmt.Errorf("postgres: list live %s orders: %w", orderType, err)
	}
	out, err := scanAdvancedOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan live %s orders: %w", orderType, err)
	}
	return out, nil
}

// ListByUser returns a user's advanced orders. An empty status matches every
// status.
func (s *AdvancedOrderStore) ListByUser(ctx context.Context, userID string, status domain.AdvancedOrderStatus, opts domain.ListOpts) ([]domain.AdvancedOrder, error) {
	query := `SELECT ` + advancedOrderSelectCols + ` FROM advanced_orders WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query, args = appendWindow(query, args, "created_at", opts)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list advanced orders for user %s: %w", userID, err)
	}
	out, err := scanAdvancedOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan advanced orders for user %s: %w", userID, err)
	}
	return out, nil
}

// ListTerminalBefore returns finished orders last touched before before.
func (s *AdvancedOrderStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.AdvancedOrder, error) {
	query := `SELECT ` + advancedOrderSelectCols + ` FROM advanced_orders
		WHERE status IN ('FILLED', 'CANCELLED', 'EXPIRED') AND updated_at < $1
		ORDER BY created_at, id`
	rows, err := s.q.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal advanced orders: %w", err)
	}
	out, err := scanAdvancedOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal advanced orders: %w", err)
	}
	return out, nil
}
