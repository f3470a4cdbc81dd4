package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	q       querier
	locking bool
}

const positionSelectCols = `id, user_id, symbol, selling_asset, buying_asset, side,
	entry_price, initial_quantity, quantity,
	stop_loss_price, is_trailing_stop, trailing_percent, highest_price,
	take_profit_price, take_profit_levels, take_profit_levels_hit,
	realized_pnl, status, exit_price, exit_reason, opened_at, closed_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p               domain.Position
		selling, buying string
		side, status    string
		levelsJSON      []byte
		exitReason      *string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Symbol, &selling, &buying, &side,
		&p.EntryPrice, &p.InitialQuantity, &p.Quantity,
		&p.StopLossPrice, &p.IsTrailingStop, &p.TrailingPercent, &p.HighestPrice,
		&p.TakeProfitPrice, &levelsJSON, &p.TakeProfitLevelsHit,
		&p.RealizedPnL, &status, &p.ExitPrice, &exitReason, &p.OpenedAt, &p.ClosedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Pair = domain.AssetPair{Selling: domain.Asset(selling), Buying: domain.Asset(buying)}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	if exitReason != nil {
		r := domain.ExitReason(*exitReason)
		p.ExitReason = &r
	}
	if len(levelsJSON) > 0 {
		if err := json.Unmarshal(levelsJSON, &p.TakeProfitLevels); err != nil {
			return domain.Position{}, fmt.Errorf("unmarshal take-profit levels: %w", err)
		}
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	var levelsJSON []byte
	if len(p.TakeProfitLevels) > 0 {
		var err error
		if levelsJSON, err = json.Marshal(p.TakeProfitLevels); err != nil {
			return fmt.Errorf("postgres: marshal take-profit levels: %w", err)
		}
	}
	var exitReason *string
	if p.ExitReason != nil {
		r := string(*p.ExitReason)
		exitReason = &r
	}
	side := p.Side
	if side == "" {
		side = domain.PositionSideLong
	}

	const query = `
		INSERT INTO positions (
			id, user_id, symbol, selling_asset, buying_asset, side,
			entry_price, initial_quantity, quantity,
			stop_loss_price, is_trailing_stop, trailing_percent, highest_price,
			take_profit_price, take_profit_levels, take_profit_levels_hit,
			realized_pnl, status, exit_price, exit_reason, opened_at, closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20, $21, $22, NOW()
		)`
	_, err := s.q.Exec(ctx, query,
		p.ID, p.UserID, p.Symbol, string(p.Pair.Selling), string(p.Pair.Buying), string(side),
		p.EntryPrice, p.InitialQuantity, p.Quantity,
		p.StopLossPrice, p.IsTrailingStop, p.TrailingPercent, p.HighestPrice,
		p.TakeProfitPrice, levelsJSON, p.TakeProfitLevelsHit,
		p.RealizedPnL, string(p.Status), p.ExitPrice, exitReason, p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create position %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	return s.get(ctx, id, false)
}

// GetForUpdate reads the position and, inside a transaction, locks its row.
func (s *PositionStore) GetForUpdate(ctx context.Context, id string) (domain.Position, error) {
	return s.get(ctx, id, s.locking)
}

func (s *PositionStore) get(ctx context.Context, id string, lock bool) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanPosition(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns every open position, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE status = 'OPEN' ORDER BY opened_at, id`
	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListByUser returns a user's positions, oldest first. An empty status
// matches every status.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query, args = appendWindow(query, args, "opened_at", opts)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for user %s: %w", userID, err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for user %s: %w", userID, err)
	}
	return positions, nil
}

// ListClosedBefore returns closed positions whose close time precedes before.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE status = 'CLOSED' AND closed_at < $1 ORDER BY closed_at, id`
	rows, err := s.q.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// UpdateTrailing ratchets the stop upwards. The WHERE clause makes the
// monotonic guard atomic with the write.
func (s *PositionStore) UpdateTrailing(ctx context.Context, id string, highestPrice, stopLossPrice float64) (bool, error) {
	const query = `
		UPDATE positions SET
			highest_price   = $2,
			stop_loss_price = $3,
			updated_at      = NOW()
		WHERE id = $1
		  AND status = 'OPEN'
		  AND stop_loss_price IS NOT NULL
		  AND stop_loss_price < $3`
	tag, err := s.q.Exec(ctx, query, id, highestPrice, stopLossPrice)
	if err != nil {
		return false, fmt.Errorf("postgres: update trailing stop %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordPartialExit stores the remaining quantity after a partial
// take-profit fill.
func (s *PositionStore) RecordPartialExit(ctx context.Context, p domain.PartialExitParams) error {
	const query = `
		UPDATE positions SET
			quantity               = $2,
			take_profit_levels_hit = $3,
			realized_pnl           = $4,
			updated_at             = NOW()
		WHERE id = $1 AND status = 'OPEN'`
	tag, err := s.q.Exec(ctx, query, p.ID, p.Quantity, p.LevelsHit, p.RealizedPnL)
	if err != nil {
		return fmt.Errorf("postgres: record partial exit %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrClosed(ctx, p.ID)
	}
	return nil
}

// Close writes the terminal fields of a position. It fails with
// ErrPositionClosed when the position was already closed.
func (s *PositionStore) Close(ctx context.Context, p domain.ClosePositionParams) error {
	const query = `
		UPDATE positions SET
			status       = 'CLOSED',
			quantity     = 0,
			exit_price   = $2,
			exit_reason  = $3,
			realized_pnl = $4,
			closed_at    = $5,
			updated_at   = NOW()
		WHERE id = $1 AND status = 'OPEN'`
	tag, err := s.q.Exec(ctx, query, p.ID, p.ExitPrice, string(p.Reason), p.RealizedPnL, p.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrClosed(ctx, p.ID)
	}
	return nil
}

func (s *PositionStore) missingOrClosed(ctx context.Context, id string) error {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check position %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrPositionClosed
}

// appendWindow adds the half-open ListOpts window [Since, Until), oldest-first
// ordering and pagination to query.
func appendWindow(query string, args []any, column string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND %s < $%d", column, len(args))
	}
	query += fmt.Sprintf(" ORDER BY %s, id", column)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
