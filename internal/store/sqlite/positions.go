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

type positionStore struct {
	q querier
}

const positionCols = `id, user_id, symbol, selling_asset, buying_asset, side,
	entry_price, initial_quantity, quantity,
	stop_loss_price, is_trailing_stop, trailing_percent, highest_price,
	take_profit_price, take_profit_levels, take_profit_levels_hit,
	realized_pnl, status, exit_price, exit_reason, opened_at, closed_at, updated_at`

func scanPosition(row scanner) (domain.Position, error) {
	var (
		p               domain.Position
		selling, buying string
		side, status    string
		levels          sql.NullString
		exitReason      sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.UserID, &p.Symbol, &selling, &buying, &side,
		&p.EntryPrice, &p.InitialQuantity, &p.Quantity,
		&p.StopLossPrice, &p.IsTrailingStop, &p.TrailingPercent, &p.HighestPrice,
		&p.TakeProfitPrice, &levels, &p.TakeProfitLevelsHit,
		&p.RealizedPnL, &status, &p.ExitPrice, &exitReason, &p.OpenedAt, &p.ClosedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Position{}, err
	}
	p.Pair = domain.AssetPair{Selling: domain.Asset(selling), Buying: domain.Asset(buying)}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	if exitReason.Valid {
		r := domain.ExitReason(exitReason.String)
		p.ExitReason = &r
	}
	if levels.Valid && levels.String != "" {
		if err := json.Unmarshal([]byte(levels.String), &p.TakeProfitLevels); err != nil {
			return domain.Position{}, fmt.Errorf("unmarshal take-profit levels: %w", err)
		}
	}
	return p, nil
}

func (s *positionStore) list(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *positionStore) Create(ctx context.Context, p domain.Position) error {
	var levels sql.NullString
	if len(p.TakeProfitLevels) > 0 {
		data, err := json.Marshal(p.TakeProfitLevels)
		if err != nil {
			return fmt.Errorf("sqlite: marshal take-profit levels: %w", err)
		}
		levels = sql.NullString{String: string(data), Valid: true}
	}
	var exitReason sql.NullString
	if p.ExitReason != nil {
		exitReason = sql.NullString{String: string(*p.ExitReason), Valid: true}
	}
	side := p.Side
	if side == "" {
		side = domain.PositionSideLong
	}

	_, err := s.q.ExecContext(ctx, `INSERT INTO positions (`+positionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Symbol, string(p.Pair.Selling), string(p.Pair.Buying), string(side),
		p.EntryPrice, p.InitialQuantity, p.Quantity,
		p.StopLossPrice, p.IsTrailingStop, p.TrailingPercent, p.HighestPrice,
		p.TakeProfitPrice, levels, p.TakeProfitLevelsHit,
		p.RealizedPnL, string(p.Status), p.ExitPrice, exitReason,
		utc(p.OpenedAt), utcPtr(p.ClosedAt), utc(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: create position %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: create position %s: %w", p.ID, err)
	}
	return nil
}

func (s *positionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.q.QueryRowContext(ctx, `SELECT `+positionCols+` FROM positions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("sqlite: get position %s: %w", id, err)
	}
	return p, nil
}

// GetForUpdate is GetByID: the immediate transaction already holds the
// database write lock.
func (s *positionStore) GetForUpdate(ctx context.Context, id string) (domain.Position, error) {
	return s.GetByID(ctx, id)
}

func (s *positionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	out, err := s.list(ctx, `SELECT `+positionCols+` FROM positions WHERE status = 'OPEN' ORDER BY opened_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list open positions: %w", err)
	}
	return out, nil
}

func (s *positionStore) ListByUser(ctx context.Context, userID string, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query, args = appendWindow(query, args, "opened_at", opts)
	out, err := s.list(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions for user %s: %w", userID, err)
	}
	return out, nil
}

func (s *positionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	out, err := s.list(ctx, `SELECT `+positionCols+` FROM positions
		WHERE status = 'CLOSED' AND closed_at < ? ORDER BY closed_at, id`, utc(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list closed positions: %w", err)
	}
	return out, nil
}

func (s *positionStore) UpdateTrailing(ctx context.Context, id string, highestPrice, stopLossPrice float64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE positions
		SET highest_price = ?, stop_loss_price = ?, updated_at = ?
		WHERE id = ? AND status = 'OPEN' AND stop_loss_price IS NOT NULL AND stop_loss_price < ?`,
		highestPrice, stopLossPrice, utc(time.Now()), id, stopLossPrice,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: update trailing stop %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: update trailing stop %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *positionStore) RecordPartialExit(ctx context.Context, p domain.PartialExitParams) error {
	res, err := s.q.ExecContext(ctx, `UPDATE positions
		SET quantity = ?, take_profit_levels_hit = ?, realized_pnl = ?, updated_at = ?
		WHERE id = ? AND status = 'OPEN'`,
		p.Quantity, p.LevelsHit, p.RealizedPnL, utc(time.Now()), p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record partial exit %s: %w", p.ID, err)
	}
	return s.requireUpdated(ctx, res, p.ID)
}

func (s *positionStore) Close(ctx context.Context, p domain.ClosePositionParams) error {
	res, err := s.q.ExecContext(ctx, `UPDATE positions
		SET status = 'CLOSED', quantity = 0, exit_price = ?, exit_reason = ?, realized_pnl = ?,
			closed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'OPEN'`,
		p.ExitPrice, string(p.Reason), p.RealizedPnL, utc(p.ClosedAt), utc(time.Now()), p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: close position %s: %w", p.ID, err)
	}
	return s.requireUpdated(ctx, res, p.ID)
}

// requireUpdated maps a no-op update to ErrNotFound or ErrPositionClosed.
func (s *positionStore) requireUpdated(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM positions WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: check position %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrPositionClosed
}
