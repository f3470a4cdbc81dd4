// Package sqlite implements the store interfaces on an embedded SQLite
// database for single-node deployments. Writers are serialized on one
// connection and transactions start with BEGIN IMMEDIATE, which stands in for
// row locks.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

//go:embed schema.sql
var schema string

// Config holds the SQLite store settings.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Store implements domain.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the database at cfg.Path and applies the
// schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = "./data/exitengine.db"
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir %s: %w", filepath.Dir(path), err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on",
		path, busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sqlite store ready", slog.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Positions() domain.PositionStore           { return &positionStore{q: s.db} }
func (s *Store) ExitOrders() domain.ExitOrderStore         { return &exitOrderStore{q: s.db} }
func (s *Store) AdvancedOrders() domain.AdvancedOrderStore { return &advancedOrderStore{q: s.db} }
func (s *Store) Audit() domain.AuditStore                  { return &auditStore{q: s.db} }

// Close closes the database handle.
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("sqlite close failed", slog.String("error", err.Error()))
	}
}

// InTx runs fn in an immediate transaction. fn must only use the stores it
// is given: the pool has a single connection.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.TxStores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	// A panic in fn must still release the only connection.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(domain.TxStores{
		Positions:      &positionStore{q: tx},
		ExitOrders:     &exitOrderStore{q: tx},
		AdvancedOrders: &advancedOrderStore{q: tx},
	}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WarnContext(ctx, "sqlite rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// appendWindow adds the half-open ListOpts window, oldest-first ordering and
// pagination to query.
func appendWindow(query string, args []any, column string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += " AND " + column + " >= ?"
		args = append(args, utc(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND " + column + " < ?"
		args = append(args, utc(*opts.Until))
	}
	query += " ORDER BY " + column + ", id"
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}
	return query, args
}
