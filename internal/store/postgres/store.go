package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on a PostgreSQL connection pool.
type Store struct {
	client *Client

	positions      *PositionStore
	exitOrders     *ExitOrderStore
	advancedOrders *AdvancedOrderStore
	audit          *AuditStore
}

// NewStore builds the store views over client's pool.
func NewStore(client *Client) *Store {
	pool := client.Pool()
	return &Store{
		client:         client,
		positions:      &PositionStore{q: pool},
		exitOrders:     &ExitOrderStore{q: pool},
		advancedOrders: &AdvancedOrderStore{q: pool},
		audit:          NewAuditStore(pool),
	}
}

func (s *Store) Positions() domain.PositionStore           { return s.positions }
func (s *Store) ExitOrders() domain.ExitOrderStore         { return s.exitOrders }
func (s *Store) AdvancedOrders() domain.AdvancedOrderStore { return s.advancedOrders }
func (s *Store) Audit() domain.AuditStore                  { return s.audit }

// Close shuts down the underlying pool.
func (s *Store) Close() {
	s.client.Close()
}

// InTx runs fn in a READ COMMITTED transaction. Reads through GetForUpdate
// take row locks that are held until commit or rollback.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.TxStores) error) error {
	return pgx.BeginTxFunc(ctx, s.client.Pool(), pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(domain.TxStores{
			Positions:      &PositionStore{q: tx, locking: true},
			ExitOrders:     &ExitOrderStore{q: tx},
			AdvancedOrders: &AdvancedOrderStore{q: tx, locking: true},
		})
	})
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
