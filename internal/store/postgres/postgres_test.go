package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u:p@db:6543/x", Host: "ignored"},
			want: "postgres://u:p@db:6543/x",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "localhost", Database: "exits", User: "bot", Password: "pw"},
			want: "postgres://bot:pw@localhost:5432/exits?sslmode=disable",
		},
		{
			name: "custom sslmode",
			cfg:  ClientConfig{Host: "h", Port: 5433, Database: "d", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@h:5433/d?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func liveStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("EXITENGINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EXITENGINE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	client, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	require.NoError(t, client.RunMigrations(ctx))
	s := NewStore(client)
	t.Cleanup(s.Close)
	return s
}

func newPosition() domain.Position {
	return domain.Position{
		ID:              uuid.NewString(),
		UserID:          "user-" + uuid.NewString()[:8],
		Symbol:          "XLM/USDC",
		Pair:            domain.AssetPair{Selling: "native", Buying: "USDC:GA5Z"},
		Side:            domain.PositionSideLong,
		EntryPrice:      100,
		InitialQuantity: 10,
		Quantity:        10,
		StopLossPrice:   domain.Float64Ptr(95),
		IsTrailingStop:  true,
		TrailingPercent: 5,
		HighestPrice:    100,
		TakeProfitLevels: []domain.TakeProfitLevel{
			{Price: 110, ClosePercent: 50},
			{Price: 120, ClosePercent: 50},
		},
		Status:   domain.PositionStatusOpen,
		OpenedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestLivePositionLifecycle(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()
	pos := newPosition()
	require.NoError(t, s.Positions().Create(ctx, pos))
	assert.ErrorIs(t, s.Positions().Create(ctx, pos), domain.ErrAlreadyExists)

	got, err := s.Positions().GetByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.TakeProfitLevels, got.TakeProfitLevels)
	assert.Equal(t, 95.0, *got.StopLossPrice)

	applied, err := s.Positions().UpdateTrailing(ctx, pos.ID, 110, 104.5)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.Positions().UpdateTrailing(ctx, pos.ID, 110, 100)
	require.NoError(t, err)
	assert.False(t, applied, "stop must never move down")

	require.NoError(t, s.Positions().Close(ctx, domain.ClosePositionParams{
		ID: pos.ID, ExitPrice: 103, Reason: domain.ExitReasonStopLoss, RealizedPnL: 30, ClosedAt: time.Now().UTC(),
	}))
	err = s.Positions().Close(ctx, domain.ClosePositionParams{ID: pos.ID, ClosedAt: time.Now().UTC()})
	assert.ErrorIs(t, err, domain.ErrPositionClosed)

	got, err = s.Positions().GetByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	require.NotNil(t, got.ExitReason)
	assert.Equal(t, domain.ExitReasonStopLoss, *got.ExitReason)
	assert.Zero(t, got.Quantity)

	_, err = s.Positions().GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLiveExitOrderCheckThenInsert(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()
	pos := newPosition()
	require.NoError(t, s.Positions().Create(ctx, pos))
	key := domain.TerminalExitKey(pos)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx domain.TxStores) error {
				if _, err := tx.Positions.GetForUpdate(ctx, pos.ID); err != nil {
					return err
				}
				if _, err := tx.ExitOrders.Find(ctx, key); err == nil {
					return nil
				} else if !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				if err := tx.ExitOrders.Insert(ctx, domain.ExitOrder{
					ID:           uuid.NewString(),
					ExitOrderKey: key,
					UserID:       pos.UserID,
					Reason:       domain.ExitReasonStopLoss,
					Quantity:     pos.Quantity,
					TriggerPrice: 94,
					CreatedAt:    time.Now().UTC(),
				}); err != nil {
					return err
				}
				mu.Lock()
				inserted++
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	exits, err := s.ExitOrders().ListByPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Len(t, exits, 1)
}

func TestLiveAdvancedOrderPayload(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	order := domain.AdvancedOrder{
		ID:     uuid.NewString(),
		UserID: "user-" + uuid.NewString()[:8],
		Type:   domain.AdvancedOrderIceberg,
		Status: domain.AdvancedOrderActive,
		Pair:   domain.AssetPair{Selling: "native", Buying: "USDC:GA5Z"},
		Iceberg: &domain.IcebergPayload{
			TotalAmount: 1000, DisplayAmount: 100, CurrentDisplayedAmount: 100,
			ActiveOfferID: "offer-" + uuid.NewString(), LimitPrice: 0.12,
		},
		CreatedAt: now,
	}
	require.NoError(t, s.AdvancedOrders().Create(ctx, order))

	found, err := s.AdvancedOrders().FindByOfferID(ctx, order.Iceberg.ActiveOfferID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	require.NotNil(t, found.Iceberg)
	assert.Equal(t, 1000.0, found.Iceberg.TotalAmount)

	found.Status = domain.AdvancedOrderFilled
	found.Iceberg.FilledAmount = 1000
	found.Iceberg.ActiveOfferID = ""
	require.NoError(t, s.AdvancedOrders().Update(ctx, found))

	live, err := s.AdvancedOrders().ListLive(ctx, domain.AdvancedOrderIceberg)
	require.NoError(t, err)
	for _, o := range live {
		assert.NotEqual(t, order.ID, o.ID)
	}
	_, err = s.AdvancedOrders().FindByOfferID(ctx, order.Iceberg.ActiveOfferID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
