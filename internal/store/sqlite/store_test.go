package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{Path: filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPosition(id string, openedAt time.Time) domain.Position {
	return domain.Position{
		ID:              id,
		UserID:          "user-1",
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
			{Price: 110, ClosePercent: 25},
			{Price: 120, ClosePercent: 75},
		},
		Status:   domain.PositionStatusOpen,
		OpenedAt: openedAt,
	}
}

func TestPositionRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	pos := testPosition("p1", t0)
	require.NoError(t, s.Positions().Create(ctx, pos))
	assert.ErrorIs(t, s.Positions().Create(ctx, pos), domain.ErrAlreadyExists)

	got, err := s.Positions().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, pos.Pair, got.Pair)
	assert.Equal(t, pos.TakeProfitLevels, got.TakeProfitLevels)
	assert.True(t, got.IsTrailingStop)
	require.NotNil(t, got.StopLossPrice)
	assert.Equal(t, 95.0, *got.StopLossPrice)
	assert.Nil(t, got.TakeProfitPrice)
	assert.Nil(t, got.ExitReason)
	assert.True(t, got.OpenedAt.Equal(t0))

	_, err = s.Positions().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateTrailingOnlyRaises(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.Positions().Create(ctx, testPosition("p1", t0)))

	tests := []struct {
		name    string
		highest float64
		stop    float64
		applied bool
	}{
		{"raise", 105, 99.75, true},
		{"equal stop", 105, 99.75, false},
		{"lower stop", 104, 98.8, false},
		{"raise again", 110, 104.5, true},
	}
	for _, tt := range tests {
		applied, err := s.Positions().UpdateTrailing(ctx, "p1", tt.highest, tt.stop)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.applied, applied, tt.name)
	}

	got, err := s.Positions().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 110.0, got.HighestPrice)
	assert.Equal(t, 104.5, *got.StopLossPrice)
}

func TestCloseAndPartialExit(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.Positions().Create(ctx, testPosition("p1", t0)))

	require.NoError(t, s.Positions().RecordPartialExit(ctx, domain.PartialExitParams{
		ID: "p1", Quantity: 7.5, LevelsHit: 1, RealizedPnL: 25,
	}))
	require.NoError(t, s.Positions().Close(ctx, domain.ClosePositionParams{
		ID: "p1", ExitPrice: 120, Reason: domain.ExitReasonTakeProfit, RealizedPnL: 175, ClosedAt: t0.Add(time.Hour),
	}))

	err := s.Positions().Close(ctx, domain.ClosePositionParams{ID: "p1", ClosedAt: t0})
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
	err = s.Positions().RecordPartialExit(ctx, domain.PartialExitParams{ID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.Positions().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	assert.Zero(t, got.Quantity)
	assert.Equal(t, 175.0, got.RealizedPnL)
	assert.Equal(t, 1, got.TakeProfitLevelsHit)
	require.NotNil(t, got.ExitReason)
	assert.Equal(t, domain.ExitReasonTakeProfit, *got.ExitReason)

	open, err := s.Positions().ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := s.Positions().ListClosedBefore(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, closed, 1)
	closed, err = s.Positions().ListClosedBefore(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestListByUserPagination(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Positions().Create(ctx, testPosition(id, t0.Add(time.Duration(i)*time.Minute))))
	}

	page, err := s.Positions().ListByUser(ctx, "user-1", "", domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID)

	page, err = s.Positions().ListByUser(ctx, "user-1", domain.PositionStatusOpen, domain.ListOpts{Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ID)

	page, err = s.Positions().ListByUser(ctx, "user-2", "", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestExitOrderCheckThenInsertIsSerialized(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	pos := testPosition("p1", t0)
	require.NoError(t, s.Positions().Create(ctx, pos))
	key := domain.TerminalExitKey(pos)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx domain.TxStores) error {
				if _, err := tx.Positions.GetForUpdate(ctx, pos.ID); err != nil {
					return err
				}
				_, err := tx.ExitOrders.Find(ctx, key)
				if err == nil {
					return nil
				}
				if !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				if err := tx.ExitOrders.Insert(ctx, domain.ExitOrder{
					ID:           "eo-" + string(rune('a'+i)),
					ExitOrderKey: key,
					UserID:       pos.UserID,
					Reason:       domain.ExitReasonStopLoss,
					Quantity:     10,
					TriggerPrice: 94,
					CreatedAt:    t0,
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
	require.Len(t, exits, 1)
	assert.True(t, exits[0].ExitOrder)

	err = s.ExitOrders().Insert(ctx, domain.ExitOrder{ID: "dup", ExitOrderKey: key, UserID: "u", Reason: domain.ExitReasonStopLoss, CreatedAt: t0})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.NoError(t, s.ExitOrders().RecordFill(ctx, exits[0].ID, 94.5, -55, t0.Add(time.Second)))
	got, err := s.ExitOrders().Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 94.5, got.FillPrice)
	require.NotNil(t, got.FilledAt)
}

func TestTxRollback(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	pos := testPosition("p1", t0)
	require.NoError(t, s.Positions().Create(ctx, pos))

	boom := errors.New("venue down")
	err := s.InTx(ctx, func(tx domain.TxStores) error {
		require.NoError(t, tx.ExitOrders.Insert(ctx, domain.ExitOrder{
			ID: "eo-1", ExitOrderKey: domain.TerminalExitKey(pos), UserID: "user-1",
			Reason: domain.ExitReasonStopLoss, CreatedAt: t0,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.ExitOrders().Find(ctx, domain.TerminalExitKey(pos))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTxPanicReleasesConnection(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	func() {
		defer func() { assert.Equal(t, "venue blew up", recover()) }()
		_ = s.InTx(ctx, func(tx domain.TxStores) error {
			require.NoError(t, tx.Positions.Create(ctx, testPosition("p1", t0)))
			panic("venue blew up")
		})
	}()

	short, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	open, err := s.Positions().ListOpen(short)
	require.NoError(t, err)
	assert.Empty(t, open, "the panicking transaction rolled back")

	require.NoError(t, s.InTx(ctx, func(tx domain.TxStores) error {
		return tx.Positions.Create(ctx, testPosition("p2", t0))
	}))
}

func TestAdvancedOrders(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	posID := "p1"
	oco := domain.AdvancedOrder{
		ID: "oco-1", UserID: "user-1", Type: domain.AdvancedOrderOCO, Status: domain.AdvancedOrderActive,
		Pair:       domain.AssetPair{Selling: "native", Buying: "USDC:GA5Z"},
		PositionID: &posID,
		OCO: &domain.OCOPayload{
			StopLoss:   domain.OCOLeg{TriggerPrice: 0.09, Amount: 100, OfferID: "sl-1"},
			TakeProfit: domain.OCOLeg{TriggerPrice: 0.15, Amount: 100, OfferID: "tp-1"},
		},
		CreatedAt: t0,
	}
	ice := domain.AdvancedOrder{
		ID: "ice-1", UserID: "user-1", Type: domain.AdvancedOrderIceberg, Status: domain.AdvancedOrderActive,
		Pair: domain.AssetPair{Selling: "native", Buying: "USDC:GA5Z"},
		Iceberg: &domain.IcebergPayload{
			TotalAmount: 1000, DisplayAmount: 100, CurrentDisplayedAmount: 100, ActiveOfferID: "slice-1", LimitPrice: 0.12,
		},
		CreatedAt: t0.Add(time.Minute),
	}
	require.NoError(t, s.AdvancedOrders().Create(ctx, oco))
	require.NoError(t, s.AdvancedOrders().Create(ctx, ice))

	found, err := s.AdvancedOrders().FindByOfferID(ctx, "tp-1")
	require.NoError(t, err)
	assert.Equal(t, "oco-1", found.ID)
	require.NotNil(t, found.PositionID)
	assert.Equal(t, posID, *found.PositionID)

	found, err = s.AdvancedOrders().FindByOfferID(ctx, "slice-1")
	require.NoError(t, err)
	assert.Equal(t, "ice-1", found.ID)
	assert.Equal(t, 1000.0, found.Iceberg.TotalAmount)

	_, err = s.AdvancedOrders().FindByOfferID(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Executing the take-profit leg takes its offer off the index.
	now := t0.Add(2 * time.Minute)
	oco.OCO.TakeProfit.Executed = true
	oco.OCO.TakeProfit.ExecutedAt = &now
	oco.Status = domain.AdvancedOrderFilled
	require.NoError(t, s.AdvancedOrders().Update(ctx, oco))
	_, err = s.AdvancedOrders().FindByOfferID(ctx, "tp-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	live, err := s.AdvancedOrders().ListLive(ctx, domain.AdvancedOrderOCO)
	require.NoError(t, err)
	assert.Empty(t, live)
	live, err = s.AdvancedOrders().ListLive(ctx, domain.AdvancedOrderIceberg)
	require.NoError(t, err)
	assert.Len(t, live, 1)

	terminal, err := s.AdvancedOrders().ListTerminalBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, terminal, 1)
	assert.Equal(t, "oco-1", terminal[0].ID)
	assert.True(t, terminal[0].OCO.TakeProfit.Executed)

	byUser, err := s.AdvancedOrders().ListByUser(ctx, "user-1", domain.AdvancedOrderActive, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "ice-1", byUser[0].ID)

	assert.ErrorIs(t, s.AdvancedOrders().Update(ctx, domain.AdvancedOrder{
		ID: "ghost", Type: domain.AdvancedOrderIceberg, Iceberg: &domain.IcebergPayload{},
	}), domain.ErrNotFound)
}

func TestAuditLog(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.Audit().Log(ctx, "position.stop_loss_hit", map[string]any{"position": "p1"}))
	require.NoError(t, s.Audit().Log(ctx, "position.take_profit_hit", map[string]any{"position": "p2"}))

	entries, err := s.Audit().List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "position.take_profit_hit", entries[0].Event)
	assert.Equal(t, "p2", entries[0].Detail["position"])
}
