package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

func openPosition(id string) domain.Position {
	return domain.Position{
		ID:              id,
		UserID:          "user-1",
		Symbol:          "XLM/USDC",
		Side:            domain.PositionSideLong,
		EntryPrice:      100,
		InitialQuantity: 10,
		Quantity:        10,
		StopLossPrice:   domain.Float64Ptr(95),
		IsTrailingStop:  true,
		TrailingPercent: 5,
		HighestPrice:    100,
		Status:          domain.PositionStatusOpen,
		OpenedAt:        time.Now().UTC(),
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Positions().Create(ctx, openPosition("p1")))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx domain.TxStores) error {
		require.NoError(t, tx.ExitOrders.Insert(ctx, domain.ExitOrder{
			ID:           "eo-1",
			ExitOrderKey: domain.TerminalExitKey(openPosition("p1")),
		}))
		require.NoError(t, tx.Positions.Close(ctx, domain.ClosePositionParams{ID: "p1", ExitPrice: 90, Reason: domain.ExitReasonStopLoss}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	pos, err := s.Positions().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, pos.IsOpen())
	_, err = s.ExitOrders().Find(ctx, domain.TerminalExitKey(pos))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Positions().Create(ctx, openPosition("p1")))

	err := s.InTx(ctx, func(tx domain.TxStores) error {
		return tx.Positions.Close(ctx, domain.ClosePositionParams{ID: "p1", ExitPrice: 90, Reason: domain.ExitReasonStopLoss, RealizedPnL: -100})
	})
	require.NoError(t, err)

	pos, err := s.Positions().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	assert.Equal(t, 90.0, *pos.ExitPrice)
	assert.Equal(t, domain.ExitReasonStopLoss, *pos.ExitReason)
	assert.Equal(t, -100.0, pos.RealizedPnL)

	err = s.Positions().Close(ctx, domain.ClosePositionParams{ID: "p1"})
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
}

func TestUpdateTrailing_NeverLowersStop(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Positions().Create(ctx, openPosition("p1")))

	ok, err := s.Positions().UpdateTrailing(ctx, "p1", 110, 104.5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Positions().UpdateTrailing(ctx, "p1", 105, 99.75)
	require.NoError(t, err)
	assert.False(t, ok)

	pos, err := s.Positions().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 104.5, *pos.StopLossPrice)
	assert.Equal(t, 110.0, pos.HighestPrice)
}

func TestExitOrderInsert_RejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := domain.TerminalExitKey(openPosition("p1"))

	require.NoError(t, s.ExitOrders().Insert(ctx, domain.ExitOrder{ID: "a", ExitOrderKey: key}))
	err := s.ExitOrders().Insert(ctx, domain.ExitOrder{ID: "b", ExitOrderKey: key})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	partial := domain.PartialExitKey(openPosition("p1"), 1)
	require.NoError(t, s.ExitOrders().Insert(ctx, domain.ExitOrder{ID: "c", ExitOrderKey: partial}))
}

func TestAdvancedOrders_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	order := domain.AdvancedOrder{
		ID:     "o1",
		UserID: "user-1",
		Type:   domain.AdvancedOrderOCO,
		Status: domain.AdvancedOrderActive,
		OCO: &domain.OCOPayload{
			StopLoss:   domain.OCOLeg{TriggerPrice: 90, Amount: 1, OfferID: "sl"},
			TakeProfit: domain.OCOLeg{TriggerPrice: 110, Amount: 1, OfferID: "tp"},
		},
	}
	require.NoError(t, s.AdvancedOrders().Create(ctx, order))

	got, err := s.AdvancedOrders().GetByID(ctx, "o1")
	require.NoError(t, err)
	got.OCO.StopLoss.Executed = true

	again, err := s.AdvancedOrders().GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, again.OCO.StopLoss.Executed)

	found, err := s.AdvancedOrders().FindByOfferID(ctx, "tp")
	require.NoError(t, err)
	assert.Equal(t, "o1", found.ID)

	live, err := s.AdvancedOrders().ListLive(ctx, domain.AdvancedOrderOCO)
	require.NoError(t, err)
	assert.Len(t, live, 1)
	live, err = s.AdvancedOrders().ListLive(ctx, domain.AdvancedOrderIceberg)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestInTx_SerializesTransactions(t *testing.T) {
	ctx := context.Background()
	s := New()

	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.InTx(ctx, func(domain.TxStores) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- s.InTx(ctx, func(domain.TxStores) error { return nil })
	}()

	select {
	case <-secondDone:
		t.Fatal("second transaction ran while the first held the store")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)
}
