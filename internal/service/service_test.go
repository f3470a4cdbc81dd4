package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/executor"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/store/memory"
)

var xlmUSDC = domain.AssetPair{Selling: "native", Buying: "USDC:GA5Z"}

type fixedPrices map[string]float64

func (f fixedPrices) GetBatchPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range symbols {
		if v, ok := f[s]; ok {
			out[s] = v
		}
	}
	return out, nil
}

type recordingExiter struct {
	reqs []executor.ExitRequest
}

func (r *recordingExiter) ExecuteExit(_ context.Context, req executor.ExitRequest) (executor.ExitResult, error) {
	r.reqs = append(r.reqs, req)
	return executor.ExitResult{ExecutedPrice: req.CurrentPrice, Quantity: req.Position.Quantity, Closed: true}, nil
}

type recordingAnnouncer struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingAnnouncer) Announce(_ context.Context, evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newPositionService(store *memory.Store, prices fixedPrices) (*PositionService, *recordingExiter, *recordingAnnouncer) {
	ex := &recordingExiter{}
	ann := &recordingAnnouncer{}
	return NewPositionService(store.Positions(), prices, ex, ann, discardLogger()), ex, ann
}

func TestOpenSeedsTrailingStop(t *testing.T) {
	store := memory.New()
	svc, _, ann := newPositionService(store, fixedPrices{"XLM/USDC": 0.2})

	pos, err := svc.Open(context.Background(), OpenPositionParams{
		UserID:          "u1",
		Pair:            xlmUSDC,
		Quantity:        1000,
		IsTrailingStop:  true,
		TrailingPercent: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "XLM/USDC", pos.Symbol)
	assert.Equal(t, domain.PositionSideLong, pos.Side)
	assert.Equal(t, 0.2, pos.EntryPrice, "entry filled from the price source")
	require.NotNil(t, pos.StopLossPrice)
	assert.Equal(t, 0.19, *pos.StopLossPrice)
	assert.Equal(t, 0.2, pos.HighestPrice)
	assert.Equal(t, 1000.0, pos.InitialQuantity)

	stored, err := store.Positions().GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.StopLossPrice, stored.StopLossPrice)

	require.Len(t, ann.events, 1)
	assert.Equal(t, domain.EventPositionOpened, ann.events[0].Name)
	assert.Equal(t, domain.EventKindState, ann.events[0].Kind)
}

func TestOpenRejectsInvalidThresholds(t *testing.T) {
	store := memory.New()
	svc, _, ann := newPositionService(store, fixedPrices{})
	ctx := context.Background()

	tests := []struct {
		name string
		p    OpenPositionParams
	}{
		{"missing user", OpenPositionParams{Pair: xlmUSDC, EntryPrice: 1, Quantity: 1}},
		{"stop above entry", OpenPositionParams{UserID: "u", Pair: xlmUSDC, EntryPrice: 1, Quantity: 1, StopLossPrice: domain.Float64Ptr(1.1)}},
		{"trailing out of range", OpenPositionParams{UserID: "u", Pair: xlmUSDC, EntryPrice: 1, Quantity: 1, IsTrailingStop: true, TrailingPercent: 60}},
		{"levels over 100", OpenPositionParams{UserID: "u", Pair: xlmUSDC, EntryPrice: 1, Quantity: 1, TakeProfitLevels: []domain.TakeProfitLevel{
			{Price: 1.1, ClosePercent: 70}, {Price: 1.2, ClosePercent: 40},
		}}},
		{"take profit below entry", OpenPositionParams{UserID: "u", Pair: xlmUSDC, EntryPrice: 1, Quantity: 1, TakeProfitPrice: domain.Float64Ptr(0.5)}},
		{"ladder below entry", OpenPositionParams{UserID: "u", Pair: xlmUSDC, EntryPrice: 1, Quantity: 1, TakeProfitLevels: []domain.TakeProfitLevel{
			{Price: 0.6, ClosePercent: 50}, {Price: 0.7, ClosePercent: 50},
		}}},
		{"short take profit above entry", OpenPositionParams{UserID: "u", Pair: xlmUSDC, Side: domain.PositionSideShort, EntryPrice: 1, Quantity: 1, TakeProfitPrice: domain.Float64Ptr(1.2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Open(ctx, tt.p)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
		})
	}

	_, err := svc.Open(ctx, OpenPositionParams{UserID: "u", Pair: xlmUSDC, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	open, err := store.Positions().ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Empty(t, ann.events)
}

func TestCloseExecutesManualExit(t *testing.T) {
	store := memory.New()
	svc, ex, _ := newPositionService(store, fixedPrices{"XLM/USDC": 0.25})
	ctx := context.Background()

	pos, err := svc.Open(ctx, OpenPositionParams{UserID: "u1", Pair: xlmUSDC, EntryPrice: 0.2, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.Close(ctx, "someone-else", pos.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := svc.Close(ctx, "u1", pos.ID)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	require.Len(t, ex.reqs, 1)
	assert.Equal(t, domain.ExitReasonManual, ex.reqs[0].Reason)
	assert.True(t, ex.reqs[0].FullClose)
	assert.Equal(t, 0.25, ex.reqs[0].CurrentPrice)
}

func TestCloseRejectsClosedPosition(t *testing.T) {
	store := memory.New()
	svc, ex, _ := newPositionService(store, fixedPrices{"XLM/USDC": 0.25})
	ctx := context.Background()

	pos, err := svc.Open(ctx, OpenPositionParams{UserID: "u1", Pair: xlmUSDC, EntryPrice: 0.2, Quantity: 10})
	require.NoError(t, err)
	require.NoError(t, store.Positions().Close(ctx, domain.ClosePositionParams{
		ID: pos.ID, ExitPrice: 0.3, Reason: domain.ExitReasonTakeProfit, RealizedPnL: 1, ClosedAt: time.Now().UTC(),
	}))

	_, err = svc.Close(ctx, "u1", pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
	assert.Empty(t, ex.reqs)
}

func TestOrderQueryServiceScopesByUser(t *testing.T) {
	store := memory.New()
	svc, _, _ := newPositionService(store, fixedPrices{})
	q := NewOrderQueryService(store)
	ctx := context.Background()

	mine, err := svc.Open(ctx, OpenPositionParams{UserID: "u1", Pair: xlmUSDC, EntryPrice: 1, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Open(ctx, OpenPositionParams{UserID: "u2", Pair: xlmUSDC, EntryPrice: 1, Quantity: 1})
	require.NoError(t, err)

	got, err := q.Position(ctx, "u1", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)
	_, err = q.Position(ctx, "u2", mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := q.Positions(ctx, "u1", domain.PositionStatusOpen, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	exits, err := q.Exits(ctx, "u1", mine.ID)
	require.NoError(t, err)
	assert.Empty(t, exits)
	_, err = q.Exits(ctx, "u2", mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	now := time.Now().UTC()
	order := domain.AdvancedOrder{
		ID: "o1", UserID: "u1", Type: domain.AdvancedOrderOCO, Status: domain.AdvancedOrderActive, Pair: xlmUSDC,
		OCO:       &domain.OCOPayload{StopLoss: domain.OCOLeg{TriggerPrice: 0.9, Amount: 1}, TakeProfit: domain.OCOLeg{TriggerPrice: 1.1, Amount: 1}},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.AdvancedOrders().Create(ctx, order))

	orders, err := q.AdvancedOrders(ctx, "u1", "", domain.ListOpts{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	_, err = q.AdvancedOrder(ctx, "u2", "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPageOpts(t *testing.T) {
	assert.Equal(t, DefaultPageSize, pageOpts(domain.ListOpts{}).Limit)
	assert.Equal(t, DefaultPageSize, pageOpts(domain.ListOpts{Limit: 5000}).Limit)
	assert.Equal(t, 10, pageOpts(domain.ListOpts{Limit: 10}).Limit)
	assert.Zero(t, pageOpts(domain.ListOpts{Offset: -3}).Offset)
}
