package trigger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

func trailingLong(entry, pct float64) domain.Position {
	stop, high := InitialTrailing(entry, pct)
	return domain.Position{
		ID:              "pos-1",
		Side:            domain.PositionSideLong,
		EntryPrice:      entry,
		InitialQuantity: 10,
		Quantity:        10,
		StopLossPrice:   domain.Float64Ptr(stop),
		IsTrailingStop:  true,
		TrailingPercent: pct,
		HighestPrice:    high,
		Status:          domain.PositionStatusOpen,
	}
}

func TestInitialTrailing(t *testing.T) {
	stop, high := InitialTrailing(100, 5)
	assert.Equal(t, 95.0, stop)
	assert.Equal(t, 100.0, high)
}

func TestEvaluateTrailing_PriceSequence(t *testing.T) {
	pos := trailingLong(100, 5)

	var stops []float64
	for _, price := range []float64{100, 105, 110, 103} {
		if upd, ok := EvaluateTrailing(pos, price); ok {
			pos.HighestPrice = upd.HighestPrice
			pos.StopLossPrice = domain.Float64Ptr(upd.StopLossPrice)
		}
		stops = append(stops, *pos.StopLossPrice)
		if StopLossHit(pos, price) {
			assert.Equal(t, 103.0, price)
			assert.InDelta(t, 30.0, RealizedPnL(pos, price, pos.Quantity), 1e-9)
		}
	}

	assert.Equal(t, 110.0, pos.HighestPrice)
	assert.Equal(t, 104.5, *pos.StopLossPrice)
	assert.Equal(t, []float64{95, 99.75, 104.5, 104.5}, stops)
	assert.True(t, StopLossHit(pos, 103))
}

func TestEvaluateTrailing_NoOps(t *testing.T) {
	base := trailingLong(100, 5)

	tests := []struct {
		name  string
		mut   func(p *domain.Position)
		price float64
	}{
		{name: "trailing disabled", mut: func(p *domain.Position) { p.IsTrailingStop = false }, price: 120},
		{name: "closed", mut: func(p *domain.Position) { p.Status = domain.PositionStatusClosed }, price: 120},
		{name: "no stop", mut: func(p *domain.Position) { p.StopLossPrice = nil }, price: 120},
		{name: "short", mut: func(p *domain.Position) { p.Side = domain.PositionSideShort }, price: 120},
		{name: "price at previous high", mut: func(p *domain.Position) {}, price: 100},
		{name: "price below high", mut: func(p *domain.Position) {}, price: 99},
		{name: "stop would not rise", mut: func(p *domain.Position) { p.StopLossPrice = domain.Float64Ptr(101) }, price: 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := base
			tt.mut(&pos)
			_, ok := EvaluateTrailing(pos, tt.price)
			assert.False(t, ok)
		})
	}
}

func TestEvaluateTrailing_RoundsToEightPlaces(t *testing.T) {
	pos := trailingLong(1, 3.3)
	upd, ok := EvaluateTrailing(pos, 1.23456789)
	require.True(t, ok)
	assert.Equal(t, 1.19382715, upd.StopLossPrice)
}

func TestStopLossHit(t *testing.T) {
	long := domain.Position{Status: domain.PositionStatusOpen, Side: domain.PositionSideLong, StopLossPrice: domain.Float64Ptr(90)}
	short := domain.Position{Status: domain.PositionStatusOpen, Side: domain.PositionSideShort, StopLossPrice: domain.Float64Ptr(110)}

	assert.False(t, StopLossHit(long, 90.01))
	assert.True(t, StopLossHit(long, 90))
	assert.True(t, StopLossHit(long, 70), "gap-through must fire")
	assert.False(t, StopLossHit(short, 109))
	assert.True(t, StopLossHit(short, 125))

	long.StopLossPrice = nil
	assert.False(t, StopLossHit(long, 1))
}

func TestRealizedPnL(t *testing.T) {
	long := domain.Position{EntryPrice: 100, Side: domain.PositionSideLong}
	short := domain.Position{EntryPrice: 100, Side: domain.PositionSideShort}

	assert.Equal(t, 30.0, RealizedPnL(long, 103, 10))
	assert.Equal(t, -20.0, RealizedPnL(long, 98, 10))
	assert.Equal(t, 20.0, RealizedPnL(short, 98, 10))
}

func TestEvaluateTakeProfit_SingleTarget(t *testing.T) {
	pos := domain.Position{
		Status:          domain.PositionStatusOpen,
		Side:            domain.PositionSideLong,
		EntryPrice:      100,
		InitialQuantity: 4,
		Quantity:        4,
		TakeProfitPrice: domain.Float64Ptr(120),
	}

	_, ok := EvaluateTakeProfit(pos, 119.99)
	assert.False(t, ok)

	d, ok := EvaluateTakeProfit(pos, 121)
	require.True(t, ok)
	assert.Equal(t, TakeProfitDecision{TargetPrice: 120, Quantity: 4, FullClose: true}, d)
}

func TestEvaluateTakeProfit_Ladder(t *testing.T) {
	pos := domain.Position{
		Status:          domain.PositionStatusOpen,
		Side:            domain.PositionSideLong,
		EntryPrice:      100,
		InitialQuantity: 10,
		Quantity:        10,
		TakeProfitLevels: []domain.TakeProfitLevel{
			{Price: 110, ClosePercent: 25},
			{Price: 120, ClosePercent: 25},
			{Price: 130, ClosePercent: 50},
		},
	}

	d, ok := EvaluateTakeProfit(pos, 112)
	require.True(t, ok)
	assert.Equal(t, 1, d.Level)
	assert.Equal(t, 2.5, d.Quantity)
	assert.False(t, d.FullClose)

	pos.TakeProfitLevelsHit = 1
	pos.Quantity = 7.5
	_, ok = EvaluateTakeProfit(pos, 115)
	assert.False(t, ok)

	d, ok = EvaluateTakeProfit(pos, 131)
	require.True(t, ok, "gap through two levels merges them")
	assert.Equal(t, 3, d.Level)
	assert.Equal(t, 7.5, d.Quantity)
	assert.True(t, d.FullClose)
}

func TestEvaluateTakeProfit_HundredPercentBeforeLastLevel(t *testing.T) {
	pos := domain.Position{
		Status:          domain.PositionStatusOpen,
		Side:            domain.PositionSideLong,
		InitialQuantity: 10,
		Quantity:        10,
		TakeProfitLevels: []domain.TakeProfitLevel{
			{Price: 110, ClosePercent: 100},
			{Price: 120, ClosePercent: 0.0001},
		},
	}
	d, ok := EvaluateTakeProfit(pos, 110)
	require.True(t, ok)
	assert.True(t, d.FullClose)
	assert.Equal(t, 10.0, d.Quantity)
}

func TestValidateThresholds(t *testing.T) {
	valid := domain.Position{EntryPrice: 100, Quantity: 1, Side: domain.PositionSideLong}

	tests := []struct {
		name    string
		mut     func(p *domain.Position)
		wantErr bool
	}{
		{name: "plain", mut: func(p *domain.Position) {}},
		{name: "trailing in range", mut: func(p *domain.Position) { p.IsTrailingStop, p.TrailingPercent = true, 5 }},
		{name: "trailing too small", mut: func(p *domain.Position) { p.IsTrailingStop, p.TrailingPercent = true, 0.05 }, wantErr: true},
		{name: "trailing too large", mut: func(p *domain.Position) { p.IsTrailingStop, p.TrailingPercent = true, 51 }, wantErr: true},
		{name: "stop above entry", mut: func(p *domain.Position) { p.StopLossPrice = domain.Float64Ptr(101) }, wantErr: true},
		{name: "levels over 100", mut: func(p *domain.Position) {
			p.TakeProfitLevels = []domain.TakeProfitLevel{{Price: 110, ClosePercent: 60}, {Price: 120, ClosePercent: 50}}
		}, wantErr: true},
		{name: "levels not ascending", mut: func(p *domain.Position) {
			p.TakeProfitLevels = []domain.TakeProfitLevel{{Price: 120, ClosePercent: 50}, {Price: 110, ClosePercent: 50}}
		}, wantErr: true},
		{name: "zero quantity", mut: func(p *domain.Position) { p.Quantity = 0 }, wantErr: true},
		{name: "take profit above entry", mut: func(p *domain.Position) { p.TakeProfitPrice = domain.Float64Ptr(110) }},
		{name: "take profit below entry", mut: func(p *domain.Position) { p.TakeProfitPrice = domain.Float64Ptr(50) }, wantErr: true},
		{name: "take profit at entry", mut: func(p *domain.Position) { p.TakeProfitPrice = domain.Float64Ptr(100) }, wantErr: true},
		{name: "ladder below entry", mut: func(p *domain.Position) {
			p.TakeProfitLevels = []domain.TakeProfitLevel{{Price: 60, ClosePercent: 50}, {Price: 70, ClosePercent: 50}}
		}, wantErr: true},
		{name: "short take profit below entry", mut: func(p *domain.Position) {
			p.Side = domain.PositionSideShort
			p.TakeProfitPrice = domain.Float64Ptr(90)
		}},
		{name: "short take profit above entry", mut: func(p *domain.Position) {
			p.Side = domain.PositionSideShort
			p.TakeProfitPrice = domain.Float64Ptr(110)
		}, wantErr: true},
		{name: "short ladder above entry", mut: func(p *domain.Position) {
			p.Side = domain.PositionSideShort
			p.TakeProfitLevels = []domain.TakeProfitLevel{{Price: 105, ClosePercent: 50}, {Price: 95, ClosePercent: 50}}
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := valid
			tt.mut(&pos)
			err := ValidateThresholds(pos)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidOrder))
				return
			}
			assert.NoError(t, err)
		})
	}
}
