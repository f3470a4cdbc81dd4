package linkedorder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

func icebergParams() IcebergParams {
	return IcebergParams{UserID: "user-1", Pair: testPair, TotalAmount: 1000, DisplayAmount: 100, LimitPrice: 0.12}
}

func TestIcebergCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		mut  func(p *IcebergParams)
	}{
		{name: "display equals total", mut: func(p *IcebergParams) { p.DisplayAmount = 1000 }},
		{name: "display above total", mut: func(p *IcebergParams) { p.DisplayAmount = 2000 }},
		{name: "zero display", mut: func(p *IcebergParams) { p.DisplayAmount = 0 }},
		{name: "zero price", mut: func(p *IcebergParams) { p.LimitPrice = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := icebergParams()
			tt.mut(&p)
			_, err := f.iceberg.CreateOrder(context.Background(), p)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
			assert.Empty(t, f.venue.book)
		})
	}
}

func TestIcebergCreate_VenueFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.venue.submitErr = errors.New("underfunded")

	_, err := f.iceberg.CreateOrder(ctx, icebergParams())
	assert.ErrorIs(t, err, domain.ErrVenue)

	orders, err := f.store.AdvancedOrders().ListByUser(ctx, "user-1", "", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestIceberg_TenFillsCompleteOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	o, err := f.iceberg.CreateOrder(ctx, icebergParams())
	require.NoError(t, err)
	assert.Equal(t, domain.AdvancedOrderActive, o.Status)
	assert.Equal(t, 100.0, o.Iceberg.CurrentDisplayedAmount)
	assert.Zero(t, o.Iceberg.FilledAmount)
	assert.Equal(t, 100.0, f.venue.offer(o.Iceberg.ActiveOfferID).Amount)

	_, changed, err := f.iceberg.CheckAndRefill(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, changed, "slice still resting")

	current := o
	for i := 1; i <= 10; i++ {
		f.venue.fill(current.Iceberg.ActiveOfferID)
		current, changed, err = f.iceberg.CheckAndRefill(ctx, o.ID)
		require.NoError(t, err)
		require.True(t, changed)
		assert.Equal(t, float64(i*100), current.Iceberg.FilledAmount)
		if i < 10 {
			assert.Equal(t, domain.AdvancedOrderPartiallyFilled, current.Status)
			assert.Equal(t, 100.0, current.Iceberg.CurrentDisplayedAmount)
			assert.Equal(t, 0.12, f.venue.offer(current.Iceberg.ActiveOfferID).Price)
		}
	}

	assert.Equal(t, 1000.0, current.Iceberg.FilledAmount)
	assert.Equal(t, domain.AdvancedOrderFilled, current.Status)
	assert.Zero(t, current.Iceberg.CurrentDisplayedAmount)
	assert.Empty(t, current.Iceberg.ActiveOfferID)
	assert.Equal(t, 9, current.Iceberg.RefillCount)

	names := f.ann.names()
	require.Len(t, names, 10)
	assert.Equal(t, domain.EventIcebergFilled, names[9])
}

func TestIceberg_LastSliceIsRemainder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := icebergParams()
	p.TotalAmount = 250
	o, err := f.iceberg.CreateOrder(ctx, p)
	require.NoError(t, err)

	f.venue.fill(o.Iceberg.ActiveOfferID)
	o, _, err = f.iceberg.CheckAndRefill(ctx, o.ID)
	require.NoError(t, err)
	f.venue.fill(o.Iceberg.ActiveOfferID)
	o, _, err = f.iceberg.CheckAndRefill(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, 50.0, o.Iceberg.CurrentDisplayedAmount)
	assert.Equal(t, 50.0, f.venue.offer(o.Iceberg.ActiveOfferID).Amount)
}

func TestIceberg_RefillFailureRetriesWithoutDoubleCounting(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.iceberg.CreateOrder(ctx, icebergParams())
	require.NoError(t, err)

	f.venue.fill(o.Iceberg.ActiveOfferID)
	f.venue.submitErr = errors.New("horizon 504")
	got, _, err := f.iceberg.CheckAndRefill(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Iceberg.FilledAmount)
	assert.Equal(t, domain.AdvancedOrderActive, got.Status)
	assert.Contains(t, got.ErrorMessage, "horizon 504")
	assert.Empty(t, got.Iceberg.ActiveOfferID)
	assert.Equal(t, 100.0, got.Iceberg.CurrentDisplayedAmount, "pending slice keeps its size")
	assert.Zero(t, got.Iceberg.RefillCount)

	got, _, err = f.iceberg.CheckAndRefill(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Iceberg.FilledAmount, "fill must not be counted twice")
	assert.Equal(t, 100.0, got.Iceberg.CurrentDisplayedAmount)

	f.venue.submitErr = nil
	got, changed, err := f.iceberg.CheckAndRefill(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 100.0, got.Iceberg.FilledAmount)
	assert.Equal(t, 1, got.Iceberg.RefillCount)
	assert.Equal(t, domain.AdvancedOrderPartiallyFilled, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.NotEmpty(t, got.Iceberg.ActiveOfferID)
	assert.Equal(t, 100.0, f.venue.offer(got.Iceberg.ActiveOfferID).Amount)
}

func TestIcebergCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.iceberg.CreateOrder(ctx, icebergParams())
	require.NoError(t, err)
	active := o.Iceberg.ActiveOfferID

	got, err := f.iceberg.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdvancedOrderCancelled, got.Status)
	assert.Equal(t, []string{active}, f.venue.cancelled)
	assert.Zero(t, got.Iceberg.CurrentDisplayedAmount)

	_, err = f.iceberg.CancelOrder(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestIcebergCancel_RejectsFilled(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := icebergParams()
	p.TotalAmount = 150
	o, err := f.iceberg.CreateOrder(ctx, p)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		f.venue.fill(o.Iceberg.ActiveOfferID)
		o, _, err = f.iceberg.CheckAndRefill(ctx, o.ID)
		require.NoError(t, err)
	}
	require.Equal(t, domain.AdvancedOrderFilled, o.Status)

	_, err = f.iceberg.CancelOrder(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Empty(t, f.venue.cancelled)
}
