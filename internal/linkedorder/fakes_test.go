package linkedorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/store/memory"
)

// bookVenue is an order book where tests decide which offers fill.
type bookVenue struct {
	mu         sync.Mutex
	seq        int
	book       map[string]domain.OfferRequest
	cancelled  []string
	submitErr  error
	batchErr   error
	cancelErrs map[string]error
}

func newBookVenue() *bookVenue {
	return &bookVenue{book: make(map[string]domain.OfferRequest), cancelErrs: make(map[string]error)}
}

func (v *bookVenue) SubmitLimitOffer(_ context.Context, req domain.OfferRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.submitErr != nil {
		return "", v.submitErr
	}
	v.seq++
	id := fmt.Sprintf("offer-%d", v.seq)
	v.book[id] = req
	return id, nil
}

func (v *bookVenue) SubmitLimitOffers(_ context.Context, reqs []domain.OfferRequest) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.batchErr != nil {
		return nil, v.batchErr
	}
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		v.seq++
		id := fmt.Sprintf("offer-%d", v.seq)
		v.book[id] = req
		ids = append(ids, id)
	}
	return ids, nil
}

func (v *bookVenue) OfferExists(_ context.Context, offerID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.book[offerID]
	return ok, nil
}

func (v *bookVenue) CancelOffer(_ context.Context, offerID string, _ domain.AssetPair, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelled = append(v.cancelled, offerID)
	if err := v.cancelErrs[offerID]; err != nil {
		return err
	}
	delete(v.book, offerID)
	return nil
}

func (v *bookVenue) SubmitMarketSell(context.Context, domain.MarketExitRequest) (float64, error) {
	return 0, errors.New("not used")
}

// fill takes offerID off the book as if a counterparty crossed it.
func (v *bookVenue) fill(offerID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.book, offerID)
}

func (v *bookVenue) offer(offerID string) domain.OfferRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.book[offerID]
}

type recordingAnnouncer struct {
	mu     sync.Mutex
	events []domain.Event
}

func (a *recordingAnnouncer) Announce(_ context.Context, evt domain.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt)
}

func (a *recordingAnnouncer) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Name)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var testPair = domain.AssetPair{Selling: "native", Buying: "USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"}

type fixture struct {
	store   *memory.Store
	venue   *bookVenue
	ann     *recordingAnnouncer
	oco     *OCOEngine
	iceberg *IcebergEngine
}

func newFixture() *fixture {
	f := &fixture{store: memory.New(), venue: newBookVenue(), ann: &recordingAnnouncer{}}
	f.oco = NewOCOEngine(f.store, f.venue, nil, f.ann, time.Second, discardLogger())
	f.iceberg = NewIcebergEngine(f.store, f.venue, nil, f.ann, time.Second, discardLogger())
	return f
}

// updateFailStore is a memory store whose advanced-order updates fail.
type updateFailStore struct {
	*memory.Store
	err error
}

func (s updateFailStore) AdvancedOrders() domain.AdvancedOrderStore {
	return updateFailOrders{AdvancedOrderStore: s.Store.AdvancedOrders(), err: s.err}
}

type updateFailOrders struct {
	domain.AdvancedOrderStore
	err error
}

func (o updateFailOrders) Update(context.Context, domain.AdvancedOrder) error { return o.err }
