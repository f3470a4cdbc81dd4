// Package venue holds venue gateway decorators and the paper-trading venue.
package venue

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// RateLimited throttles every call to the wrapped gateway. A local token
// bucket smooths bursts from one process; the optional shared limiter keeps
// all engine instances inside the venue's account-wide budget.
type RateLimited struct {
	next   domain.VenueGateway
	local  *rate.Limiter
	shared domain.RateLimiter
	key    string
}

// NewRateLimited wraps next. perSecond <= 0 disables the local bucket; a nil
// shared limiter disables the distributed one.
func NewRateLimited(next domain.VenueGateway, perSecond float64, burst int, shared domain.RateLimiter, key string) *RateLimited {
	var local *rate.Limiter
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		local = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	if key == "" {
		key = "venue"
	}
	return &RateLimited{next: next, local: local, shared: shared, key: key}
}

func (r *RateLimited) wait(ctx context.Context) error {
	if r.local != nil {
		if err := r.local.Wait(ctx); err != nil {
			return fmt.Errorf("venue: local rate limit: %w", err)
		}
	}
	if r.shared != nil {
		if err := r.shared.Wait(ctx, r.key); err != nil {
			return fmt.Errorf("venue: shared rate limit: %w", err)
		}
	}
	return nil
}

func (r *RateLimited) SubmitLimitOffer(ctx context.Context, req domain.OfferRequest) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.next.SubmitLimitOffer(ctx, req)
}

func (r *RateLimited) SubmitLimitOffers(ctx context.Context, reqs []domain.OfferRequest) ([]string, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.SubmitLimitOffers(ctx, reqs)
}

func (r *RateLimited) OfferExists(ctx context.Context, offerID string) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	return r.next.OfferExists(ctx, offerID)
}

func (r *RateLimited) CancelOffer(ctx context.Context, offerID string, pair domain.AssetPair, signingKey string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.CancelOffer(ctx, offerID, pair, signingKey)
}

func (r *RateLimited) SubmitMarketSell(ctx context.Context, req domain.MarketExitRequest) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.next.SubmitMarketSell(ctx, req)
}

var _ domain.VenueGateway = (*RateLimited)(nil)
