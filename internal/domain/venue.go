package domain

import (
	"context"
	"time"
)

// OfferRequest describes one limit offer to place on the venue. The signing
// key is supplied per call and never stored.
type OfferRequest struct {
	Pair       AssetPair
	Amount     float64
	Price      float64
	SigningKey string
}

// MarketExitRequest flattens quantity of a position at market.
type MarketExitRequest struct {
	Position   Position
	Side       ExitOrderSide
	Quantity   float64
	Price      float64 // observed price, used as a slippage reference
	SigningKey string
}

// VenueGateway is the external trading venue. All calls are fallible and not
// idempotent at the transport layer.
type VenueGateway interface {
	SubmitLimitOffer(ctx context.Context, req OfferRequest) (offerID string, err error)
	// SubmitLimitOffers places all offers atomically: either every offer is
	// on the book or none is.
	SubmitLimitOffers(ctx context.Context, reqs []OfferRequest) (offerIDs []string, err error)
	OfferExists(ctx context.Context, offerID string) (bool, error)
	CancelOffer(ctx context.Context, offerID string, pair AssetPair, signingKey string) error
	SubmitMarketSell(ctx context.Context, req MarketExitRequest) (fillPrice float64, err error)
}

// KeyResolver yields the signing key to use for a user's venue calls.
type KeyResolver interface {
	SigningKey(ctx context.Context, userID string) (string, error)
}

// FillEvent is a venue push notification that an offer was (partly) taken.
type FillEvent struct {
	OfferID   string
	Amount    float64
	Price     float64
	Remaining float64
	Timestamp time.Time
}
