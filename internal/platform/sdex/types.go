package sdex

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// amountPlaces is the precision the venue accepts for amounts and prices.
const amountPlaces = 7

// APIOffer is one limit offer in a create request.
type APIOffer struct {
	Selling string `json:"selling"`
	Buying  string `json:"buying"`
	Amount  string `json:"amount"`
	Price   string `json:"price"`
}

// APIOfferBatch places several offers in one ledger transaction.
type APIOfferBatch struct {
	Offers []APIOffer `json:"offers"`
	Atomic bool       `json:"atomic"`
}

// APIOfferResult is the response to a single offer create.
type APIOfferResult struct {
	OfferID string `json:"offer_id"`
}

// APIOfferBatchResult is the response to a batch create.
type APIOfferBatchResult struct {
	OfferIDs []string `json:"offer_ids"`
}

// APIOfferStatus is the venue view of one offer.
type APIOfferStatus struct {
	OfferID   string `json:"offer_id"`
	Status    string `json:"status"` // open | filled | cancelled
	Remaining string `json:"remaining"`
}

// APIMarketOrder flattens a position at market.
type APIMarketOrder struct {
	Selling        string `json:"selling"`
	Buying         string `json:"buying"`
	Side           string `json:"side"`
	Amount         string `json:"amount"`
	ReferencePrice string `json:"reference_price"`
	ClientRef      string `json:"client_ref"`
}

// APIMarketResult is the fill of a market order.
type APIMarketResult struct {
	FillPrice    string `json:"fill_price"`
	FilledAmount string `json:"filled_amount"`
}

// WSCommand is sent by the client over the fill stream.
type WSCommand struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// WSFill is a fill notification pushed by the venue.
type WSFill struct {
	Type      string `json:"type"`
	OfferID   string `json:"offer_id"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	Remaining string `json:"remaining"`
	Timestamp int64  `json:"ts"` // unix milliseconds
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).Round(amountPlaces).StringFixed(amountPlaces)
}

func parseAmount(field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("sdex: parse %s %q: %w", field, s, err)
	}
	return d.InexactFloat64(), nil
}

func toAPIOffer(req domain.OfferRequest) APIOffer {
	return APIOffer{
		Selling: string(req.Pair.Selling),
		Buying:  string(req.Pair.Buying),
		Amount:  formatAmount(req.Amount),
		Price:   formatAmount(req.Price),
	}
}
