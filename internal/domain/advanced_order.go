package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AdvancedOrderType discriminates the linked-order payload.
type AdvancedOrderType string

const (
	AdvancedOrderOCO     AdvancedOrderType = "OCO"
	AdvancedOrderIceberg AdvancedOrderType = "ICEBERG"
)

// AdvancedOrderStatus tracks the linked-order lifecycle.
type AdvancedOrderStatus string

const (
	AdvancedOrderActive          AdvancedOrderStatus = "ACTIVE"
	AdvancedOrderPartiallyFilled AdvancedOrderStatus = "PARTIALLY_FILLED"
	AdvancedOrderFilled          AdvancedOrderStatus = "FILLED"
	AdvancedOrderCancelled       AdvancedOrderStatus = "CANCELLED"
	AdvancedOrderExpired         AdvancedOrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transitions are possible.
func (s AdvancedOrderStatus) IsTerminal() bool {
	switch s {
	case AdvancedOrderFilled, AdvancedOrderCancelled, AdvancedOrderExpired:
		return true
	default:
		return false
	}
}

// Asset identifies a venue asset, e.g. "USDC:GA5Z...", or "native".
type Asset string

// Code returns the asset code: "XLM" for the native asset, otherwise the
// part before the issuer.
func (a Asset) Code() string {
	if a == "native" || a == "" {
		return "XLM"
	}
	code, _, _ := strings.Cut(string(a), ":")
	return code
}

// AssetPair is the selling/buying pair of an offer.
type AssetPair struct {
	Selling Asset `json:"selling"`
	Buying  Asset `json:"buying"`
}

// Symbol returns the price-feed symbol of the pair, e.g. "XLM/USDC".
func (p AssetPair) Symbol() string {
	return p.Selling.Code() + "/" + p.Buying.Code()
}

// OCOLegKind names the two legs of an OCO order.
type OCOLegKind string

const (
	OCOLegStopLoss   OCOLegKind = "STOP_LOSS"
	OCOLegTakeProfit OCOLegKind = "TAKE_PROFIT"
)

// OCOLeg is the snapshot of one leg of an OCO order.
type OCOLeg struct {
	TriggerPrice float64    `json:"trigger_price"`
	Amount       float64    `json:"amount"`
	OfferID      string     `json:"offer_id,omitempty"`
	Executed     bool       `json:"executed"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
}

// OCOPayload is the persisted OCO state.
type OCOPayload struct {
	StopLoss     OCOLeg      `json:"stop_loss"`
	TakeProfit   OCOLeg      `json:"take_profit"`
	TriggeredLeg *OCOLegKind `json:"triggered_leg,omitempty"`
}

// Leg returns a pointer to the leg of the given kind.
func (p *OCOPayload) Leg(kind OCOLegKind) *OCOLeg {
	if kind == OCOLegStopLoss {
		return &p.StopLoss
	}
	return &p.TakeProfit
}

// Sibling returns the kind of the other leg.
func (k OCOLegKind) Sibling() OCOLegKind {
	if k == OCOLegStopLoss {
		return OCOLegTakeProfit
	}
	return OCOLegStopLoss
}

// IcebergPayload is the persisted iceberg state. Invariants:
// FilledAmount never decreases and never exceeds TotalAmount;
// CurrentDisplayedAmount = min(DisplayAmount, TotalAmount - FilledAmount).
// An empty ActiveOfferID on a non-terminal order means the slice of
// CurrentDisplayedAmount is pending placement, not resting on the book.
type IcebergPayload struct {
	TotalAmount            float64 `json:"total_amount"`
	DisplayAmount          float64 `json:"display_amount"`
	FilledAmount           float64 `json:"filled_amount"`
	CurrentDisplayedAmount float64 `json:"current_displayed_amount"`
	ActiveOfferID          string  `json:"active_offer_id,omitempty"`
	RefillCount            int     `json:"refill_count"`
	LimitPrice             float64 `json:"limit_price"`
}

// AdvancedOrder is the linked-order container for OCO and iceberg orders.
// Exactly one of OCO / Iceberg is set, matching Type.
type AdvancedOrder struct {
	ID           string
	UserID       string
	Type         AdvancedOrderType
	Status       AdvancedOrderStatus
	Pair         AssetPair
	PositionID   *string
	OCO          *OCOPayload
	Iceberg      *IcebergPayload
	ErrorMessage string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OfferIDs returns the venue offer ids this order currently has on the book.
func (o AdvancedOrder) OfferIDs() []string {
	var ids []string
	switch {
	case o.OCO != nil:
		for _, leg := range []OCOLeg{o.OCO.StopLoss, o.OCO.TakeProfit} {
			if leg.OfferID != "" && !leg.Executed {
				ids = append(ids, leg.OfferID)
			}
		}
	case o.Iceberg != nil:
		if o.Iceberg.ActiveOfferID != "" {
			ids = append(ids, o.Iceberg.ActiveOfferID)
		}
	}
	return ids
}

// IsExpired reports whether the order has passed its expiry at now.
func (o AdvancedOrder) IsExpired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// EncodePayload serializes the type-specific state for storage.
func (o AdvancedOrder) EncodePayload() ([]byte, error) {
	switch o.Type {
	case AdvancedOrderOCO:
		if o.OCO == nil {
			return nil, fmt.Errorf("%w: oco order %s has no payload", ErrInvalidOrder, o.ID)
		}
		return json.Marshal(o.OCO)
	case AdvancedOrderIceberg:
		if o.Iceberg == nil {
			return nil, fmt.Errorf("%w: iceberg order %s has no payload", ErrInvalidOrder, o.ID)
		}
		return json.Marshal(o.Iceberg)
	default:
		return nil, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, o.Type)
	}
}

// DecodePayload restores the type-specific state written by EncodePayload.
// o.Type must already be set.
func (o *AdvancedOrder) DecodePayload(data []byte) error {
	switch o.Type {
	case AdvancedOrderOCO:
		o.OCO = &OCOPayload{}
		return json.Unmarshal(data, o.OCO)
	case AdvancedOrderIceberg:
		o.Iceberg = &IcebergPayload{}
		return json.Unmarshal(data, o.Iceberg)
	default:
		return fmt.Errorf("unknown order type %q", o.Type)
	}
}
