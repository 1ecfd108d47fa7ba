package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "tranche/pkg/domain"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), true
	default:
		return "", false
	}
}

// Status transitions are one-directional: ACTIVE may become FILLED,
// CANCELLED, or EXPIRED; nothing re-opens.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Order is one resting limit order. Price is the payment-asset amount per
// unit. A zero Expiry means the order never expires.
type Order struct {
	ID           id.OrderID
	Maker        id.AccountID
	Asset        id.AssetID
	PaymentAsset id.AssetID
	Side         Side
	Price        decimal.Decimal
	Amount       int64
	Filled       int64
	Expiry       time.Time
	Status       Status
	CreatedAt    time.Time
}

// Remaining returns the unfilled portion.
func (o Order) Remaining() int64 {
	return o.Amount - o.Filled
}

// ExpiredAt reports whether the order's expiry has passed at t. Expiry is
// evaluated lazily against call timestamps; nothing ticks in the background.
func (o Order) ExpiredAt(t time.Time) bool {
	return !o.Expiry.IsZero() && t.After(o.Expiry)
}

// Trade is the immutable record of one fill event.
type Trade struct {
	ID            id.TradeID
	OrderID       id.OrderID
	Maker         id.AccountID
	Taker         id.AccountID
	Asset         id.AssetID
	PaymentAsset  id.AssetID
	Side          Side
	Price         decimal.Decimal
	Amount        int64
	PaymentAmount decimal.Decimal
	MakerFee      decimal.Decimal
	TakerFee      decimal.Decimal
	ExecutedAt    time.Time
}
