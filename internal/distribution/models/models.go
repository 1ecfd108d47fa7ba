package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "tranche/pkg/domain"
)

// Distribution is one escrowed profit pool. SupplyAtCreation is the bound
// ledger's total supply read once at creation; per-holder entitlements are
// computed against it from the holder's balance at claim time.
type Distribution struct {
	ID               id.DistributionID
	Asset            id.AssetID
	PaymentAsset     id.AssetID
	Creator          id.AccountID
	TotalAmount      decimal.Decimal
	SupplyAtCreation int64
	ClaimableFrom    time.Time
	ClaimableUntil   time.Time
	TotalClaimed     decimal.Decimal
	Active           bool
	CreatedAt        time.Time
}

// Unclaimed returns the escrowed remainder.
func (d Distribution) Unclaimed() decimal.Decimal {
	return d.TotalAmount.Sub(d.TotalClaimed)
}

// Claim records one holder's payout. A claim is permanently terminal: a
// holder claims a distribution at most once.
type Claim struct {
	Distribution id.DistributionID
	Holder       id.AccountID
	Amount       decimal.Decimal
	ClaimedAt    time.Time
}
