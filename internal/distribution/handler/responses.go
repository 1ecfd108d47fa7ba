package handler

import (
	"time"

	"tranche/internal/distribution/models"
)

// DistributionResponse is the JSON shape of one distribution.
type DistributionResponse struct {
	DistributionID   string     `json:"distribution_id"`
	Asset            string     `json:"asset"`
	PaymentAsset     string     `json:"payment_asset"`
	Creator          string     `json:"creator"`
	TotalAmount      string     `json:"total_amount"`
	SupplyAtCreation int64      `json:"supply_at_creation"`
	TotalClaimed     string     `json:"total_claimed"`
	ClaimableFrom    *time.Time `json:"claimable_from,omitempty"`
	ClaimableUntil   *time.Time `json:"claimable_until,omitempty"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ClaimResponse is the JSON shape of one holder claim.
type ClaimResponse struct {
	DistributionID string    `json:"distribution_id"`
	Holder         string    `json:"holder"`
	Amount         string    `json:"amount"`
	ClaimedAt      time.Time `json:"claimed_at"`
}

type ClaimListResponse struct {
	Claims []*ClaimResponse `json:"claims"`
}

// RecoverResponse reports the swept remainder.
type RecoverResponse struct {
	Distribution string `json:"distribution_id"`
	Recipient    string `json:"recipient"`
	Amount       string `json:"amount"`
}

// FromDistribution converts a domain distribution to its HTTP shape.
func FromDistribution(d models.Distribution) *DistributionResponse {
	resp := &DistributionResponse{
		DistributionID:   d.ID.String(),
		Asset:            d.Asset.String(),
		PaymentAsset:     d.PaymentAsset.String(),
		Creator:          d.Creator.String(),
		TotalAmount:      d.TotalAmount.String(),
		SupplyAtCreation: d.SupplyAtCreation,
		TotalClaimed:     d.TotalClaimed.String(),
		Active:           d.Active,
		CreatedAt:        d.CreatedAt,
	}
	if !d.ClaimableFrom.IsZero() {
		from := d.ClaimableFrom
		resp.ClaimableFrom = &from
	}
	if !d.ClaimableUntil.IsZero() {
		until := d.ClaimableUntil
		resp.ClaimableUntil = &until
	}
	return resp
}

// FromClaim converts a domain claim to its HTTP shape.
func FromClaim(c models.Claim) *ClaimResponse {
	return &ClaimResponse{
		DistributionID: c.Distribution.String(),
		Holder:         c.Holder.String(),
		Amount:         c.Amount.String(),
		ClaimedAt:      c.ClaimedAt,
	}
}
