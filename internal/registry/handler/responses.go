package handler

import (
	"time"

	"tranche/internal/registry/models"
)

// AssetResponse is the JSON shape of one invoice token.
type AssetResponse struct {
	AssetID     string    `json:"asset_id"`
	Issuer      string    `json:"issuer"`
	FaceValue   int64     `json:"face_value"`
	MarkupBps   int64     `json:"markup_bps"`
	Maturity    time.Time `json:"maturity"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// MaturityValueResponse is the body for GET /invoices/{assetID}/maturity-value.
type MaturityValueResponse struct {
	Asset         string `json:"asset"`
	MaturityValue int64  `json:"maturity_value"`
}

// ListResponse is the active-invoice page.
type ListResponse struct {
	Invoices []*AssetResponse `json:"invoices"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
}

// FromAsset converts a domain asset record to its HTTP shape.
func FromAsset(a models.Asset) *AssetResponse {
	return &AssetResponse{
		AssetID:     a.ID.String(),
		Issuer:      a.Issuer.String(),
		FaceValue:   a.FaceValue,
		MarkupBps:   a.MarkupBps,
		Maturity:    a.Maturity,
		Description: a.Description,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
	}
}
