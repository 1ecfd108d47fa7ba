package handler

import (
	"strings"
	"time"

	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// CreateInvoiceRequest is the body for POST /invoices.
type CreateInvoiceRequest struct {
	AssetID       string    `json:"asset_id"`
	Issuer        string    `json:"issuer"`
	FaceValue     int64     `json:"face_value"`
	MarkupBps     int64     `json:"markup_bps"`
	Maturity      time.Time `json:"maturity"`
	Description   string    `json:"description"`
	InitialSupply int64     `json:"initial_supply"`

	parsedAssetID id.AssetID
	parsedIssuer  id.AccountID
}

func (r *CreateInvoiceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Description) > 512 {
		return dErrors.New(dErrors.CodeInvalidInput, "description must be at most 512 characters")
	}
	assetID, err := id.ParseAssetID(r.AssetID)
	if err != nil {
		return err
	}
	issuer, err := id.ParseAccountID(strings.TrimSpace(r.Issuer))
	if err != nil {
		return err
	}
	if r.Maturity.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "maturity is required")
	}
	r.parsedAssetID = assetID
	r.parsedIssuer = issuer
	return nil
}

func (r *CreateInvoiceRequest) ParsedAssetID() id.AssetID  { return r.parsedAssetID }
func (r *CreateInvoiceRequest) ParsedIssuer() id.AccountID { return r.parsedIssuer }
