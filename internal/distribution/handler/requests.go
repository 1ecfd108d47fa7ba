package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

const maxBatchClaims = 100

// CreateDistributionRequest is the body for POST /distributions.
type CreateDistributionRequest struct {
	Asset          string    `json:"asset"`
	PaymentAsset   string    `json:"payment_asset"`
	TotalAmount    string    `json:"total_amount"`
	ClaimableFrom  time.Time `json:"claimable_from,omitzero"`
	ClaimableUntil time.Time `json:"claimable_until,omitzero"`

	parsedAsset        id.AssetID
	parsedPaymentAsset id.AssetID
	parsedTotalAmount  decimal.Decimal
}

func (r *CreateDistributionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	asset, err := id.ParseAssetID(r.Asset)
	if err != nil {
		return err
	}
	paymentAsset, err := id.ParseAssetID(r.PaymentAsset)
	if err != nil {
		return err
	}
	total, err := decimal.NewFromString(strings.TrimSpace(r.TotalAmount))
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "total_amount must be a decimal number")
	}
	r.parsedAsset = asset
	r.parsedPaymentAsset = paymentAsset
	r.parsedTotalAmount = total
	return nil
}

func (r *CreateDistributionRequest) ParsedAsset() id.AssetID            { return r.parsedAsset }
func (r *CreateDistributionRequest) ParsedPaymentAsset() id.AssetID     { return r.parsedPaymentAsset }
func (r *CreateDistributionRequest) ParsedTotalAmount() decimal.Decimal { return r.parsedTotalAmount }

// ClaimMultipleRequest is the body for POST /distributions/claims.
type ClaimMultipleRequest struct {
	DistributionIDs []string `json:"distribution_ids"`

	parsedIDs []id.DistributionID
}

func (r *ClaimMultipleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.DistributionIDs) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "distribution_ids is required")
	}
	if len(r.DistributionIDs) > maxBatchClaims {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d distributions per batch", maxBatchClaims)
	}
	r.parsedIDs = make([]id.DistributionID, 0, len(r.DistributionIDs))
	for _, raw := range r.DistributionIDs {
		distID, err := id.ParseDistributionID(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		r.parsedIDs = append(r.parsedIDs, distID)
	}
	return nil
}

func (r *ClaimMultipleRequest) ParsedIDs() []id.DistributionID { return r.parsedIDs }

// RecoverRequest is the body for POST /distributions/{distributionID}/recover.
type RecoverRequest struct {
	Recipient string `json:"recipient"`

	parsedRecipient id.AccountID
}

func (r *RecoverRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	recipient, err := id.ParseAccountID(strings.TrimSpace(r.Recipient))
	if err != nil {
		return err
	}
	r.parsedRecipient = recipient
	return nil
}

func (r *RecoverRequest) ParsedRecipient() id.AccountID { return r.parsedRecipient }
