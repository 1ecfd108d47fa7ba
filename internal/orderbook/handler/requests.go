package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tranche/internal/orderbook/models"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// CreateOrderRequest is the body for POST /orders. Price is a decimal
// string to avoid float rounding on the wire.
type CreateOrderRequest struct {
	Side         string    `json:"side"`
	Asset        string    `json:"asset"`
	PaymentAsset string    `json:"payment_asset"`
	Price        string    `json:"price"`
	Amount       int64     `json:"amount"`
	Expiry       time.Time `json:"expiry,omitzero"`

	parsedSide         models.Side
	parsedAsset        id.AssetID
	parsedPaymentAsset id.AssetID
	parsedPrice        decimal.Decimal
}

func (r *CreateOrderRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	side, ok := models.ParseSide(strings.ToUpper(strings.TrimSpace(r.Side)))
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "side must be BUY or SELL")
	}
	asset, err := id.ParseAssetID(r.Asset)
	if err != nil {
		return err
	}
	paymentAsset, err := id.ParseAssetID(r.PaymentAsset)
	if err != nil {
		return err
	}
	price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "price must be a decimal number")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	r.parsedSide = side
	r.parsedAsset = asset
	r.parsedPaymentAsset = paymentAsset
	r.parsedPrice = price
	return nil
}

func (r *CreateOrderRequest) ParsedSide() models.Side        { return r.parsedSide }
func (r *CreateOrderRequest) ParsedAsset() id.AssetID        { return r.parsedAsset }
func (r *CreateOrderRequest) ParsedPaymentAsset() id.AssetID { return r.parsedPaymentAsset }
func (r *CreateOrderRequest) ParsedPrice() decimal.Decimal   { return r.parsedPrice }

// FillOrderRequest is the body for POST /orders/{orderID}/fill. A zero
// amount fills the remainder.
type FillOrderRequest struct {
	Amount int64 `json:"amount"`
}

func (r *FillOrderRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must not be negative")
	}
	return nil
}
