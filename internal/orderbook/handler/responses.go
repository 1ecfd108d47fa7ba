package handler

import (
	"time"

	"tranche/internal/orderbook/models"
)

// OrderResponse is the JSON shape of one order. Decimal values are strings.
type OrderResponse struct {
	OrderID      string     `json:"order_id"`
	Maker        string     `json:"maker"`
	Asset        string     `json:"asset"`
	PaymentAsset string     `json:"payment_asset"`
	Side         string     `json:"side"`
	Price        string     `json:"price"`
	Amount       int64      `json:"amount"`
	Filled       int64      `json:"filled"`
	Status       string     `json:"status"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TradeResponse is the JSON shape of one fill record.
type TradeResponse struct {
	TradeID       string    `json:"trade_id"`
	OrderID       string    `json:"order_id"`
	Maker         string    `json:"maker"`
	Taker         string    `json:"taker"`
	Asset         string    `json:"asset"`
	PaymentAsset  string    `json:"payment_asset"`
	Side          string    `json:"side"`
	Price         string    `json:"price"`
	Amount        int64     `json:"amount"`
	PaymentAmount string    `json:"payment_amount"`
	MakerFee      string    `json:"maker_fee"`
	TakerFee      string    `json:"taker_fee"`
	ExecutedAt    time.Time `json:"executed_at"`
}

type OrderListResponse struct {
	Orders []*OrderResponse `json:"orders"`
}

type TradeListResponse struct {
	Trades []*TradeResponse `json:"trades"`
}

// FromOrder converts a domain order to its HTTP shape.
func FromOrder(o models.Order) *OrderResponse {
	resp := &OrderResponse{
		OrderID:      o.ID.String(),
		Maker:        o.Maker.String(),
		Asset:        o.Asset.String(),
		PaymentAsset: o.PaymentAsset.String(),
		Side:         string(o.Side),
		Price:        o.Price.String(),
		Amount:       o.Amount,
		Filled:       o.Filled,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
	if !o.Expiry.IsZero() {
		expiry := o.Expiry
		resp.Expiry = &expiry
	}
	return resp
}

// FromTrade converts a domain trade to its HTTP shape.
func FromTrade(t models.Trade) *TradeResponse {
	return &TradeResponse{
		TradeID:       t.ID.String(),
		OrderID:       t.OrderID.String(),
		Maker:         t.Maker.String(),
		Taker:         t.Taker.String(),
		Asset:         t.Asset.String(),
		PaymentAsset:  t.PaymentAsset.String(),
		Side:          string(t.Side),
		Price:         t.Price.String(),
		Amount:        t.Amount,
		PaymentAmount: t.PaymentAmount.String(),
		MakerFee:      t.MakerFee.String(),
		TakerFee:      t.TakerFee.String(),
		ExecutedAt:    t.ExecutedAt,
	}
}
