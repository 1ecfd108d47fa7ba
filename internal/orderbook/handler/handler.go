package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tranche/internal/orderbook/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/httputil"
	"tranche/pkg/requestcontext"
)

// Service defines the order book operations the HTTP layer exposes.
type Service interface {
	CreateOrder(ctx context.Context, side models.Side, asset, paymentAsset id.AssetID, price decimal.Decimal, amount int64, expiry time.Time) (models.Order, error)
	FillOrder(ctx context.Context, orderID id.OrderID, fillAmount int64) (models.Trade, error)
	CancelOrder(ctx context.Context, orderID id.OrderID) error
	GetOrder(ctx context.Context, orderID id.OrderID) (models.Order, error)
	ListOrders(ctx context.Context, maker id.AccountID, asset id.AssetID) ([]models.Order, error)
	TradesForOrder(ctx context.Context, orderID id.OrderID) ([]models.Trade, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts order book endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.HandleCreate)
	r.Get("/orders", h.HandleList)
	r.Get("/orders/{orderID}", h.HandleGet)
	r.Post("/orders/{orderID}/fill", h.HandleFill)
	r.Post("/orders/{orderID}/cancel", h.HandleCancel)
	r.Get("/orders/{orderID}/trades", h.HandleTrades)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateOrderRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	order, err := h.service.CreateOrder(ctx, req.ParsedSide(), req.ParsedAsset(), req.ParsedPaymentAsset(),
		req.ParsedPrice(), req.Amount, req.Expiry)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "order created", "order", order.ID, "side", order.Side, "asset", order.Asset)
	httputil.WriteJSON(w, http.StatusCreated, FromOrder(order))
}

func (h *Handler) HandleFill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := orderFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FillOrderRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	trade, err := h.service.FillOrder(ctx, orderID, req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "order filled", "order", orderID, "trade", trade.ID, "amount", trade.Amount)
	httputil.WriteJSON(w, http.StatusOK, FromTrade(trade))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := orderFromPath(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelOrder(ctx, orderID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "order cancelled", "order", orderID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := orderFromPath(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(ctx, orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOrder(order))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var maker id.AccountID
	if raw := r.URL.Query().Get("maker"); raw != "" {
		parsed, err := id.ParseAccountID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		maker = parsed
	}
	var asset id.AssetID
	if raw := r.URL.Query().Get("asset"); raw != "" {
		parsed, err := id.ParseAssetID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		asset = parsed
	}

	orders, err := h.service.ListOrders(ctx, maker, asset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, FromOrder(o))
	}
	httputil.WriteJSON(w, http.StatusOK, OrderListResponse{Orders: out})
}

func (h *Handler) HandleTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := orderFromPath(w, r)
	if !ok {
		return
	}

	trades, err := h.service.TradesForOrder(ctx, orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, FromTrade(t))
	}
	httputil.WriteJSON(w, http.StatusOK, TradeListResponse{Trades: out})
}

func orderFromPath(w http.ResponseWriter, r *http.Request) (id.OrderID, bool) {
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.OrderID{}, false
	}
	return orderID, true
}
