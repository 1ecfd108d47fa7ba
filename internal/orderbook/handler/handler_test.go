package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tranche/internal/authz"
	complianceservice "tranche/internal/compliance/service"
	compliancestore "tranche/internal/compliance/store"
	"tranche/internal/identity"
	ledgerservice "tranche/internal/ledger/service"
	ledgerstore "tranche/internal/ledger/store"
	orderbookservice "tranche/internal/orderbook/service"
	orderbookstore "tranche/internal/orderbook/store"
	"tranche/internal/paymentasset"
	"tranche/internal/platform/middleware"
	id "tranche/pkg/domain"
	"tranche/pkg/requestcontext"
)

const signingKey = "test-signing-key"

const usdt = id.AssetID("USDT")

type allowAllDirectory struct{}

func (allowAllDirectory) IsTradable(context.Context, id.AssetID) (bool, error) { return true, nil }

type orderbookAPI struct {
	router http.Handler

	maker id.AccountID
	taker id.AccountID
}

func newOrderbookAPI(t *testing.T) *orderbookAPI {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	roles := authz.NewStore()
	verifier := identity.NewInMemory()
	store := ledgerstore.NewInMemory()
	compliance := complianceservice.New(
		compliancestore.NewInMemory(), compliancestore.NewInMemoryWindows(), store, roles)
	ledger := ledgerservice.New(store, compliance, verifier, roles)
	payments := paymentasset.NewInMemory()

	api := &orderbookAPI{
		maker: id.AccountID(uuid.New()),
		taker: id.AccountID(uuid.New()),
	}
	agent := id.AccountID(uuid.New())
	engine := id.AccountID(uuid.New())
	feeRecipient := id.AccountID(uuid.New())

	for _, account := range []id.AccountID{agent, engine, api.maker, api.taker} {
		verifier.Register(ctx, account)
	}
	if err := roles.Grant(ctx, agent, authz.RoleTransferAgent); err != nil {
		t.Fatalf("grant agent role: %v", err)
	}
	if err := roles.Grant(ctx, engine, authz.RoleTransferAgent); err != nil {
		t.Fatalf("grant engine role: %v", err)
	}

	if err := ledger.CreateLedger(ctx, "INV-1"); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	agentCtx := requestcontext.WithPrincipal(ctx, agent)
	if err := ledger.Mint(agentCtx, "INV-1", api.maker, 1000); err != nil {
		t.Fatalf("mint maker units: %v", err)
	}
	payments.Credit(ctx, usdt, api.taker, decimal.NewFromInt(10000))
	if err := payments.Approve(ctx, usdt, api.taker, engine, decimal.NewFromInt(10000)); err != nil {
		t.Fatalf("approve taker allowance: %v", err)
	}

	book, err := orderbookservice.New(
		orderbookstore.NewInMemory(), ledger, payments, allowAllDirectory{}, roles, engine,
		orderbookservice.FeeConfig{MakerFeeBps: 25, TakerFeeBps: 50, Recipient: feeRecipient},
		[]id.AssetID{usdt},
	)
	if err != nil {
		t.Fatalf("build order book: %v", err)
	}

	h := New(book, logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RequestTime)
	r.Use(middleware.RequireAuth(middleware.NewValidator(signingKey), logger))
	h.Register(r)
	api.router = r
	return api
}

func (a *orderbookAPI) do(t *testing.T, as id.AccountID, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, as))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func bearerToken(t *testing.T, account id.AccountID) string {
	t.Helper()
	claims := middleware.PrincipalClaims{
		AccountID: account.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// requireDecimal compares decimal values numerically so differing string
// exponents do not fail the assertion.
func requireDecimal(t *testing.T, want, got string) {
	t.Helper()
	parsed, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", got, err)
	}
	if !decimal.RequireFromString(want).Equal(parsed) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func (a *orderbookAPI) createSellOrder(t *testing.T) OrderResponse {
	t.Helper()
	rec := a.do(t, a.maker, http.MethodPost, "/orders", map[string]any{
		"side": "SELL", "asset": "INV-1", "payment_asset": "USDT",
		"price": "2.0", "amount": 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating order, got %d: %s", rec.Code, rec.Body.String())
	}
	var order OrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("decode order response: %v", err)
	}
	return order
}

func TestSellOrderFillViaHandlers(t *testing.T) {
	api := newOrderbookAPI(t)
	order := api.createSellOrder(t)

	rec := api.do(t, api.taker, http.MethodPost, "/orders/"+order.OrderID+"/fill",
		map[string]any{"amount": 40})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 filling order, got %d: %s", rec.Code, rec.Body.String())
	}
	var trade TradeResponse
	if err := json.NewDecoder(rec.Body).Decode(&trade); err != nil {
		t.Fatalf("decode trade response: %v", err)
	}
	requireDecimal(t, "80", trade.PaymentAmount)
	requireDecimal(t, "0.2", trade.MakerFee)
	requireDecimal(t, "0.4", trade.TakerFee)

	rec = api.do(t, api.taker, http.MethodGet, "/orders/"+order.OrderID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching order, got %d", rec.Code)
	}
	var got OrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode order response: %v", err)
	}
	if got.Filled != 40 || got.Status != "ACTIVE" {
		t.Fatalf("expected partially filled active order, got %+v", got)
	}

	rec = api.do(t, api.taker, http.MethodGet, "/orders/"+order.OrderID+"/trades", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing trades, got %d", rec.Code)
	}
	var trades TradeListResponse
	if err := json.NewDecoder(rec.Body).Decode(&trades); err != nil {
		t.Fatalf("decode trade list: %v", err)
	}
	if len(trades.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades.Trades))
	}
}

func TestCancelOrderViaHandlers(t *testing.T) {
	api := newOrderbookAPI(t)
	order := api.createSellOrder(t)

	rec := api.do(t, api.taker, http.MethodPost, "/orders/"+order.OrderID+"/cancel", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 cancelling someone else's order, got %d", rec.Code)
	}

	rec = api.do(t, api.maker, http.MethodPost, "/orders/"+order.OrderID+"/cancel", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 cancelling own order, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, api.maker, http.MethodPost, "/orders/"+order.OrderID+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling a cancelled order, got %d", rec.Code)
	}
}

func TestCreateOrderRejectsUnknownPaymentAsset(t *testing.T) {
	api := newOrderbookAPI(t)

	rec := api.do(t, api.maker, http.MethodPost, "/orders", map[string]any{
		"side": "SELL", "asset": "INV-1", "payment_asset": "EURC",
		"price": "2.0", "amount": 100,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported payment asset, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListOrdersFiltersByMaker(t *testing.T) {
	api := newOrderbookAPI(t)
	api.createSellOrder(t)

	rec := api.do(t, api.taker, http.MethodGet, "/orders?maker="+api.maker.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing orders, got %d", rec.Code)
	}
	var list OrderListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode order list: %v", err)
	}
	if len(list.Orders) != 1 {
		t.Fatalf("expected 1 order for maker, got %d", len(list.Orders))
	}

	rec = api.do(t, api.taker, http.MethodGet, "/orders?maker="+api.taker.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing orders, got %d", rec.Code)
	}
	list = OrderListResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode order list: %v", err)
	}
	if len(list.Orders) != 0 {
		t.Fatalf("expected no orders for taker, got %d", len(list.Orders))
	}
}
