package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranche/internal/authz"
	compliancesvc "tranche/internal/compliance/service"
	compliancestore "tranche/internal/compliance/store"
	"tranche/internal/identity"
	ledgersvc "tranche/internal/ledger/service"
	ledgerstore "tranche/internal/ledger/store"
	"tranche/internal/orderbook/models"
	orderbookstore "tranche/internal/orderbook/store"
	"tranche/internal/paymentasset"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/requestcontext"
)

const (
	obAsset   = id.AssetID("INV-OB-001")
	obPayment = id.AssetID("USDT")
)

type allowAll struct{}

func (allowAll) IsTradable(context.Context, id.AssetID) (bool, error) { return true, nil }

type orderbookFixture struct {
	engine   *Engine
	ledger   *ledgersvc.Service
	payments *paymentasset.InMemory
	roles    *authz.Store
	verifier *identity.InMemory

	engineAcct id.AccountID
	feeAcct    id.AccountID
	maker      id.AccountID
	taker      id.AccountID
	agent      id.AccountID
	operator   id.AccountID
	now        time.Time
}

func newOrderbookFixture(t *testing.T) *orderbookFixture {
	t.Helper()
	ctx := context.Background()

	f := &orderbookFixture{
		payments:   paymentasset.NewInMemory(),
		roles:      authz.NewStore(),
		verifier:   identity.NewInMemory(),
		engineAcct: id.AccountID(uuid.New()),
		feeAcct:    id.AccountID(uuid.New()),
		maker:      id.AccountID(uuid.New()),
		taker:      id.AccountID(uuid.New()),
		agent:      id.AccountID(uuid.New()),
		operator:   id.AccountID(uuid.New()),
		now:        time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}

	ledgerStore := ledgerstore.NewInMemory()
	engineCompliance := compliancesvc.New(
		compliancestore.NewInMemory(),
		compliancestore.NewInMemoryWindows(),
		ledgerStore,
		f.roles,
	)
	f.ledger = ledgersvc.New(ledgerStore, engineCompliance, f.verifier, f.roles)

	require.NoError(t, f.roles.Grant(ctx, f.agent, authz.RoleTransferAgent))
	require.NoError(t, f.roles.Grant(ctx, f.engineAcct, authz.RoleTransferAgent))
	require.NoError(t, f.roles.Grant(ctx, f.operator, authz.RoleOperator))
	for _, a := range []id.AccountID{f.maker, f.taker, f.agent, f.engineAcct, f.feeAcct} {
		f.verifier.Register(ctx, a)
	}

	require.NoError(t, f.ledger.CreateLedger(ctx, obAsset))
	agentCtx := requestcontext.WithPrincipal(ctx, f.agent)
	require.NoError(t, f.ledger.Mint(agentCtx, obAsset, f.maker, 1_000))
	require.NoError(t, f.ledger.Mint(agentCtx, obAsset, f.taker, 1_000))

	f.payments.Credit(ctx, obPayment, f.maker, decimal.NewFromInt(10_000))
	f.payments.Credit(ctx, obPayment, f.taker, decimal.NewFromInt(10_000))
	require.NoError(t, f.payments.Approve(ctx, obPayment, f.maker, f.engineAcct, decimal.NewFromInt(10_000)))
	require.NoError(t, f.payments.Approve(ctx, obPayment, f.taker, f.engineAcct, decimal.NewFromInt(10_000)))

	engine, err := New(
		orderbookstore.NewInMemory(),
		f.ledger,
		f.payments,
		allowAll{},
		f.roles,
		f.engineAcct,
		FeeConfig{MakerFeeBps: 25, TakerFeeBps: 50, Recipient: f.feeAcct},
		[]id.AssetID{obPayment},
	)
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *orderbookFixture) ctxFor(account id.AccountID) context.Context {
	ctx := requestcontext.WithPrincipal(context.Background(), account)
	return requestcontext.WithTime(ctx, f.now)
}

func (f *orderbookFixture) paymentBalance(t *testing.T, account id.AccountID) decimal.Decimal {
	t.Helper()
	bal, err := f.payments.BalanceOf(context.Background(), obPayment, account)
	require.NoError(t, err)
	return bal
}

func (f *orderbookFixture) unitBalance(t *testing.T, account id.AccountID) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), obAsset, account)
	require.NoError(t, err)
	return bal
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestSellOrderFill_FeeScenario(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.RequireFromString("2.0"), 100, time.Time{})
	require.NoError(t, err)

	// Escrow moved the units out of the maker's balance.
	assert.Equal(t, int64(900), f.unitBalance(t, f.maker))
	assert.Equal(t, int64(100), f.unitBalance(t, f.engineAcct))

	trade, err := f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 40)
	require.NoError(t, err)

	requireDecimal(t, "80", trade.PaymentAmount)
	requireDecimal(t, "0.2", trade.MakerFee)
	requireDecimal(t, "0.4", trade.TakerFee)

	requireDecimal(t, "10079.8", f.paymentBalance(t, f.maker))
	requireDecimal(t, "9919.6", f.paymentBalance(t, f.taker))
	requireDecimal(t, "0.6", f.paymentBalance(t, f.feeAcct))
	assert.Equal(t, int64(1_040), f.unitBalance(t, f.taker))

	got, err := f.engine.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, int64(40), got.Filled)

	t.Run("filling the remainder closes the order", func(t *testing.T) {
		_, err := f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 0)
		require.NoError(t, err)

		got, err := f.engine.GetOrder(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFilled, got.Status)
		assert.Equal(t, int64(100), got.Filled)
		assert.Equal(t, int64(0), f.unitBalance(t, f.engineAcct))

		_, err = f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestBuyOrderFill(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideBuy, obAsset, obPayment,
		decimal.RequireFromString("1.5"), 200, time.Time{})
	require.NoError(t, err)

	// Buy escrow is price times amount of the payment asset.
	requireDecimal(t, "9700", f.paymentBalance(t, f.maker))
	requireDecimal(t, "300", f.paymentBalance(t, f.engineAcct))

	trade, err := f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 100)
	require.NoError(t, err)

	requireDecimal(t, "150", trade.PaymentAmount)
	requireDecimal(t, "0", trade.MakerFee)
	requireDecimal(t, "0.75", trade.TakerFee)

	// Taker delivered units and received payment minus the taker fee.
	assert.Equal(t, int64(900), f.unitBalance(t, f.taker))
	assert.Equal(t, int64(1_100), f.unitBalance(t, f.maker))
	requireDecimal(t, "10149.25", f.paymentBalance(t, f.taker))
	requireDecimal(t, "0.75", f.paymentBalance(t, f.feeAcct))
	requireDecimal(t, "150", f.paymentBalance(t, f.engineAcct))
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newOrderbookFixture(t)
	ctx := f.ctxFor(f.maker)
	price := decimal.NewFromInt(1)

	cases := []struct {
		name string
		call func() error
	}{
		{"zero price", func() error {
			_, err := f.engine.CreateOrder(ctx, models.SideSell, obAsset, obPayment, decimal.Zero, 10, time.Time{})
			return err
		}},
		{"zero amount", func() error {
			_, err := f.engine.CreateOrder(ctx, models.SideSell, obAsset, obPayment, price, 0, time.Time{})
			return err
		}},
		{"past expiry", func() error {
			_, err := f.engine.CreateOrder(ctx, models.SideSell, obAsset, obPayment, price, 10, f.now.Add(-time.Minute))
			return err
		}},
		{"disallowed payment asset", func() error {
			_, err := f.engine.CreateOrder(ctx, models.SideSell, obAsset, "DOGE", price, 10, time.Time{})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}

	t.Run("unfundable sell escrow", func(t *testing.T) {
		_, err := f.engine.CreateOrder(ctx, models.SideSell, obAsset, obPayment, price, 10_000, time.Time{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		assert.Equal(t, int64(1_000), f.unitBalance(t, f.maker))
	})
}

func TestCancelOrder(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(3), 50, time.Time{})
	require.NoError(t, err)

	_, err = f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 20)
	require.NoError(t, err)

	t.Run("stranger cannot cancel", func(t *testing.T) {
		err := f.engine.CancelOrder(f.ctxFor(f.taker), order.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	require.NoError(t, f.engine.CancelOrder(f.ctxFor(f.maker), order.ID))

	// The unfilled 30 units came back to the maker.
	assert.Equal(t, int64(980), f.unitBalance(t, f.maker))
	assert.Equal(t, int64(0), f.unitBalance(t, f.engineAcct))

	got, err := f.engine.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	t.Run("cancelling a cancelled order fails and changes nothing", func(t *testing.T) {
		err := f.engine.CancelOrder(f.ctxFor(f.maker), order.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Equal(t, int64(980), f.unitBalance(t, f.maker))
	})

	t.Run("operator may cancel another maker's order", func(t *testing.T) {
		order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideBuy, obAsset, obPayment,
			decimal.NewFromInt(2), 10, time.Time{})
		require.NoError(t, err)

		before := f.paymentBalance(t, f.maker)
		require.NoError(t, f.engine.CancelOrder(f.ctxFor(f.operator), order.ID))
		requireDecimal(t, before.Add(decimal.NewFromInt(20)).String(), f.paymentBalance(t, f.maker))
	})
}

func TestFillOrder_LazyExpiry(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(2), 60, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(940), f.unitBalance(t, f.maker))

	// Advance past expiry; the fill attempt itself flips the order.
	lateCtx := requestcontext.WithPrincipal(context.Background(), f.taker)
	lateCtx = requestcontext.WithTime(lateCtx, f.now.Add(2*time.Hour))

	_, err = f.engine.FillOrder(lateCtx, order.ID, 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	got, err := f.engine.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
	// Escrow refunded on the expiry transition.
	assert.Equal(t, int64(1_000), f.unitBalance(t, f.maker))
}

func TestFillOrder_Bounds(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(2), 50, time.Time{})
	require.NoError(t, err)

	_, err = f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 51)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.engine.FillOrder(f.ctxFor(f.taker), id.OrderID(uuid.New()), 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestFillOrder_ConcurrentFillsNeverOverfill(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(1), 100, time.Time{})
	require.NoError(t, err)

	// A second resting order shares the engine's escrow account; its units
	// must survive the storm against the first order untouched.
	other, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(1), 50, time.Time{})
	require.NoError(t, err)

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 1); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), succeeded.Load())

	got, err := f.engine.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, got.Status)
	assert.Equal(t, int64(100), got.Filled)

	trades, err := f.engine.TradesForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, trades, 100)

	// The taker got exactly the order's amount and the second order's
	// escrow is still in the engine account.
	assert.Equal(t, int64(1_100), f.unitBalance(t, f.taker))
	assert.Equal(t, int64(50), f.unitBalance(t, f.engineAcct))

	require.NoError(t, f.engine.CancelOrder(f.ctxFor(f.maker), other.ID))
	assert.Equal(t, int64(0), f.unitBalance(t, f.engineAcct))
}

func TestCancelOrder_ConcurrentWithFillsConservesEscrow(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(1), 100, time.Time{})
	require.NoError(t, err)
	_, err = f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(1), 50, time.Time{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 60 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 1)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.engine.CancelOrder(f.ctxFor(f.maker), order.ID)
	}()
	wg.Wait()

	got, err := f.engine.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	trades, err := f.engine.TradesForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, trades, int(got.Filled))

	// Whatever interleaving won, every unit is either delivered to the
	// taker, refunded to the maker, or still escrowed for the other order.
	assert.Equal(t, int64(1_000)+got.Filled, f.unitBalance(t, f.taker))
	assert.Equal(t, int64(50), f.unitBalance(t, f.engineAcct))
	if got.Status == models.StatusCancelled {
		assert.Equal(t, int64(850)+(100-got.Filled), f.unitBalance(t, f.maker))
	} else {
		assert.Equal(t, models.StatusFilled, got.Status)
		assert.Equal(t, int64(850), f.unitBalance(t, f.maker))
	}
}

func TestFeeConfig_Bounds(t *testing.T) {
	f := newOrderbookFixture(t)

	_, err := New(orderbookstore.NewInMemory(), f.ledger, f.payments, allowAll{}, f.roles,
		f.engineAcct, FeeConfig{MakerFeeBps: 1_001, Recipient: f.feeAcct}, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestTradesForOrder(t *testing.T) {
	f := newOrderbookFixture(t)

	order, err := f.engine.CreateOrder(f.ctxFor(f.maker), models.SideSell, obAsset, obPayment,
		decimal.NewFromInt(1), 30, time.Time{})
	require.NoError(t, err)

	_, err = f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 10)
	require.NoError(t, err)
	_, err = f.engine.FillOrder(f.ctxFor(f.taker), order.ID, 5)
	require.NoError(t, err)

	trades, err := f.engine.TradesForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(10), trades[0].Amount)
	assert.Equal(t, int64(5), trades[1].Amount)
}
