package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranche/internal/authz"
	compliancesvc "tranche/internal/compliance/service"
	compliancestore "tranche/internal/compliance/store"
	distributionstore "tranche/internal/distribution/store"
	"tranche/internal/identity"
	ledgersvc "tranche/internal/ledger/service"
	ledgerstore "tranche/internal/ledger/store"
	"tranche/internal/paymentasset"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/requestcontext"
)

const (
	distAsset   = id.AssetID("INV-DIST-001")
	distPayment = id.AssetID("USDT")
)

type distributionFixture struct {
	engine   *Engine
	ledger   *ledgersvc.Service
	payments *paymentasset.InMemory
	verifier *identity.InMemory

	engineAcct  id.AccountID
	agent       id.AccountID
	distributor id.AccountID
	holderA     id.AccountID
	holderB     id.AccountID
	empty       id.AccountID
	now         time.Time
}

func newDistributionFixture(t *testing.T) *distributionFixture {
	t.Helper()
	ctx := context.Background()

	f := &distributionFixture{
		payments:    paymentasset.NewInMemory(),
		engineAcct:  id.AccountID(uuid.New()),
		agent:       id.AccountID(uuid.New()),
		distributor: id.AccountID(uuid.New()),
		holderA:     id.AccountID(uuid.New()),
		holderB:     id.AccountID(uuid.New()),
		empty:       id.AccountID(uuid.New()),
		now:         time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	roles := authz.NewStore()
	f.verifier = identity.NewInMemory()
	ledgerStore := ledgerstore.NewInMemory()
	engine := compliancesvc.New(
		compliancestore.NewInMemory(),
		compliancestore.NewInMemoryWindows(),
		ledgerStore,
		roles,
	)
	f.ledger = ledgersvc.New(ledgerStore, engine, f.verifier, roles)

	require.NoError(t, roles.Grant(ctx, f.agent, authz.RoleTransferAgent))
	require.NoError(t, roles.Grant(ctx, f.distributor, authz.RoleDistributor))
	for _, a := range []id.AccountID{f.agent, f.holderA, f.holderB} {
		f.verifier.Register(ctx, a)
	}

	// Supply of 100: holder A holds 30, holder B holds 70.
	require.NoError(t, f.ledger.CreateLedger(ctx, distAsset))
	agentCtx := requestcontext.WithPrincipal(ctx, f.agent)
	require.NoError(t, f.ledger.Mint(agentCtx, distAsset, f.holderA, 30))
	require.NoError(t, f.ledger.Mint(agentCtx, distAsset, f.holderB, 70))

	f.payments.Credit(ctx, distPayment, f.distributor, decimal.NewFromInt(50_000))
	require.NoError(t, f.payments.Approve(ctx, distPayment, f.distributor, f.engineAcct, decimal.NewFromInt(50_000)))

	f.engine = New(distributionstore.NewInMemory(), f.ledger, f.payments, roles, f.engineAcct)
	return f
}

func (f *distributionFixture) ctxFor(account id.AccountID) context.Context {
	ctx := requestcontext.WithPrincipal(context.Background(), account)
	return requestcontext.WithTime(ctx, f.now)
}

func (f *distributionFixture) balance(t *testing.T, account id.AccountID) decimal.Decimal {
	t.Helper()
	bal, err := f.payments.BalanceOf(context.Background(), distPayment, account)
	require.NoError(t, err)
	return bal
}

func TestClaimProfit_ProRata(t *testing.T) {
	f := newDistributionFixture(t)

	dist, err := f.engine.CreateDistribution(f.ctxFor(f.distributor), distAsset, distPayment,
		decimal.NewFromInt(1_000), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), dist.SupplyAtCreation)

	// Escrowed in full at creation.
	require.True(t, decimal.NewFromInt(49_000).Equal(f.balance(t, f.distributor)))
	require.True(t, decimal.NewFromInt(1_000).Equal(f.balance(t, f.engineAcct)))

	claim, err := f.engine.ClaimProfit(f.ctxFor(f.holderA), dist.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(300).Equal(claim.Amount), "got %s", claim.Amount)
	require.True(t, decimal.NewFromInt(300).Equal(f.balance(t, f.holderA)))

	t.Run("second claim by the same holder fails", func(t *testing.T) {
		_, err := f.engine.ClaimProfit(f.ctxFor(f.holderA), dist.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		require.True(t, decimal.NewFromInt(300).Equal(f.balance(t, f.holderA)))
	})

	t.Run("zero balance holder has nothing to claim", func(t *testing.T) {
		_, err := f.engine.ClaimProfit(f.ctxFor(f.empty), dist.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("total claimed accumulates", func(t *testing.T) {
		_, err := f.engine.ClaimProfit(f.ctxFor(f.holderB), dist.ID)
		require.NoError(t, err)

		got, err := f.engine.GetDistribution(context.Background(), dist.ID)
		require.NoError(t, err)
		require.True(t, decimal.NewFromInt(1_000).Equal(got.TotalClaimed))
	})
}

func TestClaimProfit_ConcurrentClaimsAccrue(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()

	// 50 more holders of 2 units each alongside A and B: supply 200, so
	// each of them is owed exactly 100 of the 10,000 pool.
	holders := make([]id.AccountID, 50)
	agentCtx := requestcontext.WithPrincipal(ctx, f.agent)
	for i := range holders {
		holders[i] = id.AccountID(uuid.New())
		f.verifier.Register(ctx, holders[i])
		require.NoError(t, f.ledger.Mint(agentCtx, distAsset, holders[i], 2))
	}

	dist, err := f.engine.CreateDistribution(f.ctxFor(f.distributor), distAsset, distPayment,
		decimal.NewFromInt(10_000), time.Time{}, f.now.Add(24*time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, h := range holders {
		wg.Add(1)
		go func(h id.AccountID) {
			defer wg.Done()
			claim, err := f.engine.ClaimProfit(f.ctxFor(h), dist.ID)
			assert.NoError(t, err)
			assert.True(t, decimal.NewFromInt(100).Equal(claim.Amount))
		}(h)
	}
	wg.Wait()

	// Every concurrent payout is accounted for, so the later sweep takes
	// exactly the never-claimed remainder and nothing that was paid out.
	got, err := f.engine.GetDistribution(ctx, dist.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(5_000).Equal(got.TotalClaimed), "got %s", got.TotalClaimed)

	treasury := id.AccountID(uuid.New())
	lateCtx := requestcontext.WithPrincipal(ctx, f.distributor)
	lateCtx = requestcontext.WithTime(lateCtx, f.now.Add(48*time.Hour))
	swept, err := f.engine.RecoverUnclaimedFunds(lateCtx, dist.ID, treasury)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(5_000).Equal(swept), "swept %s", swept)
	require.True(t, f.balance(t, f.engineAcct).IsZero())
}

func TestCreateDistribution_Validation(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := f.ctxFor(f.distributor)

	_, err := f.engine.CreateDistribution(ctx, distAsset, distPayment, decimal.Zero, time.Time{}, time.Time{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.engine.CreateDistribution(ctx, distAsset, distPayment, decimal.NewFromInt(10),
		f.now.Add(2*time.Hour), f.now.Add(time.Hour))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.engine.CreateDistribution(f.ctxFor(f.holderA), distAsset, distPayment,
		decimal.NewFromInt(10), time.Time{}, time.Time{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestClaimProfit_Window(t *testing.T) {
	f := newDistributionFixture(t)

	dist, err := f.engine.CreateDistribution(f.ctxFor(f.distributor), distAsset, distPayment,
		decimal.NewFromInt(500), f.now.Add(time.Hour), f.now.Add(48*time.Hour))
	require.NoError(t, err)

	t.Run("not yet open", func(t *testing.T) {
		_, err := f.engine.ClaimProfit(f.ctxFor(f.holderA), dist.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("open", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), f.holderA)
		ctx = requestcontext.WithTime(ctx, f.now.Add(2*time.Hour))
		claim, err := f.engine.ClaimProfit(ctx, dist.ID)
		require.NoError(t, err)
		require.True(t, decimal.NewFromInt(150).Equal(claim.Amount))
	})

	t.Run("closed", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), f.holderB)
		ctx = requestcontext.WithTime(ctx, f.now.Add(72*time.Hour))
		_, err := f.engine.ClaimProfit(ctx, dist.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestClaimMultiple_BestEffort(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := f.ctxFor(f.distributor)

	first, err := f.engine.CreateDistribution(ctx, distAsset, distPayment,
		decimal.NewFromInt(100), time.Time{}, time.Time{})
	require.NoError(t, err)
	second, err := f.engine.CreateDistribution(ctx, distAsset, distPayment,
		decimal.NewFromInt(200), time.Time{}, time.Time{})
	require.NoError(t, err)
	notOpen, err := f.engine.CreateDistribution(ctx, distAsset, distPayment,
		decimal.NewFromInt(300), f.now.Add(time.Hour), time.Time{})
	require.NoError(t, err)

	// Claim the first ahead of the batch so it is skipped as already
	// claimed; the unknown id and the unopened window are skipped too.
	_, err = f.engine.ClaimProfit(f.ctxFor(f.holderA), first.ID)
	require.NoError(t, err)

	claims := f.engine.ClaimMultiple(f.ctxFor(f.holderA), []id.DistributionID{
		first.ID,
		second.ID,
		notOpen.ID,
		id.DistributionID(uuid.New()),
	})
	require.Len(t, claims, 1)
	assert.Equal(t, second.ID, claims[0].Distribution)
	require.True(t, decimal.NewFromInt(60).Equal(claims[0].Amount))
}

func TestCancelDistribution(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := f.ctxFor(f.distributor)

	t.Run("before the window opens", func(t *testing.T) {
		dist, err := f.engine.CreateDistribution(ctx, distAsset, distPayment,
			decimal.NewFromInt(400), f.now.Add(time.Hour), time.Time{})
		require.NoError(t, err)

		before := f.balance(t, f.distributor)
		require.NoError(t, f.engine.CancelDistribution(ctx, dist.ID))
		require.True(t, before.Add(decimal.NewFromInt(400)).Equal(f.balance(t, f.distributor)))

		got, err := f.engine.GetDistribution(context.Background(), dist.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("window already open", func(t *testing.T) {
		dist, err := f.engine.CreateDistribution(ctx, distAsset, distPayment,
			decimal.NewFromInt(400), time.Time{}, time.Time{})
		require.NoError(t, err)

		err = f.engine.CancelDistribution(ctx, dist.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestRecoverUnclaimedFunds(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := f.ctxFor(f.distributor)
	treasury := id.AccountID(uuid.New())

	dist, err := f.engine.CreateDistribution(ctx, distAsset, distPayment,
		decimal.NewFromInt(1_000), time.Time{}, f.now.Add(24*time.Hour))
	require.NoError(t, err)

	// Holder A claims 300; 700 is left unclaimed at the deadline.
	_, err = f.engine.ClaimProfit(f.ctxFor(f.holderA), dist.ID)
	require.NoError(t, err)

	t.Run("window still open", func(t *testing.T) {
		_, err := f.engine.RecoverUnclaimedFunds(ctx, dist.ID, treasury)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	lateCtx := requestcontext.WithPrincipal(context.Background(), f.distributor)
	lateCtx = requestcontext.WithTime(lateCtx, f.now.Add(48*time.Hour))

	swept, err := f.engine.RecoverUnclaimedFunds(lateCtx, dist.ID, treasury)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(700).Equal(swept))
	require.True(t, decimal.NewFromInt(700).Equal(f.balance(t, treasury)))

	t.Run("already inactive", func(t *testing.T) {
		_, err := f.engine.RecoverUnclaimedFunds(lateCtx, dist.ID, treasury)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}
