//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tranche/internal/ledger/store"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/testutil/containers"
)

type LedgerPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestLedgerPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LedgerPostgresSuite))
}

func (s *LedgerPostgresSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *LedgerPostgresSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"ledger_consumed_transfer_ids", "ledger_frozen_wallets", "ledger_balances", "ledger_assets")
	s.Require().NoError(err)
}

func (s *LedgerPostgresSuite) move(asset id.AssetID, from, to id.AccountID, amount int64) error {
	return s.store.Execute(context.Background(), asset, func(tx store.MovementTx) error {
		return tx.Move(from, to, amount)
	})
}

func (s *LedgerPostgresSuite) TestMintTransferBurn() {
	ctx := context.Background()
	asset := id.AssetID("INV-PG-1")
	alice := id.AccountID(uuid.New())
	bob := id.AccountID(uuid.New())

	s.Require().NoError(s.store.EnsureAsset(ctx, asset))
	s.Require().NoError(s.move(asset, id.ZeroAccount, alice, 100))
	s.Require().NoError(s.move(asset, alice, bob, 40))
	s.Require().NoError(s.move(asset, bob, id.ZeroAccount, 15))

	supply, err := s.store.TotalSupply(ctx, asset)
	s.Require().NoError(err)
	s.Equal(int64(85), supply)

	balance, err := s.store.Balance(ctx, asset, alice)
	s.Require().NoError(err)
	s.Equal(int64(60), balance)

	balance, err = s.store.Balance(ctx, asset, bob)
	s.Require().NoError(err)
	s.Equal(int64(25), balance)

	sum, err := s.store.SumBalances(ctx, asset)
	s.Require().NoError(err)
	s.Equal(supply, sum)
}

func (s *LedgerPostgresSuite) TestInsufficientBalanceRollsBackTransaction() {
	ctx := context.Background()
	asset := id.AssetID("INV-PG-2")
	alice := id.AccountID(uuid.New())
	bob := id.AccountID(uuid.New())

	s.Require().NoError(s.store.EnsureAsset(ctx, asset))
	s.Require().NoError(s.move(asset, id.ZeroAccount, alice, 50))

	// Second leg overdraws, so the first leg must not be visible either.
	err := s.store.Execute(ctx, asset, func(tx store.MovementTx) error {
		if err := tx.Move(alice, bob, 10); err != nil {
			return err
		}
		return tx.Move(alice, bob, 100)
	})
	s.Require().ErrorIs(err, sentinel.ErrInsufficient)

	balance, err := s.store.Balance(ctx, asset, alice)
	s.Require().NoError(err)
	s.Equal(int64(50), balance)

	balance, err = s.store.Balance(ctx, asset, bob)
	s.Require().NoError(err)
	s.Zero(balance)
}

func (s *LedgerPostgresSuite) TestConsumeTransferID() {
	ctx := context.Background()
	asset := id.AssetID("INV-PG-3")
	s.Require().NoError(s.store.EnsureAsset(ctx, asset))

	err := s.store.Execute(ctx, asset, func(tx store.MovementTx) error {
		return tx.ConsumeTransferID("court-order-1")
	})
	s.Require().NoError(err)

	used, err := s.store.IsTransferIDUsed(ctx, asset, "court-order-1")
	s.Require().NoError(err)
	s.True(used)

	err = s.store.Execute(ctx, asset, func(tx store.MovementTx) error {
		return tx.ConsumeTransferID("court-order-1")
	})
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *LedgerPostgresSuite) TestFreezeFlags() {
	ctx := context.Background()
	asset := id.AssetID("INV-PG-4")
	wallet := id.AccountID(uuid.New())

	s.Require().NoError(s.store.EnsureAsset(ctx, asset))

	s.Require().NoError(s.store.SetTokenFrozen(ctx, asset, true))
	frozen, err := s.store.IsTokenFrozen(ctx, asset)
	s.Require().NoError(err)
	s.True(frozen)

	s.Require().NoError(s.store.SetTokenFrozen(ctx, asset, false))
	frozen, err = s.store.IsTokenFrozen(ctx, asset)
	s.Require().NoError(err)
	s.False(frozen)

	s.Require().NoError(s.store.SetWalletFrozen(ctx, asset, wallet, true))
	s.Require().NoError(s.store.SetWalletFrozen(ctx, asset, wallet, true))
	frozen, err = s.store.IsWalletFrozen(ctx, asset, wallet)
	s.Require().NoError(err)
	s.True(frozen)

	s.Require().NoError(s.store.SetWalletFrozen(ctx, asset, wallet, false))
	frozen, err = s.store.IsWalletFrozen(ctx, asset, wallet)
	s.Require().NoError(err)
	s.False(frozen)

	err = s.store.SetTokenFrozen(ctx, id.AssetID("MISSING"), true)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerPostgresSuite) TestHoldersExcludesEmptiedAccounts() {
	ctx := context.Background()
	asset := id.AssetID("INV-PG-5")
	alice := id.AccountID(uuid.New())
	bob := id.AccountID(uuid.New())

	s.Require().NoError(s.store.EnsureAsset(ctx, asset))
	s.Require().NoError(s.move(asset, id.ZeroAccount, alice, 30))
	s.Require().NoError(s.move(asset, id.ZeroAccount, bob, 70))
	s.Require().NoError(s.move(asset, alice, bob, 30))

	holders, err := s.store.Holders(ctx, asset)
	s.Require().NoError(err)
	s.Equal(map[id.AccountID]int64{bob: 100}, holders)
}
