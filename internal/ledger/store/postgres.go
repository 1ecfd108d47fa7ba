package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// Postgres persists ledger state transactionally. Execute serializes
// mutations per asset with a row lock on ledger_assets, giving the same
// one-writer-per-ledger ordering the memory store gets from its mutex.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) EnsureAsset(ctx context.Context, asset id.AssetID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_assets (asset_id, token_frozen, total_supply)
		 VALUES ($1, FALSE, 0)
		 ON CONFLICT (asset_id) DO NOTHING`, asset)
	if err != nil {
		return fmt.Errorf("ensure asset: %w", err)
	}
	return nil
}

func (s *Postgres) Balance(ctx context.Context, asset id.AssetID, account id.AccountID) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance,
		`SELECT balance FROM ledger_balances WHERE asset_id = $1 AND account = $2`,
		asset, account.String())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (s *Postgres) TotalSupply(ctx context.Context, asset id.AssetID) (int64, error) {
	var supply int64
	err := s.db.GetContext(ctx, &supply,
		`SELECT total_supply FROM ledger_assets WHERE asset_id = $1`, asset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get total supply: %w", err)
	}
	return supply, nil
}

func (s *Postgres) IsTokenFrozen(ctx context.Context, asset id.AssetID) (bool, error) {
	var frozen bool
	err := s.db.GetContext(ctx, &frozen,
		`SELECT token_frozen FROM ledger_assets WHERE asset_id = $1`, asset)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("get token frozen: %w", err)
	}
	return frozen, nil
}

func (s *Postgres) SetTokenFrozen(ctx context.Context, asset id.AssetID, frozen bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_assets SET token_frozen = $2 WHERE asset_id = $1`, asset, frozen)
	if err != nil {
		return fmt.Errorf("set token frozen: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) IsWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM ledger_frozen_wallets WHERE asset_id = $1 AND account = $2)`,
		asset, account.String())
	if err != nil {
		return false, fmt.Errorf("get wallet frozen: %w", err)
	}
	return exists, nil
}

func (s *Postgres) SetWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID, frozen bool) error {
	var err error
	if frozen {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO ledger_frozen_wallets (asset_id, account)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`, asset, account.String())
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM ledger_frozen_wallets WHERE asset_id = $1 AND account = $2`,
			asset, account.String())
	}
	if err != nil {
		return fmt.Errorf("set wallet frozen: %w", err)
	}
	return nil
}

func (s *Postgres) IsTransferIDUsed(ctx context.Context, asset id.AssetID, key string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM ledger_consumed_transfer_ids WHERE asset_id = $1 AND transfer_id = $2)`,
		asset, key)
	if err != nil {
		return false, fmt.Errorf("get transfer id: %w", err)
	}
	return exists, nil
}

// Execute runs fn inside one SQL transaction. The asset row lock taken up
// front totally orders mutations per asset; any error rolls everything
// back.
func (s *Postgres) Execute(ctx context.Context, asset id.AssetID, fn func(tx MovementTx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	var supply int64
	err = sqlTx.GetContext(ctx, &supply,
		`SELECT total_supply FROM ledger_assets WHERE asset_id = $1 FOR UPDATE`, asset)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock asset: %w", err)
	}

	tx := &postgresTx{ctx: ctx, tx: sqlTx, asset: asset, supply: supply}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.supplyDirty {
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE ledger_assets SET total_supply = $2 WHERE asset_id = $1`, asset, tx.supply); err != nil {
			return fmt.Errorf("update supply: %w", err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type postgresTx struct {
	ctx         context.Context
	tx          *sqlx.Tx
	asset       id.AssetID
	supply      int64
	supplyDirty bool
}

func (t *postgresTx) Balance(account id.AccountID) (int64, error) {
	var balance int64
	err := t.tx.GetContext(t.ctx, &balance,
		`SELECT balance FROM ledger_balances WHERE asset_id = $1 AND account = $2 FOR UPDATE`,
		t.asset, account.String())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (t *postgresTx) Move(from, to id.AccountID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("move amount must be positive")
	}
	if !from.IsZero() {
		balance, err := t.Balance(from)
		if err != nil {
			return err
		}
		if balance < amount {
			return fmt.Errorf("account %s balance %d below %d: %w",
				from, balance, amount, sentinel.ErrInsufficient)
		}
		if err := t.adjust(from, -amount); err != nil {
			return err
		}
	} else {
		t.supply += amount
		t.supplyDirty = true
	}
	if !to.IsZero() {
		if err := t.adjust(to, amount); err != nil {
			return err
		}
	} else {
		t.supply -= amount
		t.supplyDirty = true
	}
	return nil
}

func (t *postgresTx) adjust(account id.AccountID, delta int64) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ledger_balances (asset_id, account, balance)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (asset_id, account) DO UPDATE
		 SET balance = ledger_balances.balance + EXCLUDED.balance`,
		t.asset, account.String(), delta)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return nil
}

func (t *postgresTx) ConsumeTransferID(key string) error {
	res, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ledger_consumed_transfer_ids (asset_id, transfer_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, t.asset, key)
	if err != nil {
		return fmt.Errorf("consume transfer id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transfer id %q: %w", key, sentinel.ErrAlreadyUsed)
	}
	return nil
}

// SumBalances returns the sum of all balances for invariant checks.
func (s *Postgres) SumBalances(ctx context.Context, asset id.AssetID) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(balance), 0) FROM ledger_balances WHERE asset_id = $1`, asset)
	if err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return sum, nil
}

// Holders returns every account with a non-zero balance.
func (s *Postgres) Holders(ctx context.Context, asset id.AssetID) (map[id.AccountID]int64, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT account, balance FROM ledger_balances WHERE asset_id = $1 AND balance <> 0`, asset)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	out := make(map[id.AccountID]int64)
	for rows.Next() {
		var (
			account string
			balance int64
		)
		if err := rows.Scan(&account, &balance); err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		parsed, err := id.ParseAccountID(account)
		if err != nil {
			return nil, fmt.Errorf("parse holder account: %w", err)
		}
		out[parsed] = balance
	}
	return out, rows.Err()
}
