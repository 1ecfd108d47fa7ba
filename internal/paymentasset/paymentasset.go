// Package paymentasset declares the fungible settlement-currency provider
// used by the order book and the distribution engine. The real rail lives
// outside this core; every call can fail and must be checked before any
// local state is committed.
package paymentasset

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// Provider is the generic balance-transfer primitive for a payment asset.
// Amounts are decimal values in the asset's own denomination.
type Provider interface {
	BalanceOf(ctx context.Context, asset id.AssetID, account id.AccountID) (decimal.Decimal, error)
	// Transfer moves funds the caller itself holds.
	Transfer(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount decimal.Decimal) error
	// TransferFrom moves funds on behalf of the owner, consuming allowance
	// granted to the spender.
	TransferFrom(ctx context.Context, asset id.AssetID, spender, from, to id.AccountID, amount decimal.Decimal) error
}

// InMemory is a minimal in-process payment asset with balances and
// allowances, used in development and tests.
type InMemory struct {
	mu         sync.Mutex
	balances   map[balanceKey]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
}

type balanceKey struct {
	asset   id.AssetID
	account id.AccountID
}

type allowanceKey struct {
	asset   id.AssetID
	owner   id.AccountID
	spender id.AccountID
}

func NewInMemory() *InMemory {
	return &InMemory{
		balances:   make(map[balanceKey]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}
}

func (p *InMemory) BalanceOf(_ context.Context, asset id.AssetID, account id.AccountID) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[balanceKey{asset, account}], nil
}

// Credit funds an account out of thin air. Test and bootstrap helper.
func (p *InMemory) Credit(_ context.Context, asset id.AssetID, account id.AccountID, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := balanceKey{asset, account}
	p.balances[k] = p.balances[k].Add(amount)
}

// Approve grants spend allowance, replacing any previous grant.
func (p *InMemory) Approve(_ context.Context, asset id.AssetID, owner, spender id.AccountID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("approve: negative amount")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowances[allowanceKey{asset, owner, spender}] = amount
	return nil
}

func (p *InMemory) Transfer(_ context.Context, asset id.AssetID, from, to id.AccountID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer: negative amount")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.move(asset, from, to, amount)
}

func (p *InMemory) TransferFrom(_ context.Context, asset id.AssetID, spender, from, to id.AccountID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer from: negative amount")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ak := allowanceKey{asset, from, spender}
	allowance := p.allowances[ak]
	if allowance.LessThan(amount) {
		return fmt.Errorf("allowance %s below %s: %w", allowance, amount, sentinel.ErrInsufficient)
	}
	if err := p.move(asset, from, to, amount); err != nil {
		return err
	}
	p.allowances[ak] = allowance.Sub(amount)
	return nil
}

// move must be called with the lock held.
func (p *InMemory) move(asset id.AssetID, from, to id.AccountID, amount decimal.Decimal) error {
	fromKey := balanceKey{asset, from}
	if p.balances[fromKey].LessThan(amount) {
		return fmt.Errorf("balance %s below %s: %w", p.balances[fromKey], amount, sentinel.ErrInsufficient)
	}
	toKey := balanceKey{asset, to}
	p.balances[fromKey] = p.balances[fromKey].Sub(amount)
	p.balances[toKey] = p.balances[toKey].Add(amount)
	return nil
}
