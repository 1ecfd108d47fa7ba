// Package store persists per-asset ledger state: balances, freeze flags,
// and the consumed forced-transfer id set. Balances are authoritative
// financial record; every mutation goes through Execute so a failing
// callback leaves the state byte-identical.
package store

import (
	"context"
	"fmt"
	"sync"

	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/safe"
)

// MovementTx is the staged view handed to Execute callbacks. Reads observe
// earlier writes in the same callback; nothing is visible outside until the
// callback returns nil.
type MovementTx interface {
	Balance(account id.AccountID) (int64, error)
	// Move transfers units. A zero from mints (supply grows), a zero to
	// burns (supply shrinks). Fails with sentinel.ErrInsufficient when the
	// sender cannot cover the amount.
	Move(from, to id.AccountID, amount int64) error
	// ConsumeTransferID marks a forced-transfer identifier as used. Fails
	// with sentinel.ErrAlreadyUsed on replay.
	ConsumeTransferID(key string) error
}

type assetState struct {
	balances      map[id.AccountID]int64
	totalSupply   int64
	tokenFrozen   bool
	frozenWallets map[id.AccountID]struct{}
	consumedIDs   map[string]struct{}
}

func newAssetState() *assetState {
	return &assetState{
		balances:      make(map[id.AccountID]int64),
		frozenWallets: make(map[id.AccountID]struct{}),
		consumedIDs:   make(map[string]struct{}),
	}
}

// InMemory keeps every asset's ledger under one mutex, making each mutation
// a totally ordered atomic step.
type InMemory struct {
	mu     sync.RWMutex
	assets map[id.AssetID]*assetState
}

func NewInMemory() *InMemory {
	return &InMemory{assets: make(map[id.AssetID]*assetState)}
}

// EnsureAsset creates empty ledger state for a new asset. Idempotent.
func (s *InMemory) EnsureAsset(_ context.Context, asset id.AssetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset]; !ok {
		s.assets[asset] = newAssetState()
	}
	return nil
}

func (s *InMemory) state(asset id.AssetID) (*assetState, error) {
	st, ok := s.assets[asset]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", asset, sentinel.ErrNotFound)
	}
	return st, nil
}

func (s *InMemory) Balance(_ context.Context, asset id.AssetID, account id.AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.state(asset)
	if err != nil {
		return 0, err
	}
	return st.balances[account], nil
}

func (s *InMemory) TotalSupply(_ context.Context, asset id.AssetID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.state(asset)
	if err != nil {
		return 0, err
	}
	return st.totalSupply, nil
}

func (s *InMemory) IsTokenFrozen(_ context.Context, asset id.AssetID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.state(asset)
	if err != nil {
		return false, err
	}
	return st.tokenFrozen, nil
}

func (s *InMemory) SetTokenFrozen(_ context.Context, asset id.AssetID, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(asset)
	if err != nil {
		return err
	}
	st.tokenFrozen = frozen
	return nil
}

func (s *InMemory) IsWalletFrozen(_ context.Context, asset id.AssetID, account id.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.state(asset)
	if err != nil {
		return false, err
	}
	_, ok := st.frozenWallets[account]
	return ok, nil
}

func (s *InMemory) SetWalletFrozen(_ context.Context, asset id.AssetID, account id.AccountID, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(asset)
	if err != nil {
		return err
	}
	if frozen {
		st.frozenWallets[account] = struct{}{}
	} else {
		delete(st.frozenWallets, account)
	}
	return nil
}

func (s *InMemory) IsTransferIDUsed(_ context.Context, asset id.AssetID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.state(asset)
	if err != nil {
		return false, err
	}
	_, ok := st.consumedIDs[key]
	return ok, nil
}

// Execute runs fn against a staged transaction and commits its writes only
// when fn returns nil. The store lock is held throughout, so no other
// mutation interleaves.
func (s *InMemory) Execute(_ context.Context, asset id.AssetID, fn func(tx MovementTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(asset)
	if err != nil {
		return err
	}

	tx := &memoryTx{
		state:    st,
		deltas:   make(map[id.AccountID]int64),
		consumed: make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTx stages balance deltas and consumed ids over the live state.
type memoryTx struct {
	state       *assetState
	deltas      map[id.AccountID]int64
	supplyDelta int64
	consumed    map[string]struct{}
}

func (tx *memoryTx) Balance(account id.AccountID) (int64, error) {
	return tx.staged(account), nil
}

func (tx *memoryTx) staged(account id.AccountID) int64 {
	return tx.state.balances[account] + tx.deltas[account]
}

func (tx *memoryTx) Move(from, to id.AccountID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("move amount must be positive")
	}
	if !from.IsZero() {
		if tx.staged(from) < amount {
			return fmt.Errorf("account %s balance %d below %d: %w",
				from, tx.staged(from), amount, sentinel.ErrInsufficient)
		}
		tx.deltas[from] -= amount
	} else {
		if _, err := safe.Add(tx.state.totalSupply+tx.supplyDelta, amount); err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		tx.supplyDelta += amount
	}
	if !to.IsZero() {
		if _, err := safe.Add(tx.staged(to), amount); err != nil {
			return fmt.Errorf("credit %s: %w", to, err)
		}
		tx.deltas[to] += amount
	} else {
		tx.supplyDelta -= amount
	}
	return nil
}

func (tx *memoryTx) ConsumeTransferID(key string) error {
	if _, ok := tx.state.consumedIDs[key]; ok {
		return fmt.Errorf("transfer id %q: %w", key, sentinel.ErrAlreadyUsed)
	}
	if _, ok := tx.consumed[key]; ok {
		return fmt.Errorf("transfer id %q: %w", key, sentinel.ErrAlreadyUsed)
	}
	tx.consumed[key] = struct{}{}
	return nil
}

func (tx *memoryTx) commit() {
	for account, delta := range tx.deltas {
		next := tx.state.balances[account] + delta
		if next == 0 {
			delete(tx.state.balances, account)
		} else {
			tx.state.balances[account] = next
		}
	}
	tx.state.totalSupply += tx.supplyDelta
	for key := range tx.consumed {
		tx.state.consumedIDs[key] = struct{}{}
	}
}

// SumBalances returns the sum of all balances for invariant checks.
func (s *InMemory) SumBalances(_ context.Context, asset id.AssetID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.state(asset)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, b := range st.balances {
		sum += b
	}
	return sum, nil
}

// Holders returns every account with a non-zero balance. Used by queries,
// never by the movement path.
func (s *InMemory) Holders(_ context.Context, asset id.AssetID) (map[id.AccountID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.state(asset)
	if err != nil {
		return nil, err
	}
	out := make(map[id.AccountID]int64, len(st.balances))
	for account, balance := range st.balances {
		out[account] = balance
	}
	return out, nil
}
