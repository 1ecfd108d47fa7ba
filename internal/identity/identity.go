// Package identity declares the external identity-verification collaborator
// consumed by the ledger. KYC itself happens elsewhere; the core only asks
// whether an account has a valid verified identity right now.
package identity

import (
	"context"
	"sync"

	id "tranche/pkg/domain"
)

// Verifier is consulted by the ledger before any mint or transfer.
type Verifier interface {
	IsVerified(ctx context.Context, account id.AccountID) (bool, error)
}

// InMemory is the development/test verifier: a plain registered set.
type InMemory struct {
	mu       sync.RWMutex
	verified map[id.AccountID]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{verified: make(map[id.AccountID]struct{})}
}

func (v *InMemory) IsVerified(_ context.Context, account id.AccountID) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.verified[account]
	return ok, nil
}

// Register marks an account as identity-verified.
func (v *InMemory) Register(_ context.Context, account id.AccountID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verified[account] = struct{}{}
}

// Unregister removes an account's verified status, e.g. on KYC expiry.
func (v *InMemory) Unregister(_ context.Context, account id.AccountID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.verified, account)
}
