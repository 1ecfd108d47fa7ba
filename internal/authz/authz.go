// Package authz holds the role-assignment table consulted by every
// restricted operation. Roles live outside the entities they protect: a
// ledger does not know who its transfer agents are, it asks.
package authz

import (
	"context"
	"sync"

	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// Role is a named capability.
type Role string

const (
	// RoleAdmin configures the registry, compliance defaults, and fees.
	RoleAdmin Role = "admin"
	// RoleComplianceOfficer may force transfers, freeze wallets and tokens,
	// and maintain the sanction set.
	RoleComplianceOfficer Role = "compliance_officer"
	// RoleTransferAgent may mint and burn units.
	RoleTransferAgent Role = "transfer_agent"
	// RoleOperator may cancel any order on the book.
	RoleOperator Role = "operator"
	// RoleDistributor may create, cancel, and sweep distributions.
	RoleDistributor Role = "distributor"
)

// IsValid checks if the role is one of the supported values.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleComplianceOfficer, RoleTransferAgent, RoleOperator, RoleDistributor:
		return true
	}
	return false
}

// Authorizer answers capability checks for restricted operations.
type Authorizer interface {
	Require(ctx context.Context, principal id.AccountID, role Role) error
	HasRole(ctx context.Context, principal id.AccountID, role Role) (bool, error)
}

// Store is the role-assignment table.
type Store struct {
	mu     sync.RWMutex
	grants map[id.AccountID]map[Role]struct{}
}

func NewStore() *Store {
	return &Store{grants: make(map[id.AccountID]map[Role]struct{})}
}

// Grant assigns a role to an account. Idempotent.
func (s *Store) Grant(_ context.Context, account id.AccountID, role Role) error {
	if !role.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", role)
	}
	if account.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "account is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[account] == nil {
		s.grants[account] = make(map[Role]struct{})
	}
	s.grants[account][role] = struct{}{}
	return nil
}

// Revoke removes a role from an account. Idempotent.
func (s *Store) Revoke(_ context.Context, account id.AccountID, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roles := s.grants[account]; roles != nil {
		delete(roles, role)
	}
	return nil
}

// HasRole reports whether the account holds the role.
func (s *Store) HasRole(_ context.Context, account id.AccountID, role Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := s.grants[account]
	if roles == nil {
		return false, nil
	}
	_, ok := roles[role]
	return ok, nil
}

// Require returns CodeForbidden unless the principal holds the role.
func (s *Store) Require(ctx context.Context, principal id.AccountID, role Role) error {
	ok, err := s.HasRole(ctx, principal, role)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "role lookup failed")
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeForbidden, "caller lacks %s capability", role)
	}
	return nil
}

// Roles lists the roles held by an account, for the admin API.
func (s *Store) Roles(_ context.Context, account id.AccountID) []Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.grants[account]))
	for r := range s.grants[account] {
		out = append(out, r)
	}
	return out
}
