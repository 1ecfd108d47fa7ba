package store

import (
	"context"
	"sync"

	"tranche/internal/compliance/models"
	id "tranche/pkg/domain"
)

// InMemory holds per-asset compliance configuration. Configuration
// mutations take effect instantly; there is no transition delay.
type InMemory struct {
	mu        sync.RWMutex
	configs   map[id.AssetID]models.Config
	profiles  map[accountKey]models.AccountProfile
	sanctions map[accountKey]struct{}
	limits    map[accountKey]models.TransferLimits
}

type accountKey struct {
	asset   id.AssetID
	account id.AccountID
}

func NewInMemory() *InMemory {
	return &InMemory{
		configs:   make(map[id.AssetID]models.Config),
		profiles:  make(map[accountKey]models.AccountProfile),
		sanctions: make(map[accountKey]struct{}),
		limits:    make(map[accountKey]models.TransferLimits),
	}
}

func (s *InMemory) Config(_ context.Context, asset id.AssetID) (models.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[asset], nil
}

func (s *InMemory) PutConfig(_ context.Context, asset id.AssetID, cfg models.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[asset] = cfg
	return nil
}

func (s *InMemory) Profile(_ context.Context, asset id.AssetID, account id.AccountID) (models.AccountProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[accountKey{asset, account}], nil
}

func (s *InMemory) PutProfile(_ context.Context, asset id.AssetID, account id.AccountID, p models.AccountProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[accountKey{asset, account}] = p
	return nil
}

func (s *InMemory) IsSanctioned(_ context.Context, asset id.AssetID, account id.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sanctions[accountKey{asset, account}]
	return ok, nil
}

func (s *InMemory) SetSanctioned(_ context.Context, asset id.AssetID, account id.AccountID, sanctioned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sanctioned {
		s.sanctions[accountKey{asset, account}] = struct{}{}
	} else {
		delete(s.sanctions, accountKey{asset, account})
	}
	return nil
}

func (s *InMemory) Limits(_ context.Context, asset id.AssetID, account id.AccountID) (models.TransferLimits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limits[accountKey{asset, account}], nil
}

func (s *InMemory) PutLimits(_ context.Context, asset id.AssetID, account id.AccountID, l models.TransferLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[accountKey{asset, account}] = l
	return nil
}
