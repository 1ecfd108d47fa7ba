package store

import (
	"context"
	"sync"

	"tranche/internal/compliance/models"
	id "tranche/pkg/domain"
)

// InMemoryWindows stores rolling-window usage per (asset, account). The
// store is a dumb key-value layer; the reset-on-access arithmetic lives in
// models.WindowUsage so memory and Redis behave identically.
type InMemoryWindows struct {
	mu    sync.RWMutex
	usage map[accountKey]models.WindowUsage
}

func NewInMemoryWindows() *InMemoryWindows {
	return &InMemoryWindows{usage: make(map[accountKey]models.WindowUsage)}
}

func (s *InMemoryWindows) Usage(_ context.Context, asset id.AssetID, account id.AccountID) (models.WindowUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[accountKey{asset, account}], nil
}

func (s *InMemoryWindows) Put(_ context.Context, asset id.AssetID, account id.AccountID, u models.WindowUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[accountKey{asset, account}] = u
	return nil
}
