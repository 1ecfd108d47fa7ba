package store

import (
	"context"
	"sync"

	"tranche/internal/registry/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// InMemory keeps asset records in creation order. Listing is a full scan
// over every created id on each call.
type InMemory struct {
	mu     sync.RWMutex
	assets map[id.AssetID]models.Asset
	order  []id.AssetID
}

func NewInMemory() *InMemory {
	return &InMemory{assets: make(map[id.AssetID]models.Asset)}
}

func (s *InMemory) Create(_ context.Context, asset models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset.ID]; ok {
		return sentinel.ErrConflict
	}
	s.assets[asset.ID] = asset
	s.order = append(s.order, asset.ID)
	return nil
}

func (s *InMemory) Get(_ context.Context, assetID id.AssetID) (models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return models.Asset{}, sentinel.ErrNotFound
	}
	return asset, nil
}

func (s *InMemory) SetActive(_ context.Context, assetID id.AssetID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return sentinel.ErrNotFound
	}
	asset.Active = active
	s.assets[assetID] = asset
	return nil
}

// ListActive scans all created assets in creation order and returns the
// requested page of active ones.
func (s *InMemory) ListActive(_ context.Context, offset, limit int) ([]models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := make([]models.Asset, 0, limit)
	skipped := 0
	for _, assetID := range s.order {
		asset := s.assets[assetID]
		if !asset.Active {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(page) == limit {
			break
		}
		page = append(page, asset)
	}
	return page, nil
}
