package store

import (
	"context"
	"sync"

	"tranche/internal/distribution/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

type claimKey struct {
	distribution id.DistributionID
	holder       id.AccountID
}

type InMemory struct {
	mu            sync.RWMutex
	distributions map[id.DistributionID]models.Distribution
	claims        map[claimKey]models.Claim
}

func NewInMemory() *InMemory {
	return &InMemory{
		distributions: make(map[id.DistributionID]models.Distribution),
		claims:        make(map[claimKey]models.Claim),
	}
}

func (s *InMemory) Create(_ context.Context, dist models.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.distributions[dist.ID]; ok {
		return sentinel.ErrConflict
	}
	s.distributions[dist.ID] = dist
	return nil
}

func (s *InMemory) Get(_ context.Context, distID id.DistributionID) (models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dist, ok := s.distributions[distID]
	if !ok {
		return models.Distribution{}, sentinel.ErrNotFound
	}
	return dist, nil
}

// Deactivate atomically flips an active distribution inactive and returns
// the snapshot at that instant, including every claim accrued so far. Fails
// with ErrInvalidState when the distribution is already inactive.
func (s *InMemory) Deactivate(_ context.Context, distID id.DistributionID) (models.Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dist, ok := s.distributions[distID]
	if !ok {
		return models.Distribution{}, sentinel.ErrNotFound
	}
	if !dist.Active {
		return models.Distribution{}, sentinel.ErrInvalidState
	}
	dist.Active = false
	s.distributions[distID] = dist
	return dist, nil
}

// Reactivate undoes a deactivation whose payment leg failed.
func (s *InMemory) Reactivate(_ context.Context, distID id.DistributionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dist, ok := s.distributions[distID]
	if !ok {
		return sentinel.ErrNotFound
	}
	dist.Active = true
	s.distributions[distID] = dist
	return nil
}

func (s *InMemory) GetClaim(_ context.Context, distID id.DistributionID, holder id.AccountID) (models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, ok := s.claims[claimKey{distID, holder}]
	if !ok {
		return models.Claim{}, sentinel.ErrNotFound
	}
	return claim, nil
}

// CreateClaim records a holder's one permitted claim and accrues its amount
// into the distribution's TotalClaimed under the same lock, so concurrent
// claims by different holders always sum correctly. ErrConflict marks a
// repeat attempt; ErrInvalidState a deactivated distribution.
func (s *InMemory) CreateClaim(_ context.Context, claim models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dist, ok := s.distributions[claim.Distribution]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !dist.Active {
		return sentinel.ErrInvalidState
	}
	k := claimKey{claim.Distribution, claim.Holder}
	if _, ok := s.claims[k]; ok {
		return sentinel.ErrConflict
	}
	s.claims[k] = claim
	dist.TotalClaimed = dist.TotalClaimed.Add(claim.Amount)
	s.distributions[claim.Distribution] = dist
	return nil
}

// DeleteClaim undoes a claim record whose payment leg failed, returning its
// amount to the distribution's unclaimed pool.
func (s *InMemory) DeleteClaim(_ context.Context, distID id.DistributionID, holder id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{distID, holder}
	claim, ok := s.claims[k]
	if !ok {
		return nil
	}
	delete(s.claims, k)
	if dist, ok := s.distributions[distID]; ok {
		dist.TotalClaimed = dist.TotalClaimed.Sub(claim.Amount)
		s.distributions[distID] = dist
	}
	return nil
}
