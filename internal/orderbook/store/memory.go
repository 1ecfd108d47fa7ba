package store

import (
	"context"
	"sync"

	"tranche/internal/orderbook/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// InMemory holds orders and the append-only trade log. Fill accounting and
// status transitions go through ReserveFill, ReleaseFill, and CloseOrder so
// two concurrent fills can never allocate the same slice of an order's
// remainder.
type InMemory struct {
	mu       sync.RWMutex
	orders   map[id.OrderID]models.Order
	orderSeq []id.OrderID
	trades   []models.Trade
	byOrder  map[id.OrderID][]int
}

func NewInMemory() *InMemory {
	return &InMemory{
		orders:  make(map[id.OrderID]models.Order),
		byOrder: make(map[id.OrderID][]int),
	}
}

func (s *InMemory) CreateOrder(_ context.Context, order models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return sentinel.ErrConflict
	}
	s.orders[order.ID] = order
	s.orderSeq = append(s.orderSeq, order.ID)
	return nil
}

func (s *InMemory) GetOrder(_ context.Context, orderID id.OrderID) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, sentinel.ErrNotFound
	}
	return order, nil
}

// ReserveFill atomically allocates fillAmount of the order's remainder,
// advancing Filled and transitioning to FILLED when the order completes.
// Returns the order after the reservation. Fails with ErrInvalidState when
// the order is not ACTIVE and ErrInsufficient when fillAmount exceeds the
// remainder, allocating nothing in either case.
func (s *InMemory) ReserveFill(_ context.Context, orderID id.OrderID, fillAmount int64) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, sentinel.ErrNotFound
	}
	if order.Status != models.StatusActive {
		return models.Order{}, sentinel.ErrInvalidState
	}
	if fillAmount > order.Remaining() {
		return models.Order{}, sentinel.ErrInsufficient
	}
	order.Filled += fillAmount
	if order.Filled == order.Amount {
		order.Status = models.StatusFilled
	}
	s.orders[orderID] = order
	return order, nil
}

// ReleaseFill returns a reserved amount whose settlement failed. A FILLED
// order reopens; an order closed while the reservation was in flight keeps
// its terminal status, and the caller owns refunding the released escrow.
func (s *InMemory) ReleaseFill(_ context.Context, orderID id.OrderID, fillAmount int64) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, sentinel.ErrNotFound
	}
	order.Filled -= fillAmount
	if order.Status == models.StatusFilled {
		order.Status = models.StatusActive
	}
	s.orders[orderID] = order
	return order, nil
}

// CloseOrder atomically transitions an ACTIVE order to the given terminal
// status and returns the order at that instant, so the caller refunds
// exactly the remainder no in-flight fill has reserved. Fails with
// ErrInvalidState when the order is not ACTIVE.
func (s *InMemory) CloseOrder(_ context.Context, orderID id.OrderID, status models.Status) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, sentinel.ErrNotFound
	}
	if order.Status != models.StatusActive {
		return models.Order{}, sentinel.ErrInvalidState
	}
	order.Status = status
	s.orders[orderID] = order
	return order, nil
}

func (s *InMemory) AppendTrade(_ context.Context, trade models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	s.byOrder[trade.OrderID] = append(s.byOrder[trade.OrderID], len(s.trades)-1)
	return nil
}

// ListOrders returns orders in creation order, optionally filtered by maker
// and/or asset. Zero values of the filters match everything.
func (s *InMemory) ListOrders(_ context.Context, maker id.AccountID, asset id.AssetID) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, orderID := range s.orderSeq {
		order := s.orders[orderID]
		if !maker.IsZero() && order.Maker != maker {
			continue
		}
		if asset != "" && order.Asset != asset {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

// TradesForOrder returns the fill history of one order in execution order.
func (s *InMemory) TradesForOrder(_ context.Context, orderID id.OrderID) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byOrder[orderID]
	out := make([]models.Trade, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.trades[i])
	}
	return out, nil
}
