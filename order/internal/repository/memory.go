package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/keylock"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

// MemoryStore keeps orders in process. Status updates are serialized per order id.
type MemoryStore struct {
	mu     sync.RWMutex
	orders  map[uuid.UUID]domain.Order
	byKey   map[string]uuid.UUID
	numbers map[string]struct{}
	locks   *keylock.KeyLock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  map[uuid.UUID]domain.Order{},
		byKey:   map[string]uuid.UUID{},
		numbers: map[string]struct{}{},
		locks:   keylock.New(),
	}
}

func (s *MemoryStore) Create(c context.Context, order domain.Order) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[order.CheckoutKey]; ok && order.CheckoutKey != "" {
		return s.orders[id].Clone(), false, nil
	}
	if _, taken := s.numbers[order.OrderNumber]; taken {
		return domain.Order{}, false, ErrDuplicateOrderNumber
	}
	s.orders[order.ID] = order.Clone()
	s.numbers[order.OrderNumber] = struct{}{}
	if order.CheckoutKey != "" {
		s.byKey[order.CheckoutKey] = order.ID
	}
	return order.Clone(), true, nil
}

func (s *MemoryStore) Get(c context.Context, id uuid.UUID) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, orderNotFound(id)
	}
	return order.Clone(), nil
}

func (s *MemoryStore) collect(keep func(order domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if keep(order) {
			orders = append(orders, order.Clone())
		}
	}
	return orders
}

func (s *MemoryStore) List(c context.Context, direction domain.SortDirection) ([]domain.Order, error) {
	orders := s.collect(func(domain.Order) bool { return true })
	sortOrders(orders, direction)
	return orders, nil
}

func (s *MemoryStore) ListByUser(c context.Context, userID uuid.UUID) ([]domain.Order, error) {
	orders := s.collect(func(order domain.Order) bool { return order.UserID == userID })
	sortOrders(orders, domain.SortDescending)
	return orders, nil
}

func (s *MemoryStore) UpdateStatus(
	c context.Context,
	id uuid.UUID,
	apply func(order *domain.Order) error,
) (domain.Order, error) {
	unlock, err := s.locks.Lock(c, id.String())
	if err != nil {
		return domain.Order{}, inErrors.Wrap(inErrors.CodeInternal, err, "failed acquiring order lock")
	}
	defer unlock()

	current, err := s.Get(c, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := apply(&current); err != nil {
		return domain.Order{}, err
	}

	s.mu.Lock()
	s.orders[id] = current.Clone()
	s.mu.Unlock()
	return current, nil
}
