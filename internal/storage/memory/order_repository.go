package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// orderStore хранит копии заказов и индекс заказов по клиенту.
type orderStore struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byCustomer map[string][]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderStore{
		orders:     make(map[string]domain.Order),
		byCustomer: make(map[string][]string),
	}
}

func (s *orderStore) Create(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.orders[order.ID]; taken {
		return domain.ErrOrderVersionConflict
	}
	s.orders[order.ID] = order.Clone()
	s.byCustomer[order.CustomerID] = append(s.byCustomer[order.CustomerID], order.ID)
	return nil
}

func (s *orderStore) Get(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if order, ok := s.orders[id]; ok {
		return order.Clone(), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListByCustomer сортирует по убыванию CreatedAt, при равенстве по убыванию ID.
func (s *orderStore) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	ids := s.byCustomer[customerID]
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.orders[id].Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 {
		out = out[:min(limit, len(out))]
	}
	return out, nil
}

// Save принимает заказ только с текущей версией и увеличивает её на единицу.
func (s *orderStore) Save(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case current.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}
	next := order.Clone()
	next.Version++
	s.orders[order.ID] = next
	return nil
}

func (s *orderStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, id)
	s.byCustomer[order.CustomerID] = slices.DeleteFunc(s.byCustomer[order.CustomerID], func(v string) bool { return v == id })
	return nil
}

var _ domain.OrderRepository = (*orderStore)(nil)
