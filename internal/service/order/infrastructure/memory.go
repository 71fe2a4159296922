package infrastructure

import (
	"context"
	"sync"

	"backoffice/internal/service/order/domain"

	"github.com/pkg/errors"
)

// MemoryRepository 用于本地运行与测试
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*domain.Order)}
}

func (r *MemoryRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return errors.Errorf("order %s already exists", order.ID)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrap(domain.ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, order *domain.Order, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[order.ID]
	if !ok {
		return errors.Wrap(domain.ErrOrderNotFound, order.ID)
	}
	if cur.Version != expectedVersion {
		return errors.Wrapf(domain.ErrOrderConflict, "order %s version %d != %d", order.ID, cur.Version, expectedVersion)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

var _ domain.OrderRepository = (*MemoryRepository)(nil)
