// Package memory keeps orders in process memory. Used by tests and when no
// database path is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	byKey  map[string]string
}

var _ ports.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
		byKey:  make(map[string]string),
	}
}

func (r *OrderRepository) Save(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[o.IdempotencyKey]; ok && o.IdempotencyKey != "" && id != o.ID {
		return domain.ErrDuplicateIdempotencyKey
	}
	r.orders[o.ID] = clone(o)
	if o.IdempotencyKey != "" {
		r.byKey[o.IdempotencyKey] = o.ID
	}
	return nil
}

func (r *OrderRepository) Update(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(o), nil
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	r.mu.RLock()
	id, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return r.Get(ctx, id)
}

func (r *OrderRepository) List(_ context.Context, q ports.OrderQuery) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if q.CustomerEmail != "" && o.CustomerEmail != q.CustomerEmail {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		if q.From != nil && o.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && o.CreatedAt.After(*q.To) {
			continue
		}
		out = append(out, clone(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *OrderRepository) CountByStatus(_ context.Context, status domain.OrderStatus) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, o := range r.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

func clone(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}
