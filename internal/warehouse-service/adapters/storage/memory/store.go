// Package memory is the default product store when no database is
// configured. Data lives only as long as the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ports"
)

var _ ports.ProductStore = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{products: make(map[string]domain.Product), now: time.Now}
}

func (s *Store) Get(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// List returns matches ordered by name, then id.
func (s *Store) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

func (s *Store) Insert(_ context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *Store) UpdateDetails(_ context.Context, id string, d domain.ProductDetails) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p.Name = d.Name
	p.Description = d.Description
	p.Price = d.Price
	p.Version++
	p.UpdatedAt = s.now().UTC()
	s.products[id] = p
	return p, nil
}

func (s *Store) SetQuantity(_ context.Context, id string, expectedVersion int64, qty int) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if p.Version != expectedVersion {
		return domain.Product{}, domain.ErrVersionConflict
	}
	p.StockQuantity = qty
	p.Version++
	p.UpdatedAt = s.now().UTC()
	s.products[id] = p
	return p, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}
