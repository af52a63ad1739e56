package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
)

func (l *Ledger) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return l.store.Get(ctx, id)
}

func (l *Ledger) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return l.store.List(ctx, domain.ProductFilter{})
}

// ListAvailable returns products with stock on hand.
func (l *Ledger) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	one := 1
	return l.store.List(ctx, domain.ProductFilter{MinQuantity: &one})
}

func (l *Ledger) Search(ctx context.Context, name string) ([]domain.Product, error) {
	return l.store.List(ctx, domain.ProductFilter{NameContains: name})
}

// ListLowStock returns products at or below threshold.
func (l *Ledger) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	return l.store.List(ctx, domain.ProductFilter{MaxQuantity: &threshold})
}

func (l *Ledger) CreateProduct(ctx context.Context, d domain.ProductDetails, quantity int) (domain.Product, error) {
	if err := d.Validate(); err != nil {
		return domain.Product{}, err
	}
	if quantity < 0 {
		return domain.Product{}, &domain.ValidationError{Field: "stockQuantity", Reason: "must not be negative"}
	}

	now := l.now().UTC()
	p := domain.Product{
		ID:            uuid.NewString(),
		Name:          d.Name,
		Description:   d.Description,
		Price:         d.Price,
		StockQuantity: quantity,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.store.Insert(ctx, p); err != nil {
		return domain.Product{}, fmt.Errorf("ledger: create product: %w", err)
	}
	slog.InfoContext(ctx, "product created", "product_id", p.ID, "name", p.Name)
	return p, nil
}

// UpdateDetails changes name, description and price. Quantity is untouched.
func (l *Ledger) UpdateDetails(ctx context.Context, id string, d domain.ProductDetails) (domain.Product, error) {
	if err := d.Validate(); err != nil {
		return domain.Product{}, err
	}
	unlock := l.locks.Lock(id)
	defer unlock()
	return l.store.UpdateDetails(ctx, id, d)
}

func (l *Ledger) DeleteProduct(ctx context.Context, id string) error {
	unlock := l.locks.Lock(id)
	defer unlock()
	if err := l.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}

// HoldTTL is the default lifetime of a hold.
func (l *Ledger) HoldTTL() time.Duration {
	return l.holdTTL
}
