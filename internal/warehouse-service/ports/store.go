package ports

import (
	"context"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
)

// ProductStore persists products. Only the ledger talks to it.
type ProductStore interface {
	// Get returns domain.ErrProductNotFound for unknown ids.
	Get(ctx context.Context, id string) (domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, p domain.Product) error
	UpdateDetails(ctx context.Context, id string, d domain.ProductDetails) (domain.Product, error)
	// SetQuantity writes qty only if the stored version still equals
	// expectedVersion, otherwise it returns domain.ErrVersionConflict.
	SetQuantity(ctx context.Context, id string, expectedVersion int64, qty int) (domain.Product, error)
	Delete(ctx context.Context, id string) error
}
