package ports

import (
	"context"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
)

// StockMutation mirrors the warehouse PUT /api/products/stock body.
type StockMutation struct {
	ProductID string
	Quantity  int
	// Operation is "ADD" or "SUBTRACT".
	Operation string
	// MutationID lets the warehouse recognise a retried mutation.
	MutationID string
}

// StockLevel is what a mutation did to one product.
type StockLevel struct {
	ProductID string
	Previous  int
	Current   int
	Applied   int
}

// StockService is the storefront's only way to read or change stock.
//
// Errors: *domain.ProductNotFoundError for unknown products,
// *domain.InsufficientStockError when a hold cannot be placed,
// domain.ErrHoldNotFound when committing a line with no live hold and
// *domain.UpstreamUnavailableError for timeouts, transport failures and 5xx.
type StockService interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ApplyDelta(ctx context.Context, m StockMutation) (StockLevel, error)

	Hold(ctx context.Context, reservationID string, lines []domain.StockLine, ttl time.Duration) error
	Commit(ctx context.Context, reservationID, productID string) (StockLevel, error)
	Release(ctx context.Context, reservationID string) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListAvailable(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, name string) ([]domain.Product, error)
}
