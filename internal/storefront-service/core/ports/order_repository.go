package ports

import (
	"context"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
)

// OrderQuery filters a listing. Empty fields are ignored; results are
// newest first. From and To are inclusive.
type OrderQuery struct {
	CustomerEmail string
	Status        domain.OrderStatus
	From          *time.Time
	To            *time.Time
}

type OrderRepository interface {
	// Save inserts a new order with its items.
	Save(ctx context.Context, o *domain.Order) error
	// Update persists status and updated_at of an existing order.
	Update(ctx context.Context, o *domain.Order) error
	// Get returns domain.ErrOrderNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Order, error)
	// FindByIdempotencyKey returns domain.ErrOrderNotFound when no order
	// was created with key.
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	List(ctx context.Context, q OrderQuery) ([]*domain.Order, error)
	CountByStatus(ctx context.Context, status domain.OrderStatus) (int64, error)
}
