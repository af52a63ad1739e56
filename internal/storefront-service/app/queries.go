package app

import (
	"context"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
)

func (f *Fulfillment) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return f.orders.Get(ctx, id)
}

// ListOrders returns every order, newest first.
func (f *Fulfillment) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return f.orders.List(ctx, ports.OrderQuery{})
}

func (f *Fulfillment) OrdersByCustomer(ctx context.Context, email string) ([]*domain.Order, error) {
	return f.orders.List(ctx, ports.OrderQuery{CustomerEmail: email})
}

func (f *Fulfillment) OrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	return f.orders.List(ctx, ports.OrderQuery{Status: status})
}

// OrdersByDateRange matches creation times in [from, to].
func (f *Fulfillment) OrdersByDateRange(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	if to.Before(from) {
		return nil, &domain.ValidationError{Field: "endDate", Reason: "is before startDate"}
	}
	return f.orders.List(ctx, ports.OrderQuery{From: &from, To: &to})
}

func (f *Fulfillment) CountByStatus(ctx context.Context, status domain.OrderStatus) (int64, error) {
	return f.orders.CountByStatus(ctx, status)
}
