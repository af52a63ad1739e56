package ports

import (
	"context"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
)

// LowStockNotifier is told about every low-stock alert the storefront
// receives, once per alert.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, alert events.LowStockAlert) error
}
