package messaging

import (
	"context"
	"log/slog"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
)

// LogNotifier reports low stock through the structured log.
type LogNotifier struct{}

func (LogNotifier) NotifyLowStock(ctx context.Context, a events.LowStockAlert) error {
	slog.WarnContext(ctx, "low stock",
		"product_id", a.ProductID,
		"product_name", a.ProductName,
		"current_stock", a.CurrentStock,
		"threshold", a.Threshold,
	)
	return nil
}
