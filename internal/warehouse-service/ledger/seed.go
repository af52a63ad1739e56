package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/shopspring/decimal"
)

type sampleProduct struct {
	name, description, price string
	quantity                 int
}

var sampleProducts = []sampleProduct{
	{"Smartphone Samsung Galaxy", "Latest Samsung smartphone with advanced features", "899.99", 50},
	{"Notebook Dell Inspiron", "High-performance laptop for work and gaming", "1299.99", 25},
	{"Headphones Sony WH-1000XM4", "Noise-canceling wireless headphones", "349.99", 100},
	{"Smart TV LG 55\"", "4K Ultra HD Smart TV with webOS", "799.99", 15},
	{"Gaming Mouse Logitech", "High-precision gaming mouse with RGB lighting", "79.99", 200},
	{"Mechanical Keyboard", "RGB mechanical keyboard for gaming and typing", "129.99", 75},
	{"Wireless Charger", "Fast wireless charging pad for smartphones", "39.99", 150},
	{"Bluetooth Speaker", "Portable Bluetooth speaker with excellent sound quality", "89.99", 80},
}

// SeedSampleData fills an empty catalog with demo products. A non-empty
// store is left alone.
func (l *Ledger) SeedSampleData(ctx context.Context) (int, error) {
	n, err := l.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: count products: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	for _, s := range sampleProducts {
		d := domain.ProductDetails{
			Name:        s.name,
			Description: s.description,
			Price:       decimal.RequireFromString(s.price),
		}
		if _, err := l.CreateProduct(ctx, d, s.quantity); err != nil {
			return 0, err
		}
	}
	slog.InfoContext(ctx, "sample products initialized", "count", len(sampleProducts))
	return len(sampleProducts), nil
}
