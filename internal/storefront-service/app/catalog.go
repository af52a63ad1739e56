package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"github.com/shopspring/decimal"
)

const productCacheOp = "product"

type cachedProduct struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

// Catalog serves product reads for the storefront. Single products are
// cached read-through; stock-changed events invalidate them.
type Catalog struct {
	stock ports.StockService
	cache cache.Cache
	ttl   time.Duration
}

func NewCatalog(stock ports.StockService, c cache.Cache, ttl time.Duration) *Catalog {
	return &Catalog{stock: stock, cache: c, ttl: ttl}
}

// GetProduct falls back to the warehouse on any cache failure.
func (c *Catalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	key := c.cache.GenerateKey(productCacheOp, id)

	if raw, err := c.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "product cache read failed", "product_id", id, "error", err)
	} else if raw != "" {
		var cp cachedProduct
		if err := json.Unmarshal([]byte(raw), &cp); err == nil {
			return domain.Product(cp), nil
		}
	}

	p, err := c.stock.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if raw, err := json.Marshal(cachedProduct(p)); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			slog.WarnContext(ctx, "product cache write failed", "product_id", id, "error", err)
		}
	}
	return p, nil
}

// Invalidate drops the cached copy of id.
func (c *Catalog) Invalidate(ctx context.Context, id string) error {
	return c.cache.Delete(ctx, c.cache.GenerateKey(productCacheOp, id))
}

func (c *Catalog) CheckStock(ctx context.Context, id string, quantity int) (bool, error) {
	return c.stock.CheckAvailability(ctx, id, quantity)
}

func (c *Catalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return c.stock.ListProducts(ctx)
}

func (c *Catalog) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	return c.stock.ListAvailable(ctx)
}

func (c *Catalog) Search(ctx context.Context, name string) ([]domain.Product, error) {
	return c.stock.SearchProducts(ctx, name)
}
