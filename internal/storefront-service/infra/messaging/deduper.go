package messaging

import (
	"context"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/cache"
)

// Deduper remembers which envelope ids were already processed.
type Deduper interface {
	// Claim reports whether id is seen for the first time.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a redelivery is processed again.
	Release(ctx context.Context, id string) error
}

// CacheDeduper keeps claims in a cache.Cache with a TTL longer than any
// plausible redelivery window.
type CacheDeduper struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCacheDeduper(c cache.Cache, ttl time.Duration) *CacheDeduper {
	return &CacheDeduper{cache: c, ttl: ttl}
}

func (d *CacheDeduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.cache.SetNX(ctx, d.cache.GenerateKey("event", id), "1", d.ttl)
}

func (d *CacheDeduper) Release(ctx context.Context, id string) error {
	return d.cache.Delete(ctx, d.cache.GenerateKey("event", id))
}
