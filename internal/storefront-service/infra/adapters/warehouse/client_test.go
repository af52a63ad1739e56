package warehouse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/reqmeta"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/warehousetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientReadsProducts(t *testing.T) {
	ctx := context.Background()
	wh := warehousetest.NewServer(t, 10, warehousetest.Stock{ID: "a", Quantity: 12}, warehousetest.Stock{ID: "b", Quantity: 0})
	c := NewClient(wh.URL, time.Second)

	p, err := c.GetProduct(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Product a", p.Name)
	assert.Equal(t, "10.00", p.Price.StringFixed(2))
	assert.Equal(t, 12, p.StockQuantity)

	_, err = c.GetProduct(ctx, "zzz")
	var nf *domain.ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "zzz", nf.ProductID)

	ok, err := c.CheckAvailability(ctx, "a", 12)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.CheckAvailability(ctx, "a", 13)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := c.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	available, err := c.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "a", available[0].ID)

	found, err := c.SearchProducts(ctx, "product b")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].ID)
}

func TestClientApplyDeltaIsIdempotentByMutationID(t *testing.T) {
	ctx := context.Background()
	wh := warehousetest.NewServer(t, 10, warehousetest.Stock{ID: "a", Quantity: 12})
	c := NewClient(wh.URL, time.Second)

	m := ports.StockMutation{ProductID: "a", Quantity: 3, Operation: "SUBTRACT", MutationID: "o-1:a:subtract"}
	lvl, err := c.ApplyDelta(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, ports.StockLevel{ProductID: "a", Previous: 12, Current: 9, Applied: 3}, lvl)

	again, err := c.ApplyDelta(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, lvl, again)
	assert.Equal(t, 9, wh.Quantity(t, "a"))
}

func TestClientHoldCommitRelease(t *testing.T) {
	ctx := context.Background()
	wh := warehousetest.NewServer(t, 0, warehousetest.Stock{ID: "a", Quantity: 5}, warehousetest.Stock{ID: "b", Quantity: 2})
	c := NewClient(wh.URL, time.Second)

	err := c.Hold(ctx, "o-1", []domain.StockLine{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 5}}, time.Minute)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "b", insufficient.ProductID)
	assert.Equal(t, 5, insufficient.Requested)

	require.NoError(t, c.Hold(ctx, "o-1", []domain.StockLine{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 1}}, time.Minute))
	ok, err := c.CheckAvailability(ctx, "a", 4)
	require.NoError(t, err)
	assert.False(t, ok)

	lvl, err := c.Commit(ctx, "o-1", "a")
	require.NoError(t, err)
	assert.Equal(t, 3, lvl.Current)

	_, err = c.Commit(ctx, "o-2", "a")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	require.NoError(t, c.Release(ctx, "o-1"))
	assert.Equal(t, 2, wh.Quantity(t, "b"))
	ok, err = c.CheckAvailability(ctx, "b", 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientMapsOutagesToUpstreamUnavailable(t *testing.T) {
	ctx := context.Background()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	_, err := NewClient(broken.URL, time.Second).GetProduct(ctx, "a")
	var upstream *domain.UpstreamUnavailableError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "get product", upstream.Op)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	_, err = NewClient(slow.URL, 20*time.Millisecond).CheckAvailability(ctx, "a", 1)
	require.ErrorAs(t, err, &upstream)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientPropagatesHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"id":"a","stockQuantity":1,"previousQuantity":2,"applied":1}`))
	}))
	defer srv.Close()

	ctx := reqmeta.WithRequestID(context.Background(), "req-1")
	_, err := NewClient(srv.URL, time.Second).ApplyDelta(ctx, ports.StockMutation{
		ProductID: "a", Quantity: 1, Operation: "SUBTRACT", MutationID: "m-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.Get(reqmeta.HeaderXRequestId))
	assert.Equal(t, "m-1", got.Get(reqmeta.HeaderXIdempotencyKey))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
}
