// Package warehousetest runs a real warehouse HTTP server on an in-memory
// store for storefront tests.
package warehousetest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/broker/brokertest"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/adapters/httpx"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/adapters/storage/memory"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type Server struct {
	URL    string
	Store  *memory.Store
	Ledger *ledger.Ledger
	Events *brokertest.Recorder
}

// Stock is a product seeded with a name derived from its id and a price of
// 10.00.
type Stock struct {
	ID       string
	Quantity int
}

// NewServer starts a warehouse with the given low-stock threshold and
// stock. It is closed when the test ends.
func NewServer(t *testing.T, threshold int, stock ...Stock) *Server {
	t.Helper()
	store := memory.NewStore()
	rec := &brokertest.Recorder{}
	l, err := ledger.New(store, rec, ledger.Options{
		LowStockThreshold: threshold,
		AlertMode:         ledger.AlertLevel,
		HoldTTL:           time.Minute,
	})
	require.NoError(t, err)

	for _, s := range stock {
		require.NoError(t, store.Insert(context.Background(), domain.Product{
			ID:            s.ID,
			Name:          "Product " + s.ID,
			Price:         decimal.RequireFromString("10.00"),
			StockQuantity: s.Quantity,
			Version:       1,
		}))
	}

	srv := httptest.NewServer(httpx.NewRouter(httpx.NewHandler(l, threshold)))
	t.Cleanup(srv.Close)
	return &Server{URL: srv.URL, Store: store, Ledger: l, Events: rec}
}

// Quantity returns the on-hand stock of id.
func (s *Server) Quantity(t *testing.T, id string) int {
	t.Helper()
	p, err := s.Store.Get(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}
