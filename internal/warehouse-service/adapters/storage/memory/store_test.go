package memory

import (
	"context"
	"testing"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetQuantityChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Insert(ctx, domain.Product{ID: "p", Name: "P", StockQuantity: 5, Version: 1}))

	p, err := s.SetQuantity(ctx, "p", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockQuantity)
	assert.Equal(t, int64(2), p.Version)

	_, err = s.SetQuantity(ctx, "p", 1, 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = s.SetQuantity(ctx, "missing", 1, 0)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestUpdateDetailsKeepsQuantity(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Insert(ctx, domain.Product{ID: "p", Name: "Old", StockQuantity: 7, Version: 1}))

	p, err := s.UpdateDetails(ctx, "p", domain.ProductDetails{Name: "New", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "New", p.Name)
	assert.Equal(t, 7, p.StockQuantity)
	assert.Equal(t, int64(2), p.Version)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Insert(ctx, domain.Product{ID: "b", Name: "Bluetooth Speaker", StockQuantity: 0}))
	require.NoError(t, s.Insert(ctx, domain.Product{ID: "a", Name: "Wireless Charger", StockQuantity: 4}))

	all, err := s.List(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)

	found, err := s.List(ctx, domain.ProductFilter{NameContains: "CHARGER"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].ID)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), domain.ErrProductNotFound)
	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)
}
