// Package storagetest holds the behaviour every ports.OrderRepository must
// share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func order(t *testing.T, id, email string, created time.Time) *domain.Order {
	t.Helper()
	items := []domain.OrderItem{
		domain.NewOrderItem(domain.Product{ID: "a", Name: "Mouse", Price: decimal.RequireFromString("79.99")}, 2),
		domain.NewOrderItem(domain.Product{ID: "b", Name: "Pad", Price: decimal.RequireFromString("0.10")}, 3),
	}
	o, err := domain.NewOrder(id, "Ana", email, items, created)
	require.NoError(t, err)
	return o
}

// RunOrderRepository exercises repo, which must start empty.
func RunOrderRepository(t *testing.T, newRepo func(t *testing.T) ports.OrderRepository) {
	t.Run("save and get keeps exact amounts", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		o := order(t, "o-1", "ana@example.com", base)
		o.IdempotencyKey = "key-1"
		require.NoError(t, repo.Save(ctx, o))

		got, err := repo.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, "160.28", got.TotalAmount.StringFixed(2))
		require.Len(t, got.Items, 2)
		assert.Equal(t, "a", got.Items[0].ProductID)
		assert.True(t, decimal.RequireFromString("0.30").Equal(got.Items[1].LineTotal))
		assert.True(t, base.Equal(got.CreatedAt))
		assert.NoError(t, got.Validate())

		byKey, err := repo.FindByIdempotencyKey(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, "o-1", byKey.ID)

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		_, err = repo.FindByIdempotencyKey(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("idempotency key is unique", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		first := order(t, "o-1", "ana@example.com", base)
		first.IdempotencyKey = "key-1"
		require.NoError(t, repo.Save(ctx, first))

		second := order(t, "o-2", "ana@example.com", base)
		second.IdempotencyKey = "key-1"
		assert.ErrorIs(t, repo.Save(ctx, second), domain.ErrDuplicateIdempotencyKey)

		_, err := repo.Get(ctx, "o-2")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		// Orders without a key never collide.
		require.NoError(t, repo.Save(ctx, order(t, "o-3", "bo@example.com", base)))
		require.NoError(t, repo.Save(ctx, order(t, "o-4", "bo@example.com", base)))
	})

	t.Run("update persists status", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		o := order(t, "o-1", "ana@example.com", base)
		require.NoError(t, repo.Save(ctx, o))

		o.SetStatus(domain.StatusShipped, base.Add(time.Hour))
		require.NoError(t, repo.Update(ctx, o))

		got, err := repo.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusShipped, got.Status)
		assert.True(t, base.Add(time.Hour).Equal(got.UpdatedAt))

		missing := order(t, "o-2", "x@example.com", base)
		assert.ErrorIs(t, repo.Update(ctx, missing), domain.ErrOrderNotFound)
	})

	t.Run("list filters newest first", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		for i, email := range []string{"ana@example.com", "bo@example.com", "ana@example.com"} {
			o := order(t, "o-"+string(rune('1'+i)), email, base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, repo.Save(ctx, o))
		}
		shipped, err := repo.Get(ctx, "o-2")
		require.NoError(t, err)
		shipped.SetStatus(domain.StatusShipped, base)
		require.NoError(t, repo.Update(ctx, shipped))

		all, err := repo.List(ctx, ports.OrderQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{"o-3", "o-2", "o-1"}, ids(all))

		byEmail, err := repo.List(ctx, ports.OrderQuery{CustomerEmail: "ana@example.com"})
		require.NoError(t, err)
		assert.Equal(t, []string{"o-3", "o-1"}, ids(byEmail))

		byStatus, err := repo.List(ctx, ports.OrderQuery{Status: domain.StatusPending})
		require.NoError(t, err)
		assert.Equal(t, []string{"o-3", "o-1"}, ids(byStatus))

		// Bounds are inclusive.
		from, to := base.Add(time.Hour), base.Add(2*time.Hour)
		inRange, err := repo.List(ctx, ports.OrderQuery{From: &from, To: &to})
		require.NoError(t, err)
		assert.Equal(t, []string{"o-3", "o-2"}, ids(inRange))
		require.Len(t, inRange[0].Items, 2)

		n, err := repo.CountByStatus(ctx, domain.StatusPending)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		n, err = repo.CountByStatus(ctx, domain.StatusDelivered)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})
}

func ids(orders []*domain.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
