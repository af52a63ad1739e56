package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/adapters/storage/memory"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldReducesAvailabilityNotStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, "a", 5)
	l, rec := newLedger(t, store, AlertLevel)

	res, err := l.Hold(ctx, "order-1", []domain.HoldLine{{ProductID: "a", Quantity: 2}, {ProductID: "a", Quantity: 1}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.HoldLine{{ProductID: "a", Quantity: 3}}, res.Lines)

	assert.True(t, l.CheckAvailability(ctx, "a", 2))
	assert.False(t, l.CheckAvailability(ctx, "a", 3))
	p, _ := store.Get(ctx, "a")
	assert.Equal(t, 5, p.StockQuantity)
	assert.Empty(t, rec.Events())
}

func TestHoldIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, "b", 2)
	seed(t, store, "c", 10)
	l, _ := newLedger(t, store, AlertLevel)

	_, err := l.Hold(ctx, "order-1", []domain.HoldLine{{ProductID: "b", Quantity: 5}, {ProductID: "c", Quantity: 1}}, 0)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "b", insufficient.ProductID)
	assert.Equal(t, 2, insufficient.Available)

	assert.True(t, l.CheckAvailability(ctx, "c", 10))

	_, err = l.Hold(ctx, "order-2", []domain.HoldLine{{ProductID: "missing", Quantity: 1}}, 0)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestSecondHoldSeesFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, "a", 5)
	l, _ := newLedger(t, store, AlertLevel)

	_, err := l.Hold(ctx, "order-1", []domain.HoldLine{{ProductID: "a", Quantity: 4}}, 0)
	require.NoError(t, err)
	_, err = l.Hold(ctx, "order-2", []domain.HoldLine{{ProductID: "a", Quantity: 2}}, 0)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Available)

	again, err := l.Hold(ctx, "order-1", []domain.HoldLine{{ProductID: "a", Quantity: 4}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, again.Lines[0].Quantity)
}

func TestCommitDebitsHeldQuantityOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, "a", 12)
	l, rec := newLedger(t, store, AlertLevel)

	_, err := l.Hold(ctx, "order-1", []domain.HoldLine{{ProductID: "a", Quantity: 3}}, 0)
	require.NoError(t, err)

	m, err := l.Commit(ctx, "order-1", "a")
	require.NoError(t, err)
	assert.Equal(t, 12, m.Previous)
	assert.Equal(t, 9, m.Current)

	again, err := l.Commit(ctx, "order-1", "a")
	require.NoError(t, err)
	assert.Equal(t, m, again)

	p, _ := store.Get(ctx, "a")
	assert.Equal(t, 9, p.StockQuantity)
	assert.True(t, l.CheckAvailability(ctx, "a", 9))
	assert.Len(t, rec.OfType(events.TypeStockChanged), 1)
	assert.Len(t, rec.OfType(events.TypeLowStockAlert), 1)

	_, err = l.Commit(ctx, "order-9", "a")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestReleaseAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, "a", 5)
	l, _ := newLedger(t, store, AlertLevel)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, err := l.Hold(ctx, "order-1", []domain.HoldLine{{ProductID: "a", Quantity: 5}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Release(ctx, "order-1"))
	assert.Zero(t, l.Release(ctx, "order-1"))
	assert.True(t, l.CheckAvailability(ctx, "a", 5))

	_, err = l.Hold(ctx, "order-2", []domain.HoldLine{{ProductID: "a", Quantity: 5}}, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, l.CheckAvailability(ctx, "a", 1))

	now = now.Add(30 * time.Second)
	assert.True(t, l.CheckAvailability(ctx, "a", 5))
	_, err = l.Commit(ctx, "order-2", "a")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestKeyedMutexLockAllDedupes(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.LockAll([]string{"b", "a", "b"})
	unlock()
	assert.Empty(t, k.locks)
}
