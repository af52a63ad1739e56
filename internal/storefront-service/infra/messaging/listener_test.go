package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/broker"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invalidations struct{ ids []string }

func (i *invalidations) Invalidate(_ context.Context, id string) error {
	i.ids = append(i.ids, id)
	return nil
}

type notifier struct {
	alerts []events.LowStockAlert
	err    error
}

func (n *notifier) NotifyLowStock(_ context.Context, a events.LowStockAlert) error {
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, a)
	return nil
}

type fixture struct {
	listener *StockListener
	products *invalidations
	view     *StockView
	notifier *notifier
}

func newFixture() *fixture {
	f := &fixture{products: &invalidations{}, view: NewStockView(), notifier: &notifier{}}
	dedupe := NewCacheDeduper(cache.NewMemoryCache("storefront"), time.Hour)
	f.listener = NewStockListener(f.products, f.view, dedupe, f.notifier)
	return f
}

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func delivery(t *testing.T, e events.Event) broker.Delivery {
	t.Helper()
	env, err := events.Wrap("warehouse-service", e)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return broker.Delivery{MessageID: env.ID, RoutingKey: e.RoutingKey(), Body: body}
}

func stockChanged(qty int, version int64, at time.Time) events.StockChanged {
	return events.StockChanged{
		ProductID:       "a",
		ProductName:     "Mouse",
		CurrentQuantity: qty,
		ProductVersion:  version,
		Timestamp:       at,
	}
}

func TestRedeliveredEventHasEffectOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	d := delivery(t, events.LowStockAlert{ProductID: "a", CurrentStock: 9, Threshold: 10, Timestamp: t0})

	require.NoError(t, f.listener.Handle(ctx, d))
	d.Redelivered = true
	require.NoError(t, f.listener.Handle(ctx, d))

	assert.Len(t, f.notifier.alerts, 1)
	require.Len(t, f.view.LowStock(), 1)
}

func TestFailedHandlerReleasesClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.notifier.err = errors.New("mail server down")
	d := delivery(t, events.LowStockAlert{ProductID: "a", CurrentStock: 9, Threshold: 10, Timestamp: t0})

	err := f.listener.Handle(ctx, d)
	require.Error(t, err)
	assert.False(t, errors.Is(err, broker.ErrDiscard))

	f.notifier.err = nil
	require.NoError(t, f.listener.Handle(ctx, d))
	assert.Len(t, f.notifier.alerts, 1)
}

func TestUndecodableMessagesAreDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	err := f.listener.Handle(ctx, broker.Delivery{Body: []byte("not json")})
	assert.ErrorIs(t, err, broker.ErrDiscard)

	body, _ := json.Marshal(events.Envelope{ID: "x", Type: events.TypeStockChanged, Version: 99, Payload: json.RawMessage(`{}`)})
	err = f.listener.Handle(ctx, broker.Delivery{Body: body})
	assert.ErrorIs(t, err, broker.ErrDiscard)
}

func TestStockChangedInvalidatesAndNeverRegresses(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.listener.Handle(ctx, delivery(t, stockChanged(9, 3, t0.Add(time.Second)))))
	require.NoError(t, f.listener.Handle(ctx, delivery(t, stockChanged(12, 2, t0))))

	assert.Equal(t, []string{"a", "a"}, f.products.ids)
	lvl, ok := f.view.Get("a")
	require.True(t, ok)
	assert.Equal(t, 9, lvl.Quantity)
	assert.EqualValues(t, 3, lvl.Version)
}

func TestLowStockMarkIsClearedByRestock(t *testing.T) {
	v := NewStockView()
	v.Apply(stockChanged(9, 2, t0))
	assert.True(t, v.MarkLow(events.LowStockAlert{ProductID: "a", CurrentStock: 9, Threshold: 10, Timestamp: t0}))
	require.Len(t, v.LowStock(), 1)

	v.Apply(stockChanged(12, 3, t0.Add(time.Minute)))
	assert.Empty(t, v.LowStock())

	// A late alert from before the restock does not flag it again.
	assert.False(t, v.MarkLow(events.LowStockAlert{ProductID: "a", CurrentStock: 9, Threshold: 10, Timestamp: t0}))
	assert.Empty(t, v.LowStock())
}
