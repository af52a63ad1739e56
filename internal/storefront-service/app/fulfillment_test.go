package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	sagamemory "github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog/memory"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/broker/brokertest"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/adapters/storage/memory"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/adapters/warehouse"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ledger"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/warehousetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyStock lets a test fail or intercept single warehouse calls.
type faultyStock struct {
	ports.StockService

	mu         sync.Mutex
	beforeHold func()
	failDelta  func(m ports.StockMutation) error
	// lostResponse forwards debits of matching products and then reports
	// an outage, as if the warehouse reply never arrived.
	lostResponse func(productID string) bool
}

func (s *faultyStock) Hold(ctx context.Context, id string, lines []domain.StockLine, ttl time.Duration) error {
	s.mu.Lock()
	hook := s.beforeHold
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.StockService.Hold(ctx, id, lines, ttl)
}

func (s *faultyStock) ApplyDelta(ctx context.Context, m ports.StockMutation) (ports.StockLevel, error) {
	s.mu.Lock()
	fail := s.failDelta
	s.mu.Unlock()
	if fail != nil {
		if err := fail(m); err != nil {
			return ports.StockLevel{}, err
		}
	}
	lvl, err := s.StockService.ApplyDelta(ctx, m)
	if err == nil && m.Operation == "SUBTRACT" && s.loses(m.ProductID) {
		return ports.StockLevel{}, &domain.UpstreamUnavailableError{Op: "update stock", Err: errors.New("read timeout")}
	}
	return lvl, err
}

func (s *faultyStock) Commit(ctx context.Context, reservationID, productID string) (ports.StockLevel, error) {
	lvl, err := s.StockService.Commit(ctx, reservationID, productID)
	if err == nil && s.loses(productID) {
		return ports.StockLevel{}, &domain.UpstreamUnavailableError{Op: "commit hold", Err: errors.New("read timeout")}
	}
	return lvl, err
}

func (s *faultyStock) loses(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lostResponse != nil && s.lostResponse(productID)
}

func (s *faultyStock) setLostResponse(fn func(productID string) bool) {
	s.mu.Lock()
	s.lostResponse = fn
	s.mu.Unlock()
}

func (s *faultyStock) setFailDelta(fn func(m ports.StockMutation) error) {
	s.mu.Lock()
	s.failDelta = fn
	s.mu.Unlock()
}

type env struct {
	wh        *warehousetest.Server
	stock     *faultyStock
	orders    *memory.OrderRepository
	sagas     *sagamemory.Repository
	published *brokertest.Recorder
	f         *Fulfillment
}

func newEnv(t *testing.T, mode ReservationMode, stock ...warehousetest.Stock) *env {
	t.Helper()
	e := &env{
		wh:        warehousetest.NewServer(t, 10, stock...),
		orders:    memory.NewOrderRepository(),
		sagas:     sagamemory.New(),
		published: &brokertest.Recorder{},
	}
	e.stock = &faultyStock{StockService: warehouse.NewClient(e.wh.URL, time.Second)}
	e.f = NewFulfillment(e.stock, e.orders, e.sagas, e.published, Options{Mode: mode, HoldTTL: time.Minute})
	return e
}

func order(items ...ItemRequest) CreateOrderCommand {
	return CreateOrderCommand{CustomerName: "Ana", CustomerEmail: "ana@example.com", Items: items}
}

func lowStockAlerts(r *brokertest.Recorder) []events.LowStockAlert {
	var out []events.LowStockAlert
	for _, e := range r.OfType(events.TypeLowStockAlert) {
		out = append(out, e.(events.LowStockAlert))
	}
	return out
}

var modes = []ReservationMode{ReservationHold, ReservationDirect}

func TestOrderThenCancelRoundTrip(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, mode, warehousetest.Stock{ID: "A", Quantity: 12})

			o, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "A", Quantity: 3}))
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, o.Status)
			assert.Equal(t, "30.00", o.TotalAmount.StringFixed(2))
			assert.Equal(t, 9, e.wh.Quantity(t, "A"))

			alerts := lowStockAlerts(e.wh.Events)
			require.Len(t, alerts, 1)
			assert.Equal(t, "A", alerts[0].ProductID)
			assert.Equal(t, 9, alerts[0].CurrentStock)
			assert.Equal(t, 10, alerts[0].Threshold)
			require.Len(t, e.published.OfType(events.TypeOrderCreated), 1)

			rec, err := e.sagas.GetLatest(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, sagalog.StatusCompleted, rec.Status)
			assert.Equal(t, sagalog.ItemCommitted, rec.Items[0].State)

			ok, err := e.f.CancelOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 12, e.wh.Quantity(t, "A"))
			assert.Len(t, lowStockAlerts(e.wh.Events), 1)

			got, err := e.f.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCancelled, got.Status)

			changed := e.published.OfType(events.TypeOrderStatusChanged)
			require.Len(t, changed, 1)
			assert.Equal(t, events.OrderStatusChanged{
				OrderID: o.ID, OldStatus: "PENDING", NewStatus: "CANCELLED", Timestamp: changed[0].(events.OrderStatusChanged).Timestamp,
			}, changed[0])

			// A second cancel is refused and changes nothing.
			ok, err = e.f.CancelOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 12, e.wh.Quantity(t, "A"))
		})
	}
}

func TestInsufficientStockMutatesNothing(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, mode, warehousetest.Stock{ID: "B", Quantity: 2}, warehousetest.Stock{ID: "C", Quantity: 10})

			_, err := e.f.CreateOrder(ctx, order(
				ItemRequest{ProductID: "C", Quantity: 1},
				ItemRequest{ProductID: "B", Quantity: 5},
			))
			var insufficient *domain.InsufficientStockError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, "B", insufficient.ProductID)
			assert.Equal(t, 5, insufficient.Requested)

			assert.Equal(t, 10, e.wh.Quantity(t, "C"))
			assert.Equal(t, 2, e.wh.Quantity(t, "B"))
			assert.Empty(t, e.wh.Events.Events())
			assert.Empty(t, e.published.Events())

			all, err := e.f.ListOrders(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestUnknownProductIsRejected(t *testing.T) {
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "A", Quantity: 5})
	_, err := e.f.CreateOrder(context.Background(), order(ItemRequest{ProductID: "nope", Quantity: 1}))
	var nf *domain.ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.ProductID)
	assert.Empty(t, e.wh.Events.Events())
}

func TestInvalidCommandIsRejected(t *testing.T) {
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "A", Quantity: 5})
	var verr *domain.ValidationError

	_, err := e.f.CreateOrder(context.Background(), CreateOrderCommand{CustomerEmail: "x@y", Items: []ItemRequest{{ProductID: "A", Quantity: 1}}})
	assert.ErrorAs(t, err, &verr)
	_, err = e.f.CreateOrder(context.Background(), order(ItemRequest{ProductID: "A", Quantity: 0}))
	assert.ErrorAs(t, err, &verr)
	_, err = e.f.CreateOrder(context.Background(), order())
	assert.ErrorAs(t, err, &verr)
}

func TestDuplicateLinesAreMergedForStock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "A", Quantity: 5})

	_, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "A", Quantity: 3}, ItemRequest{ProductID: "A", Quantity: 3}))
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 6, insufficient.Requested)

	o, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "A", Quantity: 2}, ItemRequest{ProductID: "A", Quantity: 3}))
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, 0, e.wh.Quantity(t, "A"))
}

func TestIdempotencyKeyCreatesOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "A", Quantity: 12})
	cmd := order(ItemRequest{ProductID: "A", Quantity: 3})
	cmd.IdempotencyKey = "checkout-42"

	first, err := e.f.CreateOrder(ctx, cmd)
	require.NoError(t, err)
	second, err := e.f.CreateOrder(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 9, e.wh.Quantity(t, "A"))
	assert.Len(t, e.published.OfType(events.TypeOrderCreated), 1)
}

func TestHoldClosesTheCheckThenActGap(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "A", Quantity: 3})

	// Another buyer takes the stock after validation but before the hold.
	e.stock.beforeHold = func() {
		_, err := e.wh.Ledger.ApplyDelta(ctx, ledger.MutationRequest{ProductID: "A", Quantity: 2, Operation: "SUBTRACT"})
		require.NoError(t, err)
	}

	_, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "A", Quantity: 3}))
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	assert.Equal(t, 1, e.wh.Quantity(t, "A"))
	all, err := e.f.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.True(t, e.wh.Ledger.CheckAvailability(ctx, "A", 1), "failed hold must not keep stock held")
}

func TestPartialReservationIsFinishedByReconciler(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationDirect, warehousetest.Stock{ID: "a", Quantity: 10}, warehousetest.Stock{ID: "b", Quantity: 10})
	outage := &domain.UpstreamUnavailableError{Op: "update stock", Err: errors.New("connection refused")}
	e.stock.setFailDelta(func(m ports.StockMutation) error {
		if m.ProductID == "b" {
			return outage
		}
		return nil
	})

	_, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 2}, ItemRequest{ProductID: "b", Quantity: 4}))
	var upstream *domain.UpstreamUnavailableError
	require.ErrorAs(t, err, &upstream)

	all, err := e.f.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	o := all[0]
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, 8, e.wh.Quantity(t, "a"))
	assert.Equal(t, 10, e.wh.Quantity(t, "b"))

	rec, err := e.sagas.GetLatest(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusFailed, rec.Status)
	assert.Equal(t, []sagalog.ItemStatus{sagalog.ItemCommitted, sagalog.ItemPending}, itemStatesOf(rec))

	e.stock.setFailDelta(nil)
	r := NewReconciler(e.f, e.sagas, time.Minute, time.Second)
	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	assert.Equal(t, 1, r.ReconcileOnce(ctx))

	assert.Equal(t, 8, e.wh.Quantity(t, "a"), "committed item is not debited twice")
	assert.Equal(t, 6, e.wh.Quantity(t, "b"))
	rec, err = e.sagas.GetLatest(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusCompleted, rec.Status)
	assert.Len(t, e.published.OfType(events.TypeOrderCreated), 1)

	assert.Equal(t, 0, r.ReconcileOnce(ctx))
}

func TestCancelRestoresOnlyDebitedItems(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationDirect, warehousetest.Stock{ID: "a", Quantity: 10}, warehousetest.Stock{ID: "b", Quantity: 10})
	e.stock.setFailDelta(func(m ports.StockMutation) error {
		if m.ProductID == "b" {
			return &domain.UpstreamUnavailableError{Op: "update stock", Err: errors.New("timeout")}
		}
		return nil
	})
	_, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 2}, ItemRequest{ProductID: "b", Quantity: 4}))
	require.Error(t, err)
	e.stock.setFailDelta(nil)

	all, err := e.f.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	ok, err := e.f.CancelOrder(ctx, all[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, e.wh.Quantity(t, "a"))
	assert.Equal(t, 10, e.wh.Quantity(t, "b"))

	// The create saga is closed so the reconciler leaves the order alone.
	rec, err := e.sagas.GetLatest(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusCompensated, rec.Status)
}

func TestCancelRestoresDebitWhoseResponseWasLost(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, mode, warehousetest.Stock{ID: "a", Quantity: 10}, warehousetest.Stock{ID: "b", Quantity: 10})
			e.stock.setLostResponse(func(productID string) bool { return productID == "b" })

			_, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 2}, ItemRequest{ProductID: "b", Quantity: 4}))
			var upstream *domain.UpstreamUnavailableError
			require.ErrorAs(t, err, &upstream)
			assert.Equal(t, 8, e.wh.Quantity(t, "a"))
			assert.Equal(t, 6, e.wh.Quantity(t, "b"), "the warehouse applied the debit")
			e.stock.setLostResponse(nil)

			all, err := e.f.ListOrders(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			rec, err := e.sagas.GetLatest(ctx, all[0].ID)
			require.NoError(t, err)
			assert.NotEqual(t, sagalog.ItemCommitted, rec.Items[1].State)

			ok, err := e.f.CancelOrder(ctx, all[0].ID)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 10, e.wh.Quantity(t, "a"))
			assert.Equal(t, 10, e.wh.Quantity(t, "b"))

			cancelRec, err := e.sagas.GetLatest(ctx, sagalog.CancelSagaID(all[0].ID))
			require.NoError(t, err)
			assert.Equal(t, []sagalog.ItemStatus{sagalog.ItemRestored, sagalog.ItemRestored}, itemStatesOf(cancelRec))

			rec, err = e.sagas.GetLatest(ctx, all[0].ID)
			require.NoError(t, err)
			assert.Equal(t, sagalog.StatusCompensated, rec.Status)
		})
	}
}

func TestCancelWaitsForUnsettledDebit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationDirect, warehousetest.Stock{ID: "a", Quantity: 10}, warehousetest.Stock{ID: "b", Quantity: 10})
	outage := &domain.UpstreamUnavailableError{Op: "update stock", Err: errors.New("connection refused")}
	e.stock.setFailDelta(func(m ports.StockMutation) error {
		if m.ProductID == "b" {
			return outage
		}
		return nil
	})

	_, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 2}, ItemRequest{ProductID: "b", Quantity: 4}))
	require.Error(t, err)
	all, err := e.f.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// Whether b was debited is unknown while the warehouse is down.
	ok, err := e.f.CancelOrder(ctx, all[0].ID)
	require.ErrorIs(t, err, outage)
	assert.False(t, ok)
	got, err := e.f.GetOrder(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 8, e.wh.Quantity(t, "a"))

	e.stock.setFailDelta(nil)
	ok, err = e.f.CancelOrder(ctx, all[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, e.wh.Quantity(t, "a"))
	assert.Equal(t, 10, e.wh.Quantity(t, "b"))
}

func TestConcurrentCreateWithSameKeyReturnsWinner(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, mode, warehousetest.Stock{ID: "A", Quantity: 12})
			cmd := order(ItemRequest{ProductID: "A", Quantity: 3})
			cmd.IdempotencyKey = "checkout-7"

			first, err := e.f.CreateOrder(ctx, cmd)
			require.NoError(t, err)

			// The second request looked the key up before the first one
			// saved its order.
			e.f.orders = &staleKeyLookup{OrderRepository: e.orders, misses: 1}
			second, err := e.f.CreateOrder(ctx, cmd)
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, 9, e.wh.Quantity(t, "A"))
			assert.True(t, e.wh.Ledger.CheckAvailability(ctx, "A", 9), "losing create must not keep stock held")
			all, err := e.f.ListOrders(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
			assert.Len(t, e.published.OfType(events.TypeOrderCreated), 1)
		})
	}
}

// staleKeyLookup misses the first idempotency key lookups.
type staleKeyLookup struct {
	ports.OrderRepository
	misses int
}

func (r *staleKeyLookup) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	if r.misses > 0 {
		r.misses--
		return nil, domain.ErrOrderNotFound
	}
	return r.OrderRepository.FindByIdempotencyKey(ctx, key)
}

func TestFailedRestoreKeepsStatusAndRetriesRemainder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "a", Quantity: 10}, warehousetest.Stock{ID: "b", Quantity: 10})
	o, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 1}, ItemRequest{ProductID: "b", Quantity: 2}))
	require.NoError(t, err)

	e.stock.setFailDelta(func(m ports.StockMutation) error {
		if m.ProductID == "b" && m.Operation == "ADD" {
			return &domain.UpstreamUnavailableError{Op: "update stock", Err: errors.New("timeout")}
		}
		return nil
	})
	ok, err := e.f.CancelOrder(ctx, o.ID)
	require.Error(t, err)
	assert.False(t, ok)

	got, err := e.f.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 10, e.wh.Quantity(t, "a"))
	assert.Equal(t, 8, e.wh.Quantity(t, "b"))

	e.stock.setFailDelta(nil)
	ok, err = e.f.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, e.wh.Quantity(t, "a"), "restored item is not added twice")
	assert.Equal(t, 10, e.wh.Quantity(t, "b"))
}

func TestCancelGuards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "a", Quantity: 10})

	_, err := e.f.CancelOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	o, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 4}))
	require.NoError(t, err)
	_, err = e.f.UpdateStatus(ctx, o.ID, domain.StatusShipped)
	require.NoError(t, err)

	ok, err := e.f.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 6, e.wh.Quantity(t, "a"))
}

func TestPublishFailureStillCommitsOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "a", Quantity: 10})
	e.published.Fail(errors.New("broker down"))

	o, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 1}))
	var pe *events.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, events.TypeOrderCreated, pe.Type)
	require.NotNil(t, o)

	stored, err := e.f.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 9, e.wh.Quantity(t, "a"))

	rec, err := e.sagas.GetLatest(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusCompleted, rec.Status)
}

func TestReconcilerReleasesHoldOfAbandonedOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "a", Quantity: 5})

	// A crash right after the hold: the saga log has the hold, there is no
	// order row.
	require.NoError(t, e.stock.Hold(ctx, "o-crashed", []domain.StockLine{{ProductID: "a", Quantity: 5}}, time.Hour))
	rec := sagalog.NewRecord("o-crashed", sagalog.KindCreateOrder, "o-crashed", string(ReservationHold),
		[]sagalog.ItemState{{ProductID: "a", Quantity: 5, State: sagalog.ItemHeld}})
	rec.Status = sagalog.StatusStepDone
	rec.CurrentStep = stepHoldStock
	require.NoError(t, e.sagas.Save(ctx, rec))
	require.False(t, e.wh.Ledger.CheckAvailability(ctx, "a", 1))

	r := NewReconciler(e.f, e.sagas, time.Minute, time.Second)
	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, r.ReconcileOnce(ctx))

	assert.True(t, e.wh.Ledger.CheckAvailability(ctx, "a", 5))
	assert.Equal(t, 5, e.wh.Quantity(t, "a"))
	got, err := e.sagas.GetLatest(ctx, "o-crashed")
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusCompensated, got.Status)
	assert.Equal(t, sagalog.ItemReleased, got.Items[0].State)
}

func TestUpdateStatusIsUnconditional(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ReservationHold, warehousetest.Stock{ID: "a", Quantity: 10})
	o, err := e.f.CreateOrder(ctx, order(ItemRequest{ProductID: "a", Quantity: 1}))
	require.NoError(t, err)

	_, err = e.f.UpdateStatus(ctx, o.ID, domain.StatusDelivered)
	require.NoError(t, err)
	got, err := e.f.UpdateStatus(ctx, o.ID, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	changed := e.published.OfType(events.TypeOrderStatusChanged)
	require.Len(t, changed, 2)
	assert.Equal(t, "DELIVERED", changed[1].(events.OrderStatusChanged).OldStatus)

	_, err = e.f.UpdateStatus(ctx, "missing", domain.StatusShipped)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func itemStatesOf(rec *sagalog.Record) []sagalog.ItemStatus {
	out := make([]sagalog.ItemStatus, len(rec.Items))
	for i, it := range rec.Items {
		out[i] = it.State
	}
	return out
}
