// Package app holds the storefront use cases: placing and cancelling orders
// against the warehouse, order queries, the saga reconciler and the cached
// product catalog.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
)

// ReservationMode selects how stock is taken for a new order.
type ReservationMode string

const (
	// ReservationHold holds stock before the order is persisted and commits
	// the holds afterwards.
	ReservationHold ReservationMode = "hold"
	// ReservationDirect checks availability, persists, then subtracts. The
	// gap between check and subtract is not protected.
	ReservationDirect ReservationMode = "direct"
)

type Options struct {
	Mode    ReservationMode
	HoldTTL time.Duration
}

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type CreateOrderCommand struct {
	CustomerName   string
	CustomerEmail  string
	Items          []ItemRequest
	IdempotencyKey string
}

func (c CreateOrderCommand) validate() error {
	if strings.TrimSpace(c.CustomerName) == "" {
		return &domain.ValidationError{Field: "customerName", Reason: "is required"}
	}
	if strings.TrimSpace(c.CustomerEmail) == "" {
		return &domain.ValidationError{Field: "customerEmail", Reason: "is required"}
	}
	if len(c.Items) == 0 {
		return &domain.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for _, it := range c.Items {
		if it.ProductID == "" {
			return &domain.ValidationError{Field: "productId", Reason: "is required"}
		}
		if it.Quantity <= 0 {
			return &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
		}
	}
	return nil
}

// Fulfillment runs the order sagas. The storefront never touches stock
// except through ports.StockService.
type Fulfillment struct {
	stock     ports.StockService
	orders    ports.OrderRepository
	sagas     sagalog.Repository
	publisher events.Publisher
	mode      ReservationMode
	holdTTL   time.Duration
	locks     *orderLocks
	now       func() time.Time
	newID     func() string
}

func NewFulfillment(
	stock ports.StockService,
	orders ports.OrderRepository,
	sagas sagalog.Repository,
	publisher events.Publisher,
	opts Options,
) *Fulfillment {
	if opts.Mode == "" {
		opts.Mode = ReservationHold
	}
	return &Fulfillment{
		stock:     stock,
		orders:    orders,
		sagas:     sagas,
		publisher: publisher,
		mode:      opts.Mode,
		holdTTL:   opts.HoldTTL,
		locks:     newOrderLocks(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// CreateOrder validates every item against the warehouse, then runs the
// create saga: hold (hold mode), persist PENDING, take stock, publish
// order-created.
//
// Nothing is persisted or debited when validation or the hold fails. After
// the order is persisted failures are not rolled back; the saga is left for
// the reconciler. A publish failure returns the order together with a
// *events.PublishError.
func (f *Fulfillment) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, err := f.orders.FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
		if err == nil {
			slog.InfoContext(ctx, "order already created for idempotency key", "order_id", existing.ID)
			return existing, nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, fmt.Errorf("app: lookup idempotency key: %w", err)
		}
	}

	requested := make([]domain.OrderItem, len(cmd.Items))
	for i, it := range cmd.Items {
		requested[i] = domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	lines := domain.MergeLines(requested)

	products := make(map[string]domain.Product, len(lines))
	for _, line := range lines {
		p, err := f.stock.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		ok, err := f.stock.CheckAvailability(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.InfoContext(ctx, "insufficient stock", "product_id", line.ProductID, "requested", line.Quantity)
			return nil, &domain.InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity}
		}
		products[line.ProductID] = p
	}

	items := make([]domain.OrderItem, len(cmd.Items))
	for i, it := range cmd.Items {
		items[i] = domain.NewOrderItem(products[it.ProductID], it.Quantity)
	}
	order, err := domain.NewOrder(f.newID(), cmd.CustomerName, cmd.CustomerEmail, items, f.now())
	if err != nil {
		return nil, err
	}
	order.IdempotencyKey = cmd.IdempotencyKey

	unlock := f.locks.Lock(order.ID)
	defer unlock()

	rec := sagalog.NewRecord(order.ID, sagalog.KindCreateOrder, order.ID, string(f.mode), itemStates(lines, sagalog.ItemPending))
	saga := f.newCreateSaga(order, rec)
	if err := saga.o.Start(ctx); err != nil {
		if rec.PastPivot {
			return nil, fmt.Errorf("app: order %s left %s: %w", order.ID, order.Status, err)
		}
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// A concurrent create with the same key won; the rollback has
			// released this saga's holds.
			existing, findErr := f.orders.FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
			if findErr != nil {
				return nil, fmt.Errorf("app: lookup idempotency key: %w", findErr)
			}
			slog.InfoContext(ctx, "order already created for idempotency key", "order_id", existing.ID)
			return existing, nil
		}
		return nil, err
	}

	slog.InfoContext(ctx, "order created", "order_id", order.ID, "total", order.TotalAmount.String())
	return order, saga.publishErr
}

// CancelOrder cancels a PENDING or CONFIRMED order. Any other status returns
// false and changes nothing.
//
// Only items that were actually debited are restored. If a restoration
// fails the status stays as it was and the error is returned; a retry, or
// the reconciler, restores only what is left.
func (f *Fulfillment) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	unlock := f.locks.Lock(orderID)
	defer unlock()

	order, err := f.orders.Get(ctx, orderID)
	if err != nil {
		return false, err
	}

	rec, err := f.sagas.GetLatest(ctx, sagalog.CancelSagaID(orderID))
	switch {
	case err == nil && !rec.Status.Terminal():
		slog.InfoContext(ctx, "resuming interrupted cancellation", "order_id", orderID, "status", rec.Status)
	case err == nil || errors.Is(err, sagalog.ErrNotFound):
		if !order.CanCancel() {
			slog.InfoContext(ctx, "order not cancellable", "order_id", orderID, "status", order.Status)
			return false, nil
		}
		if rec, err = f.newCancelRecord(ctx, order); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("app: load cancel saga: %w", err)
	}

	return f.runCancel(ctx, order, rec)
}

func (f *Fulfillment) runCancel(ctx context.Context, order *domain.Order, rec *sagalog.Record) (bool, error) {
	saga, err := f.newCancelSaga(order, rec)
	if err != nil {
		return false, err
	}
	if err := saga.o.Start(ctx); err != nil {
		return false, fmt.Errorf("app: cancel order %s: %w", order.ID, err)
	}
	slog.InfoContext(ctx, "order cancelled", "order_id", order.ID)
	return true, saga.publishErr
}

// UpdateStatus sets any status unconditionally and publishes
// order-status-changed. Only cancellation is guarded.
func (f *Fulfillment) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	unlock := f.locks.Lock(orderID)
	defer unlock()

	order, err := f.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	old := order.SetStatus(status, f.now())
	if err := f.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("app: update order %s: %w", orderID, err)
	}
	slog.InfoContext(ctx, "order status updated", "order_id", orderID, "old_status", old, "new_status", status)

	return order, f.publishStatusChanged(ctx, orderID, old, status)
}

// Resume drives an interrupted saga to a terminal state. The reconciler
// calls it for records that have been in flight for too long.
func (f *Fulfillment) Resume(ctx context.Context, rec *sagalog.Record) error {
	unlock := f.locks.Lock(rec.OrderID)
	defer unlock()

	latest, err := f.sagas.GetLatest(ctx, rec.SagaID)
	if err != nil {
		return fmt.Errorf("app: reload saga %s: %w", rec.SagaID, err)
	}
	if latest.Status.Terminal() {
		return nil
	}

	switch latest.Kind {
	case sagalog.KindCreateOrder:
		return f.resumeCreate(ctx, latest)
	case sagalog.KindCancelOrder:
		order, err := f.orders.Get(ctx, latest.OrderID)
		if err != nil {
			return err
		}
		_, err = f.runCancel(ctx, order, latest)
		return settledDespitePublish(err)
	}
	return fmt.Errorf("app: unknown saga kind %q", latest.Kind)
}

func (f *Fulfillment) resumeCreate(ctx context.Context, rec *sagalog.Record) error {
	order, err := f.orders.Get(ctx, rec.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		if rec.PastPivot {
			return fmt.Errorf("app: order %s missing after persist", rec.OrderID)
		}
		return f.abandonCreate(ctx, rec)
	}
	if err != nil {
		return err
	}

	if order.Status == domain.StatusCancelled {
		rec.Status = sagalog.StatusCompensated
		rec.CurrentStep = stepOrderCancelled
		return f.checkpoint(ctx, rec)
	}

	// The order row exists, so the pivot succeeded even if the log missed it.
	rec.PastPivot = true
	saga := f.newCreateSaga(order, rec)
	if err := saga.o.Start(ctx); err != nil {
		return err
	}
	return settledDespitePublish(saga.publishErr)
}

// settledDespitePublish drops publish failures, which are already logged
// and do not keep a saga open.
func settledDespitePublish(err error) error {
	var pe *events.PublishError
	if errors.As(err, &pe) {
		return nil
	}
	return err
}

// abandonCreate releases the holds of a saga that never persisted its order.
func (f *Fulfillment) abandonCreate(ctx context.Context, rec *sagalog.Record) error {
	if ReservationMode(rec.Mode) == ReservationHold {
		if err := f.stock.Release(ctx, rec.OrderID); err != nil {
			return err
		}
	}
	setItems(rec, sagalog.ItemReleased, sagalog.ItemHeld)
	rec.Status = sagalog.StatusCompensated
	rec.CurrentStep = stepReleaseHolds
	slog.InfoContext(ctx, "abandoned order creation compensated", "order_id", rec.OrderID)
	return f.checkpoint(ctx, rec)
}

func (f *Fulfillment) checkpoint(ctx context.Context, rec *sagalog.Record) error {
	rec.Stamp(ctx)
	if err := f.sagas.Save(ctx, rec); err != nil {
		return fmt.Errorf("app: save saga %s: %w", rec.SagaID, err)
	}
	return nil
}

func (f *Fulfillment) publishStatusChanged(ctx context.Context, orderID string, old, status domain.OrderStatus) error {
	err := f.publisher.Publish(ctx, events.OrderStatusChanged{
		OrderID:   orderID,
		OldStatus: string(old),
		NewStatus: string(status),
		Timestamp: f.now(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "order-status-changed not published", "order_id", orderID, "error", err)
	}
	return err
}

func itemStates(lines []domain.StockLine, state sagalog.ItemStatus) []sagalog.ItemState {
	out := make([]sagalog.ItemState, len(lines))
	for i, l := range lines {
		out[i] = sagalog.ItemState{ProductID: l.ProductID, Quantity: l.Quantity, State: state}
	}
	return out
}

// setItems moves every item currently in one of from to state.
func setItems(rec *sagalog.Record, state sagalog.ItemStatus, from ...sagalog.ItemStatus) {
	for _, i := range rec.ItemsIn(from...) {
		rec.Items[i].State = state
	}
}
