package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
)

const (
	stepHoldStock      = "hold_stock"
	stepPersistOrder   = "persist_order"
	stepReserveStock   = "reserve_stock"
	stepPublishCreated = "publish_order_created"
	stepOrderCancelled = "order_cancelled"
	stepReleaseHolds   = "release_holds"
)

// createSaga carries one order through the create steps. The record is
// shared with the orchestrator so per-item progress is checkpointed with it.
type createSaga struct {
	f          *Fulfillment
	order      *domain.Order
	rec        *sagalog.Record
	o          *coordinator.Orchestrator
	publishErr error
}

func (f *Fulfillment) newCreateSaga(order *domain.Order, rec *sagalog.Record) *createSaga {
	s := &createSaga{f: f, order: order, rec: rec}
	s.o = coordinator.NewOrchestrator(f.sagas, rec, s.steps())
	return s
}

// steps skips what a resumed saga already did before the pivot.
func (s *createSaga) steps() []coordinator.Step {
	var steps []coordinator.Step
	if !s.rec.PastPivot {
		if s.mode() == ReservationHold {
			steps = append(steps, coordinator.StepFunc{StepName: stepHoldStock, ExecuteFn: s.hold, CompensateFn: s.release})
		}
		steps = append(steps, coordinator.Pivot(coordinator.StepFunc{StepName: stepPersistOrder, ExecuteFn: s.persist}))
	}
	return append(steps,
		coordinator.StepFunc{StepName: stepReserveStock, ExecuteFn: s.reserve},
		coordinator.StepFunc{StepName: stepPublishCreated, ExecuteFn: s.publish},
	)
}

func (s *createSaga) mode() ReservationMode {
	return ReservationMode(s.rec.Mode)
}

func (s *createSaga) hold(ctx context.Context) error {
	lines := make([]domain.StockLine, len(s.rec.Items))
	for i, it := range s.rec.Items {
		lines[i] = domain.StockLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	if err := s.f.stock.Hold(ctx, s.order.ID, lines, s.f.holdTTL); err != nil {
		// A timed out call may still have placed the hold.
		if relErr := s.f.stock.Release(ctx, s.order.ID); relErr != nil {
			slog.WarnContext(ctx, "release after failed hold", "order_id", s.order.ID, "error", relErr)
		}
		return err
	}
	setItems(s.rec, sagalog.ItemHeld, sagalog.ItemPending)
	return nil
}

func (s *createSaga) release(ctx context.Context) error {
	if err := s.f.stock.Release(ctx, s.order.ID); err != nil {
		return err
	}
	setItems(s.rec, sagalog.ItemReleased, sagalog.ItemHeld)
	return nil
}

func (s *createSaga) persist(ctx context.Context) error {
	if err := s.f.orders.Save(ctx, s.order); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// reserve debits every item not yet committed, checkpointing after each so
// a retry never debits the same line twice.
func (s *createSaga) reserve(ctx context.Context) error {
	for i := range s.rec.Items {
		it := &s.rec.Items[i]
		if it.State == sagalog.ItemCommitted {
			continue
		}
		lvl, err := s.debit(ctx, *it)
		if err != nil {
			return fmt.Errorf("reserve %s: %w", it.ProductID, err)
		}
		it.State = sagalog.ItemCommitted
		_ = s.o.Checkpoint(ctx)
		slog.DebugContext(ctx, "stock reserved",
			"order_id", s.order.ID,
			"product_id", it.ProductID,
			"previous", lvl.Previous,
			"current", lvl.Current,
		)
	}
	return nil
}

func (s *createSaga) debit(ctx context.Context, it sagalog.ItemState) (ports.StockLevel, error) {
	if s.mode() == ReservationHold {
		lvl, err := s.f.stock.Commit(ctx, s.order.ID, it.ProductID)
		if !errors.Is(err, domain.ErrHoldNotFound) {
			return lvl, err
		}
		// Expired or lost hold. The mutation id is the one the warehouse
		// uses for the commit, so an already committed line is not debited
		// again.
		slog.WarnContext(ctx, "hold gone, subtracting directly", "order_id", s.order.ID, "product_id", it.ProductID)
		return s.f.stock.ApplyDelta(ctx, ports.StockMutation{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Operation:  "SUBTRACT",
			MutationID: s.order.ID + ":" + it.ProductID + ":commit",
		})
	}
	return s.f.stock.ApplyDelta(ctx, ports.StockMutation{
		ProductID:  it.ProductID,
		Quantity:   it.Quantity,
		Operation:  "SUBTRACT",
		MutationID: s.order.ID + ":" + it.ProductID + ":subtract",
	})
}

// publish never fails the saga: the order is already committed.
func (s *createSaga) publish(ctx context.Context) error {
	if err := s.f.publisher.Publish(ctx, orderCreatedEvent(s.order)); err != nil {
		slog.ErrorContext(ctx, "order-created not published", "order_id", s.order.ID, "error", err)
		s.publishErr = err
	}
	return nil
}

func orderCreatedEvent(o *domain.Order) events.OrderCreated {
	items := make([]events.OrderItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = events.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.LineTotal,
		}
	}
	return events.OrderCreated{
		OrderID:       o.ID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		TotalAmount:   o.TotalAmount,
		Items:         items,
		Timestamp:     o.CreatedAt,
	}
}
