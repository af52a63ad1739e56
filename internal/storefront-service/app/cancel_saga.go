package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
)

const (
	stepRestoreStock   = "restore_stock"
	stepCancelOrder    = "cancel_order"
	stepPublishChanged = "publish_status_changed"
	stepCloseCreate    = "close_create_saga"
)

// cancelPayload is stored on the cancel record. Token scopes the restore
// mutation ids to one cancellation, so an order cancelled again after a
// manual status change is restored again.
type cancelPayload struct {
	OldStatus domain.OrderStatus `json:"oldStatus"`
	Token     string             `json:"token"`
}

type cancelSaga struct {
	f          *Fulfillment
	order      *domain.Order
	rec        *sagalog.Record
	payload    cancelPayload
	o          *coordinator.Orchestrator
	publishErr error
}

// newCancelRecord lists the items the create saga actually debited. An
// order without a create record predates the log and counts as fully
// debited. A create saga still in flight is settled first.
func (f *Fulfillment) newCancelRecord(ctx context.Context, order *domain.Order) (*sagalog.Record, error) {
	mode := string(f.mode)
	var items []sagalog.ItemState

	createRec, err := f.sagas.GetLatest(ctx, order.ID)
	switch {
	case err == nil:
		mode = createRec.Mode
		if !createRec.Status.Terminal() {
			if err := f.settleDebits(ctx, order, createRec); err != nil {
				return nil, fmt.Errorf("app: settle stock of order %s: %w", order.ID, err)
			}
		}
		for _, i := range createRec.ItemsIn(sagalog.ItemCommitted) {
			items = append(items, createRec.Items[i])
		}
	case errors.Is(err, sagalog.ErrNotFound):
		items = itemStates(order.StockLines(), sagalog.ItemCommitted)
	default:
		return nil, fmt.Errorf("app: load create saga: %w", err)
	}

	payload, err := json.Marshal(cancelPayload{OldStatus: order.Status, Token: uuid.NewString()})
	if err != nil {
		return nil, err
	}

	rec := sagalog.NewRecord(sagalog.CancelSagaID(order.ID), sagalog.KindCancelOrder, order.ID, mode, items)
	// Cancellation only moves forward; a failed step is retried, never undone.
	rec.PastPivot = true
	rec.Payload = string(payload)
	return rec, nil
}

// settleDebits replays the debit of every item the create saga has not
// recorded as committed. A debit whose response was lost may still have
// landed; the replay carries the same mutation id, so the warehouse either
// applies it now or returns the earlier result. Afterwards every item is
// debited exactly once and can be restored.
func (f *Fulfillment) settleDebits(ctx context.Context, order *domain.Order, createRec *sagalog.Record) error {
	if len(createRec.ItemsIn(sagalog.ItemPending, sagalog.ItemHeld)) == 0 {
		return nil
	}
	// The order row exists, so the create saga is past its pivot.
	createRec.PastPivot = true
	slog.InfoContext(ctx, "settling in-flight debits before cancel", "order_id", order.ID)
	return f.newCreateSaga(order, createRec).reserve(ctx)
}

func (f *Fulfillment) newCancelSaga(order *domain.Order, rec *sagalog.Record) (*cancelSaga, error) {
	s := &cancelSaga{f: f, order: order, rec: rec}
	if err := json.Unmarshal([]byte(rec.Payload), &s.payload); err != nil {
		return nil, fmt.Errorf("app: decode cancel payload of %s: %w", rec.SagaID, err)
	}
	s.o = coordinator.NewOrchestrator(f.sagas, rec, []coordinator.Step{
		coordinator.StepFunc{StepName: stepRestoreStock, ExecuteFn: s.restore},
		coordinator.StepFunc{StepName: stepReleaseHolds, ExecuteFn: s.releaseHolds},
		coordinator.StepFunc{StepName: stepCancelOrder, ExecuteFn: s.cancel},
		coordinator.StepFunc{StepName: stepPublishChanged, ExecuteFn: s.publish},
		coordinator.StepFunc{StepName: stepCloseCreate, ExecuteFn: s.closeCreate},
	})
	return s, nil
}

func (s *cancelSaga) restore(ctx context.Context) error {
	for i := range s.rec.Items {
		it := &s.rec.Items[i]
		if it.State != sagalog.ItemCommitted {
			continue
		}
		_, err := s.f.stock.ApplyDelta(ctx, ports.StockMutation{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Operation:  "ADD",
			MutationID: fmt.Sprintf("cancel:%s:%s:%s", s.order.ID, s.payload.Token, it.ProductID),
		})
		if err != nil {
			return fmt.Errorf("restore %s: %w", it.ProductID, err)
		}
		it.State = sagalog.ItemRestored
		_ = s.o.Checkpoint(ctx)
	}
	return nil
}

// releaseHolds drops holds a create saga placed but never committed.
func (s *cancelSaga) releaseHolds(ctx context.Context) error {
	if ReservationMode(s.rec.Mode) != ReservationHold {
		return nil
	}
	return s.f.stock.Release(ctx, s.order.ID)
}

func (s *cancelSaga) cancel(ctx context.Context) error {
	if s.order.Status == domain.StatusCancelled {
		return nil
	}
	s.order.SetStatus(domain.StatusCancelled, s.f.now())
	return s.f.orders.Update(ctx, s.order)
}

func (s *cancelSaga) publish(ctx context.Context) error {
	s.publishErr = s.f.publishStatusChanged(ctx, s.order.ID, s.payload.OldStatus, domain.StatusCancelled)
	return nil
}

// closeCreate settles a create saga that was still in flight, so the
// reconciler does not resume it for a cancelled order.
func (s *cancelSaga) closeCreate(ctx context.Context) error {
	createRec, err := s.f.sagas.GetLatest(ctx, s.order.ID)
	if err != nil || createRec.Status.Terminal() {
		return nil
	}
	setItems(createRec, sagalog.ItemReleased, sagalog.ItemHeld, sagalog.ItemPending)
	createRec.Status = sagalog.StatusCompensated
	createRec.CurrentStep = stepOrderCancelled
	if err := s.f.checkpoint(ctx, createRec); err != nil {
		slog.WarnContext(ctx, "create saga left open", "order_id", s.order.ID, "error", err)
	}
	return nil
}
