package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/app")

// Reconciler periodically finishes sagas that stopped half way: a crash
// between steps, a warehouse outage after the order was persisted, or a
// hold that was never released.
type Reconciler struct {
	f        *Fulfillment
	sagas    sagalog.Repository
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

// NewReconciler only touches sagas whose last transition is older than
// grace, leaving live requests alone.
func NewReconciler(f *Fulfillment, sagas sagalog.Repository, interval, grace time.Duration) *Reconciler {
	return &Reconciler{
		f:        f,
		sagas:    sagas,
		interval: interval,
		grace:    grace,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce resumes every stale in-flight saga and returns how many
// reached a terminal state.
func (r *Reconciler) ReconcileOnce(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "reconcile sagas")
	defer span.End()

	recs, err := r.sagas.ListInFlight(ctx, r.now().Add(-r.grace))
	if err != nil {
		slog.ErrorContext(ctx, "list in-flight sagas", "error", err)
		return 0
	}

	settled := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		if err := r.f.Resume(ctx, rec); err != nil {
			slog.WarnContext(ctx, "saga still unresolved", "saga_id", rec.SagaID, "status", rec.Status, "error", err)
			continue
		}
		settled++
	}
	if len(recs) > 0 {
		slog.InfoContext(ctx, "reconciliation pass", "in_flight", len(recs), "settled", settled)
	}
	return settled
}
