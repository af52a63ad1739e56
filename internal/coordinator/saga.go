package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator")

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

type pivotStep struct {
	Step
}

// Pivot marks s as the saga's point of no return. Once it succeeds, later
// failures leave the saga FAILED for the reconciler instead of rolling back.
func Pivot(s Step) Step {
	return pivotStep{Step: s}
}

func isPivot(s Step) bool {
	_, ok := s.(pivotStep)
	return ok
}

// Orchestrator manages the execution of a collection of Steps and appends
// every transition to the saga log.
type Orchestrator struct {
	steps  []Step
	repo   sagalog.Repository
	record *sagalog.Record
}

func NewOrchestrator(repo sagalog.Repository, record *sagalog.Record, steps []Step) *Orchestrator {
	return &Orchestrator{steps: steps, repo: repo, record: record}
}

// Checkpoint appends the current record to the log. Steps that update item
// states on the record call it to persist progress within a step.
func (o *Orchestrator) Checkpoint(ctx context.Context) error {
	o.record.Stamp(ctx)
	if err := o.repo.Save(ctx, o.record); err != nil {
		slog.ErrorContext(ctx, "saga log write failed", "saga_id", o.record.SagaID, "error", err)
		return err
	}
	return nil
}

// Start runs the saga steps sequentially.
// If a step fails before the pivot, previously successful steps are
// compensated in LIFO order. After the pivot nothing is compensated.
// A record that already has a status is resumed rather than restarted.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "saga "+string(o.record.Kind))
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.id", o.record.SagaID),
		attribute.String("order.id", o.record.OrderID),
	)

	log := slog.With("saga_id", o.record.SagaID, "kind", o.record.Kind)

	if o.record.Status == "" {
		o.record.Status = sagalog.StatusStarted
		if err := o.Checkpoint(ctx); err != nil {
			return fmt.Errorf("coordinator: start saga %s: %w", o.record.SagaID, err)
		}
	} else {
		log.InfoContext(ctx, "resuming saga", "status", o.record.Status, "step", o.record.CurrentStep)
	}

	var successfulSteps []Step

	for _, step := range o.steps {
		log.DebugContext(ctx, "executing step", "step", step.Name())
		if err := o.execute(ctx, step); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.record.CurrentStep = step.Name()
			o.record.Errors = append(o.record.Errors, fmt.Sprintf("%s: %v", step.Name(), err))

			if o.record.PastPivot {
				log.ErrorContext(ctx, "step failed after pivot, leaving saga for reconciliation", "step", step.Name(), "error", err)
				o.record.Status = sagalog.StatusFailed
				_ = o.Checkpoint(ctx)
				return err
			}

			if len(successfulSteps) == 0 {
				log.InfoContext(ctx, "saga aborted", "step", step.Name(), "error", err)
				o.record.Status = sagalog.StatusAborted
				_ = o.Checkpoint(ctx)
				return err
			}

			log.WarnContext(ctx, "step failed, starting rollback", "step", step.Name(), "error", err)
			o.record.Status = sagalog.StatusCompensating
			_ = o.Checkpoint(ctx)
			o.rollback(ctx, successfulSteps)
			return err
		}

		// Track successful step for potential compensation (LIFO)
		successfulSteps = append(successfulSteps, step)
		o.record.CurrentStep = step.Name()
		o.record.Status = sagalog.StatusStepDone
		if isPivot(step) {
			o.record.PastPivot = true
		}
		_ = o.Checkpoint(ctx)
	}

	o.record.Status = sagalog.StatusCompleted
	_ = o.Checkpoint(ctx)
	log.InfoContext(ctx, "saga completed")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := tracer.Start(ctx, step.Name())
	defer span.End()
	err := step.Execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) {
	var failed []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		slog.InfoContext(ctx, "compensating step", "saga_id", o.record.SagaID, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to compensate step", "saga_id", o.record.SagaID, "step", step.Name(), "error", err)
			o.record.Errors = append(o.record.Errors, fmt.Sprintf("compensate %s: %v", step.Name(), err))
			failed = append(failed, err)
		}
	}

	if len(failed) > 0 {
		o.record.Status = sagalog.StatusFailed
		_ = o.Checkpoint(ctx)
		return
	}
	o.record.Status = sagalog.StatusCompensated
	_ = o.Checkpoint(ctx)
}

// StepFunc adapts plain functions to Step. A nil compensate is a no-op.
type StepFunc struct {
	StepName     string
	ExecuteFn    func(ctx context.Context) error
	CompensateFn func(ctx context.Context) error
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Execute(ctx context.Context) error {
	if s.ExecuteFn == nil {
		return errors.New("coordinator: step " + s.StepName + " has no execute function")
	}
	return s.ExecuteFn(ctx)
}

func (s StepFunc) Compensate(ctx context.Context) error {
	if s.CompensateFn == nil {
		return nil
	}
	return s.CompensateFn(ctx)
}
