// Package sagalog defines the durable record kept for every saga execution.
//
// A record is appended on every state transition. It serves two purposes:
//
//  1. Observability: the latest row tells where a saga is (or was) and
//     correlates it with a distributed trace via the trace_id field.
//
//  2. Recovery: the storefront reconciler reads in-flight records and
//     resumes or compensates sagas interrupted by a crash or an upstream
//     failure.
package sagalog

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("sagalog: saga not found")

// Kind identifies which orchestration produced the record.
type Kind string

const (
	KindCreateOrder Kind = "CREATE_ORDER"
	KindCancelOrder Kind = "CANCEL_ORDER"
)

// Status represents the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	// StatusAborted means the saga failed before any step had an effect.
	StatusAborted Status = "ABORTED"
	// StatusFailed means the saga stopped with effects that still need
	// finishing or undoing. The reconciler picks these up.
	StatusFailed Status = "FAILED"
)

// Terminal reports whether no further work is expected for the saga.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompensated, StatusAborted:
		return true
	}
	return false
}

// ItemStatus tracks the stock effect of one product line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemHeld      ItemStatus = "HELD"
	ItemCommitted ItemStatus = "COMMITTED"
	ItemRestored  ItemStatus = "RESTORED"
	ItemReleased  ItemStatus = "RELEASED"
)

type ItemState struct {
	ProductID string     `json:"productId"`
	Quantity  int        `json:"quantity"`
	State     ItemStatus `json:"state"`
}

// Record is a point-in-time snapshot of a saga execution. One row is
// appended per transition; the newest row per SagaID is the current state.
type Record struct {
	// SagaID is the order id for create sagas and "cancel:<order id>" for
	// cancel sagas.
	SagaID  string
	Kind    Kind
	OrderID string

	Status      Status
	CurrentStep string

	// Mode is the reservation mode the saga ran with ("hold" or "direct").
	Mode string

	// PastPivot is set once the pivot step succeeded. From then on the saga
	// is only ever driven forward.
	PastPivot bool

	Items []ItemState

	// Payload is saga-specific JSON input, e.g. the status an order had
	// before a cancel saga started.
	Payload string

	// Errors accumulates failure details, one per failed step or
	// compensation.
	Errors []string

	TraceID string
	SpanID  string

	UpdatedAt time.Time
}

func NewRecord(sagaID string, kind Kind, orderID, mode string, items []ItemState) *Record {
	return &Record{
		SagaID:  sagaID,
		Kind:    kind,
		OrderID: orderID,
		Mode:    mode,
		Items:   items,
	}
}

// CancelSagaID is the saga id used for cancelling orderID.
func CancelSagaID(orderID string) string {
	return "cancel:" + orderID
}

// Clone returns a deep copy safe to keep after the saga moves on.
func (r *Record) Clone() *Record {
	c := *r
	c.Items = append([]ItemState(nil), r.Items...)
	c.Errors = append([]string(nil), r.Errors...)
	return &c
}

// ItemsIn returns the indexes of items currently in one of states.
func (r *Record) ItemsIn(states ...ItemStatus) []int {
	var idx []int
	for i, it := range r.Items {
		for _, s := range states {
			if it.State == s {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}
