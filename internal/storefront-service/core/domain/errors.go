package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrHoldNotFound means the warehouse has no live hold for the line,
	// because it expired or was never placed.
	ErrHoldNotFound = errors.New("stock hold not found")
	// ErrDuplicateIdempotencyKey is returned by Save when another order
	// already carries the same idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return "product not found: " + e.ProductID
}

type InsufficientStockError struct {
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product ID: %s (requested %d)", e.ProductID, e.Requested)
}

type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// UpstreamUnavailableError wraps a timeout, transport failure or 5xx from
// the warehouse. The call may be retried.
type UpstreamUnavailableError struct {
	Op  string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("warehouse unavailable during %s: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}
