package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrVersionConflict is returned by stores when the row changed since it
	// was read.
	ErrVersionConflict = errors.New("product version conflict")
)

type InvalidOperationError struct {
	Operation string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation %q: use ADD or SUBTRACT", e.Operation)
}

// InsufficientStockError is returned when a hold asks for more than is
// available after outstanding holds.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}
