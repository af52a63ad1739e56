package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	// Version increases on every write.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductDetails are the fields an admin update may change. Stock only moves
// through the ledger.
type ProductDetails struct {
	Name        string
	Description string
	Price       decimal.Decimal
}

func (d ProductDetails) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if d.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

// ProductFilter narrows a catalog listing. Zero values mean no constraint.
type ProductFilter struct {
	// NameContains matches case-insensitively.
	NameContains string
	MinQuantity  *int
	MaxQuantity  *int
}

func (f ProductFilter) Match(p Product) bool {
	if f.NameContains != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	if f.MinQuantity != nil && p.StockQuantity < *f.MinQuantity {
		return false
	}
	if f.MaxQuantity != nil && p.StockQuantity > *f.MaxQuantity {
		return false
	}
	return true
}

type Operation string

const (
	OperationAdd      Operation = "ADD"
	OperationSubtract Operation = "SUBTRACT"
)

// ParseOperation accepts ADD or SUBTRACT in any case.
func ParseOperation(s string) (Operation, error) {
	switch Operation(strings.ToUpper(strings.TrimSpace(s))) {
	case OperationAdd:
		return OperationAdd, nil
	case OperationSubtract:
		return OperationSubtract, nil
	}
	return "", &InvalidOperationError{Operation: s}
}

// Apply returns the resulting quantity and the delta actually applied.
// SUBTRACT floors at zero.
func (o Operation) Apply(current, quantity int) (result, applied int) {
	if o == OperationAdd {
		return current + quantity, quantity
	}
	if quantity > current {
		return 0, current
	}
	return current - quantity, quantity
}
