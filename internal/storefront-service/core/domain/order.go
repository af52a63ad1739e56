package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// ParseStatus accepts any case.
func ParseStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown status " + s}
}

// Terminal statuses have no outbound transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// OrderItem is a snapshot of the product at order time. Later price changes
// do not touch it.
type OrderItem struct {
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	LineTotal   decimal.Decimal
}

func NewOrderItem(p Product, quantity int) OrderItem {
	return OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		Quantity:    quantity,
		LineTotal:   p.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

type Order struct {
	ID            string
	CustomerName  string
	CustomerEmail string
	Items         []OrderItem
	TotalAmount   decimal.Decimal
	Status        OrderStatus
	// IdempotencyKey is the client key the order was created with, if any.
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder builds a PENDING order and computes its total from the items.
func NewOrder(id, customerName, customerEmail string, items []OrderItem, now time.Time) (*Order, error) {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal)
	}
	o := &Order{
		ID:            id,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Items:         items,
		TotalAmount:   total,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the order invariants, the total among them.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.CustomerName) == "" {
		return &ValidationError{Field: "customerName", Reason: "is required"}
	}
	if strings.TrimSpace(o.CustomerEmail) == "" {
		return &ValidationError{Field: "customerEmail", Reason: "is required"}
	}
	if len(o.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	sum := decimal.Zero
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return &ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		if !it.LineTotal.Equal(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))) {
			return &ValidationError{Field: "lineTotal", Reason: "does not match unit price times quantity"}
		}
		sum = sum.Add(it.LineTotal)
	}
	if !sum.Equal(o.TotalAmount) {
		return &ValidationError{Field: "totalAmount", Reason: "does not match the sum of line totals"}
	}
	return nil
}

func (o *Order) CanCancel() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

// Cancel moves a PENDING or CONFIRMED order to CANCELLED.
func (o *Order) Cancel(now time.Time) (OrderStatus, error) {
	if !o.CanCancel() {
		return o.Status, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusCancelled}
	}
	return o.SetStatus(StatusCancelled, now), nil
}

// SetStatus changes the status without any transition check and returns the
// previous one.
func (o *Order) SetStatus(s OrderStatus, now time.Time) OrderStatus {
	old := o.Status
	o.Status = s
	o.UpdatedAt = now
	return old
}

// StockLine is the total quantity of one product across an order's items.
type StockLine struct {
	ProductID string
	Quantity  int
}

// StockLines merges items per product, keeping first-seen order.
func (o *Order) StockLines() []StockLine {
	return MergeLines(o.Items)
}

func MergeLines(items []OrderItem) []StockLine {
	idx := make(map[string]int, len(items))
	var out []StockLine
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
