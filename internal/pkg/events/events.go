// Package events defines the closed set of domain events exchanged between the
// storefront and the warehouse, the envelope they travel in, and the broker
// topology that routes them.
//
// Producers and consumers share these types by contract: a consumer only
// accepts the (type, version) pairs listed in Decode.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the discriminator carried in every envelope.
type Type string

const (
	TypeOrderCreated       Type = "order-created"
	TypeOrderStatusChanged Type = "order-status-changed"
	TypeStockChanged       Type = "stock-changed"
	TypeLowStockAlert      Type = "low-stock-alert"
)

// Event is implemented by every payload type in this package.
type Event interface {
	EventType() Type
	SchemaVersion() int
	Exchange() string
	RoutingKey() string
}

// Publisher sends events to the broker. Implementations must not block on
// subscriber processing.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublishError reports that an event could not be handed to the broker.
// Whatever state change produced the event is already committed.
type PublishError struct {
	Type       Type
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s): %v", e.Type, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// StockChanged is emitted by the warehouse after every successful mutation.
type StockChanged struct {
	ProductID        string    `json:"productId"`
	ProductName      string    `json:"productName"`
	PreviousQuantity int       `json:"previousQuantity"`
	CurrentQuantity  int       `json:"currentQuantity"`
	Quantity         int       `json:"quantity"`
	Applied          int       `json:"applied"`
	Operation        string    `json:"operation"`
	ProductVersion   int64     `json:"productVersion"`
	Timestamp        time.Time `json:"timestamp"`
}

func (StockChanged) EventType() Type    { return TypeStockChanged }
func (StockChanged) SchemaVersion() int { return 1 }
func (StockChanged) Exchange() string   { return WarehouseExchange }
func (StockChanged) RoutingKey() string { return RoutingStockChanged }

// LowStockAlert is emitted when a mutation leaves a product at or below the
// configured threshold.
type LowStockAlert struct {
	ProductID    string    `json:"productId"`
	ProductName  string    `json:"productName"`
	CurrentStock int       `json:"currentStock"`
	Threshold    int       `json:"threshold"`
	Timestamp    time.Time `json:"timestamp"`
}

func (LowStockAlert) EventType() Type    { return TypeLowStockAlert }
func (LowStockAlert) SchemaVersion() int { return 1 }
func (LowStockAlert) Exchange() string   { return WarehouseExchange }
func (LowStockAlert) RoutingKey() string { return RoutingLowStockAlert }

// OrderItem is the snapshot of an order line carried by OrderCreated.
type OrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

// OrderCreated is emitted once the order is persisted and its stock debited.
type OrderCreated struct {
	OrderID       string          `json:"orderId"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Items         []OrderItem     `json:"items"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (OrderCreated) EventType() Type    { return TypeOrderCreated }
func (OrderCreated) SchemaVersion() int { return 1 }
func (OrderCreated) Exchange() string   { return OrderExchange }
func (OrderCreated) RoutingKey() string { return RoutingOrderCreated }

// OrderStatusChanged is emitted on every persisted status transition.
type OrderStatusChanged struct {
	OrderID   string    `json:"orderId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderStatusChanged) EventType() Type    { return TypeOrderStatusChanged }
func (OrderStatusChanged) SchemaVersion() int { return 1 }
func (OrderStatusChanged) Exchange() string   { return OrderExchange }
func (OrderStatusChanged) RoutingKey() string { return RoutingOrderStatusChanged }
