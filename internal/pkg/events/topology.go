package events

// Exchanges, one per producing domain. Both are durable topic exchanges.
const (
	OrderExchange     = "order.exchange"
	WarehouseExchange = "warehouse.exchange"
)

// Routing keys.
const (
	RoutingOrderCreated       = "order.created"
	RoutingOrderStatusChanged = "order.status.update"
	RoutingStockChanged       = "stock.update"
	RoutingLowStockAlert      = "stock.low"
)

// Durable queues, exactly one per event type.
const (
	QueueOrderCreated       = "order.created.queue"
	QueueOrderStatusChanged = "order.status.update.queue"
	QueueStockChanged       = "stock.update.queue"
	QueueLowStockAlert      = "low.stock.alert.queue"
)

// Binding ties a queue to an exchange under a routing key.
type Binding struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// OrderBindings is the topology owned by the storefront.
var OrderBindings = []Binding{
	{Exchange: OrderExchange, Queue: QueueOrderCreated, RoutingKey: RoutingOrderCreated},
	{Exchange: OrderExchange, Queue: QueueOrderStatusChanged, RoutingKey: RoutingOrderStatusChanged},
}

// WarehouseBindings is the topology owned by the warehouse.
var WarehouseBindings = []Binding{
	{Exchange: WarehouseExchange, Queue: QueueStockChanged, RoutingKey: RoutingStockChanged},
	{Exchange: WarehouseExchange, Queue: QueueLowStockAlert, RoutingKey: RoutingLowStockAlert},
}
