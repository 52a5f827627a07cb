package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated  EventType = "order.created"
	EventTypeOrderReserved EventType = "order.reserved"
	EventTypeOrderPaid     EventType = "order.paid"
	EventTypeOrderCanceled EventType = "order.canceled"

	// Stock события
	EventTypeStockReserved  EventType = "stock.reserved"
	EventTypeStockCommitted EventType = "stock.committed"
	EventTypeStockReleased  EventType = "stock.released"

	// Payment события (входящие)
	EventTypePaymentCaptured EventType = "payment.captured"
	EventTypePaymentFailed   EventType = "payment.failed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "bookstore.order.events"
	TopicPaymentEvents   = "bookstore.payment.events"
	TopicDeadLetterQueue = "bookstore.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType  EventType      `json:"event_type"`
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StockEvent описывает изменение резерва одной позиции.
type StockEvent struct {
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	ItemID    string    `json:"item_id"`
	Qty       int64     `json:"qty"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentEvent приходит от платёжного сервиса.
type PaymentEvent struct {
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]any) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Metadata:   metadata,
	}
}

// NewStockEvent создает событие по позиции заказа.
func NewStockEvent(eventType EventType, orderID, itemID string, qty int64) *StockEvent {
	return &StockEvent{
		EventType: eventType,
		OrderID:   orderID,
		ItemID:    itemID,
		Qty:       qty,
		Timestamp: time.Now().UTC(),
	}
}
