package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated       = "OrderCreated"
	TimelineOrderStatusChanged = "OrderStatusChanged"
	TimelineStockReserved      = "StockReserved"
	TimelineStockCommitted     = "StockCommitted"
	TimelineStockReleased      = "StockReleased"
	TimelineOrderCanceled      = "OrderCanceled"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
