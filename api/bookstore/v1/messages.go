// Package bookstorev1 описывает gRPC API книжного магазина: сообщения,
// JSON-кодек и дескриптор сервиса bookstore.v1.BookstoreService.
package bookstorev1

// OrderStatus — статус заказа в API.
type OrderStatus string

const (
	OrderStatusUnspecified OrderStatus = ""
	OrderStatusPending     OrderStatus = "ORDER_STATUS_PENDING"
	OrderStatusReserved    OrderStatus = "ORDER_STATUS_RESERVED"
	OrderStatusPaid        OrderStatus = "ORDER_STATUS_PAID"
	OrderStatusCanceled    OrderStatus = "ORDER_STATUS_CANCELED"
)

type StockItem struct {
	Id         string `json:"id"`
	Title      string `json:"title,omitempty"`
	TotalStock int64  `json:"total_stock"`
}

type GetStockInfoRequest struct {
	ItemId string `json:"item_id"`
}

type GetStockInfoResponse struct {
	Id         string `json:"id"`
	Title      string `json:"title,omitempty"`
	TotalStock int64  `json:"total_stock"`
}

type ValidateStockRequest struct {
	ItemId string `json:"item_id"`
	Qty    int64  `json:"qty"`
}

type ValidateStockResponse struct {
	IsAvailable  bool  `json:"is_available"`
	AvailableQty int64 `json:"available_qty"`
}

type ReserveStockRequest struct {
	ItemId  string `json:"item_id"`
	Qty     int64  `json:"qty"`
	OrderId string `json:"order_id"`
}

type ReserveStockResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type CommitReservationRequest struct {
	ItemId  string `json:"item_id"`
	Qty     int64  `json:"qty"`
	OrderId string `json:"order_id"`
}

type CommitReservationResponse struct {
	Committed bool `json:"committed"`
}

type CancelReservationRequest struct {
	ItemId  string `json:"item_id"`
	OrderId string `json:"order_id"`
}

type CancelReservationResponse struct {
	Canceled bool `json:"canceled"`
}

type UpsertStockItemRequest struct {
	Id         string `json:"id"`
	Title      string `json:"title,omitempty"`
	TotalStock int64  `json:"total_stock"`
}

type UpsertStockItemResponse struct {
	Item *StockItem `json:"item"`
}

type Hold struct {
	ItemId        string `json:"item_id"`
	OrderId       string `json:"order_id"`
	Qty           int64  `json:"qty"`
	CreatedUnix   int64  `json:"created_unix"`
	ExpiresAtUnix int64  `json:"expires_at_unix,omitempty"`
}

type ListHoldsRequest struct {
	ItemId string `json:"item_id"`
}

type ListHoldsResponse struct {
	Holds []*Hold `json:"holds"`
}

type OrderItem struct {
	ItemId    string `json:"item_id"`
	Qty       int64  `json:"qty"`
	HoldState string `json:"hold_state,omitempty"`
}

type Order struct {
	Id          string       `json:"id"`
	CustomerId  string       `json:"customer_id"`
	Status      OrderStatus  `json:"status"`
	Items       []*OrderItem `json:"items"`
	Version     int64        `json:"version"`
	CreatedUnix int64        `json:"created_unix"`
	UpdatedUnix int64        `json:"updated_unix"`
}

type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	UnixTime int64  `json:"unix_time"`
}

type CreateOrderRequest struct {
	CustomerId string       `json:"customer_id"`
	Items      []*OrderItem `json:"items"`
}

type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

type PayOrderRequest struct {
	OrderId string `json:"order_id"`
}

type PayOrderResponse struct {
	OrderId string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

type CancelOrderRequest struct {
	OrderId string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type CancelOrderResponse struct {
	OrderId string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

type GetOrderRequest struct {
	OrderId string `json:"order_id"`
}

type GetOrderResponse struct {
	Order    *Order           `json:"order"`
	Timeline []*TimelineEvent `json:"timeline"`
}

type ListOrdersRequest struct {
	CustomerId string `json:"customer_id"`
	PageSize   int32  `json:"page_size,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}
