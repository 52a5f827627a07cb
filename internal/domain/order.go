package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ сохранён, резервы ещё не взяты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusReserved — все позиции зарезервированы.
	OrderStatusReserved OrderStatus = "reserved"
	// OrderStatusPaid — оплата подтверждена, резервы списаны со склада.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCanceled — заказ отменён, резервы сняты.
	OrderStatusCanceled OrderStatus = "canceled"
)

// HoldState — состояние резерва отдельной позиции заказа.
type HoldState string

const (
	HoldStatePending   HoldState = "pending"
	HoldStateReserved  HoldState = "reserved"
	HoldStateCommitted HoldState = "committed"
	HoldStateReleased  HoldState = "released"
)

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID string
	// ItemID — идентификатор книги в каталоге.
	ItemID    string
	Qty       int64
	HoldState HoldState
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID         string
	CustomerID string
	Status     OrderStatus
	Items      []OrderItem
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	seen := make(map[string]struct{}, len(o.Items))
	for _, item := range o.Items {
		if item.ItemID == "" {
			errs = append(errs, ErrItemIDRequired)
			continue
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		// Одна книга — один резерв на заказ, поэтому дубликаты запрещены.
		if _, dup := seen[item.ItemID]; dup {
			errs = append(errs, ErrItemDuplicated)
		}
		seen[item.ItemID] = struct{}{}
	}

	return errs
}

// Terminal сообщает, что заказ больше не меняет статус.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCanceled
}

// CanTransition проверяет допустимость перехода статуса.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return to == OrderStatusReserved || to == OrderStatusCanceled
	case OrderStatusReserved:
		return to == OrderStatusPaid || to == OrderStatusCanceled
	default:
		return false
	}
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o Order) Clone() Order {
	dst := o
	dst.Items = append([]OrderItem(nil), o.Items...)
	return dst
}
