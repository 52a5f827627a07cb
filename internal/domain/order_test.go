package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:         "order-1",
		CustomerID: "customer-1",
		Status:     domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ID: "line-1", ItemID: "book-1", Qty: 2, HoldState: domain.HoldStatePending, CreatedAt: now},
			{ID: "line-2", ItemID: "book-2", Qty: 1, HoldState: domain.HoldStatePending, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no customer",
			mut:  func(o *domain.Order) { o.CustomerID = "" },
			want: domain.ErrCustomerRequired,
		},
		{
			name: "no items",
			mut:  func(o *domain.Order) { o.Items = nil },
			want: domain.ErrItemsRequired,
		},
		{
			name: "qty invalid",
			mut:  func(o *domain.Order) { o.Items[0].Qty = 0 },
			want: domain.ErrItemQtyInvalid,
		},
		{
			name: "empty item id",
			mut:  func(o *domain.Order) { o.Items[1].ItemID = "" },
			want: domain.ErrItemIDRequired,
		},
		{
			name: "duplicated item",
			mut:  func(o *domain.Order) { o.Items[1].ItemID = o.Items[0].ItemID },
			want: domain.ErrItemDuplicated,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusReserved, true},
		{domain.OrderStatusPending, domain.OrderStatusCanceled, true},
		{domain.OrderStatusPending, domain.OrderStatusPaid, false},
		{domain.OrderStatusReserved, domain.OrderStatusPaid, true},
		{domain.OrderStatusReserved, domain.OrderStatusCanceled, true},
		{domain.OrderStatusPaid, domain.OrderStatusCanceled, false},
		{domain.OrderStatusCanceled, domain.OrderStatusReserved, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	if !domain.OrderStatusPaid.Terminal() || !domain.OrderStatusCanceled.Terminal() {
		t.Fatal("paid and canceled must be terminal")
	}
	if domain.OrderStatusReserved.Terminal() {
		t.Fatal("reserved must not be terminal")
	}
}

func TestOrderCloneIsolatesItems(t *testing.T) {
	order := makeOrder()
	clone := order.Clone()
	clone.Items[0].HoldState = domain.HoldStateCommitted

	if order.Items[0].HoldState != domain.HoldStatePending {
		t.Fatal("clone must not share items slice with the original")
	}
}
