package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	type verdict struct{ conflict, idempotency, stock, input bool }

	tests := []struct {
		name string
		err  error
		want verdict
	}{
		{name: "nil", err: nil},
		{name: "infrastructure", err: errors.New("db down")},
		{name: "version conflict", err: ErrOrderVersionConflict, want: verdict{conflict: true}},
		{name: "joined version conflict", err: errors.Join(ErrOrderVersionConflict, errors.New("retry")), want: verdict{conflict: true}},
		{name: "key taken", err: ErrIdempotencyKeyAlreadyExists, want: verdict{idempotency: true}},
		{name: "key reused", err: fmt.Errorf("create order: %w", ErrIdempotencyHashMismatch), want: verdict{idempotency: true}},
		{name: "insufficient stock", err: fmt.Errorf("reserve: %w", ErrInsufficientStock), want: verdict{stock: true}},
		{name: "unknown item", err: ErrItemNotFound, want: verdict{stock: true}},
		{name: "no hold", err: ErrReservationNotFound, want: verdict{stock: true}},
		{name: "qty mismatch", err: ErrCommitQtyMismatch, want: verdict{stock: true}},
		{name: "bad reserve", err: fmt.Errorf("reserve: %w", ErrInvalidReserveRequest), want: verdict{stock: true, input: true}},
		{name: "underflow", err: ErrStockUnderflow},
		{name: "ledger down", err: ErrLedgerUnavailable},
		{name: "validation", err: errors.Join(ErrCustomerRequired, ErrItemQtyInvalid), want: verdict{input: true}},
		{name: "duplicate line", err: ErrItemDuplicated, want: verdict{input: true}},
		{name: "negative stock", err: ErrStockNegative, want: verdict{input: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verdict{
				conflict:    IsVersionConflict(tt.err),
				idempotency: IsIdempotencyConflict(tt.err),
				stock:       IsStockResult(tt.err),
				input:       IsInvalidInput(tt.err),
			}
			if got != tt.want {
				t.Errorf("classification of %v = %+v, want %+v", tt.err, got, tt.want)
			}
		})
	}
}
