package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

func TestStockLedger_PostgresUpsertGetApply(t *testing.T) {
	store := migratedTestStore(t)
	ledger := NewStockLedger(store)
	ctx := context.Background()

	if _, err := ledger.Get(ctx, "book-1"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	saved, err := ledger.Upsert(ctx, domain.StockItem{ID: "book-1", Title: "Dune", TotalStock: 5})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.TotalStock != 5 || saved.Title != "Dune" {
		t.Fatalf("unexpected saved item: %+v", saved)
	}

	// Пустой title не затирает существующий.
	saved, err = ledger.Upsert(ctx, domain.StockItem{ID: "book-1", TotalStock: 6})
	if err != nil {
		t.Fatalf("upsert stock only: %v", err)
	}
	if saved.Title != "Dune" || saved.TotalStock != 6 {
		t.Fatalf("unexpected item after second upsert: %+v", saved)
	}

	item, err := ledger.ApplyDelta(ctx, "book-1", -4, "order-1")
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if item.TotalStock != 2 {
		t.Fatalf("expected stock 2, got %d", item.TotalStock)
	}

	item, err = ledger.ApplyDelta(ctx, "book-1", -4, "order-1")
	if !errors.Is(err, domain.ErrDeltaAlreadyApplied) {
		t.Fatalf("expected ErrDeltaAlreadyApplied, got %v", err)
	}
	if item.TotalStock != 2 {
		t.Fatalf("replayed delta must report current stock, got %d", item.TotalStock)
	}

	if _, err := ledger.ApplyDelta(ctx, "book-1", -3, "order-2"); !errors.Is(err, domain.ErrStockUnderflow) {
		t.Fatalf("expected ErrStockUnderflow, got %v", err)
	}
	// Отклонённое изменение не занимает ref.
	if _, err := ledger.ApplyDelta(ctx, "book-1", -2, "order-2"); err != nil {
		t.Fatalf("retry after underflow: %v", err)
	}

	if _, err := ledger.ApplyDelta(ctx, "missing", -1, "order-3"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for missing item, got %v", err)
	}
}

func TestStockLedger_PostgresConcurrentDeltas(t *testing.T) {
	store := migratedTestStore(t)
	ledger := NewStockLedger(store)
	ctx := context.Background()

	if _, err := ledger.Upsert(ctx, domain.StockItem{ID: "book-1", TotalStock: 10}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var (
		wg      sync.WaitGroup
		applied atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := ledger.ApplyDelta(ctx, "book-1", -1, fmt.Sprintf("order-%d", i)); err == nil {
				applied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	item, err := ledger.Get(ctx, "book-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if applied.Load() != 10 || item.TotalStock != 0 {
		t.Fatalf("expected 10 applied and zero stock, got applied=%d stock=%d", applied.Load(), item.TotalStock)
	}
}
