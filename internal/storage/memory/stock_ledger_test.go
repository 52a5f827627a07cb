package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/storage/memory"
)

func TestStockLedger_GetAndUpsert(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStockLedger(domain.StockItem{ID: "book-1", Title: "Dune", TotalStock: 10})

	item, err := ledger.Get(ctx, "book-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.TotalStock != 10 || item.UpdatedAt.IsZero() {
		t.Fatalf("unexpected item: %+v", item)
	}

	if _, err := ledger.Get(ctx, "missing"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	updated, err := ledger.Upsert(ctx, domain.StockItem{ID: "book-1", TotalStock: 3})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if updated.TotalStock != 3 || updated.Title != "Dune" {
		t.Fatalf("upsert must replace stock and keep title: %+v", updated)
	}

	if _, err := ledger.Upsert(ctx, domain.StockItem{ID: "book-2", TotalStock: -1}); err == nil {
		t.Fatal("expected validation error for negative stock")
	}
}

func TestStockLedger_ApplyDelta(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStockLedger(domain.StockItem{ID: "book-1", TotalStock: 5})

	item, err := ledger.ApplyDelta(ctx, "book-1", -3, "order-1")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if item.TotalStock != 2 {
		t.Fatalf("expected stock 2, got %d", item.TotalStock)
	}

	if _, err := ledger.ApplyDelta(ctx, "book-1", -3, "order-1"); !errors.Is(err, domain.ErrDeltaAlreadyApplied) {
		t.Fatalf("expected ErrDeltaAlreadyApplied, got %v", err)
	}

	if _, err := ledger.ApplyDelta(ctx, "book-1", -3, "order-2"); !errors.Is(err, domain.ErrStockUnderflow) {
		t.Fatalf("expected ErrStockUnderflow, got %v", err)
	}

	// Неудачное списание не помечает ref применённым.
	if _, err := ledger.ApplyDelta(ctx, "book-1", -2, "order-2"); err != nil {
		t.Fatalf("retry after underflow failed: %v", err)
	}

	if _, err := ledger.ApplyDelta(ctx, "missing", -1, "order-3"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestStockLedger_ConcurrentDeltasNeverUnderflow(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStockLedger(domain.StockItem{ID: "book-1", TotalStock: 50})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := ledger.ApplyDelta(ctx, "book-1", -1, fmt.Sprintf("order-%d", i)); err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	item, _ := ledger.Get(ctx, "book-1")
	if applied != 50 || item.TotalStock != 0 {
		t.Fatalf("expected 50 applied and zero stock, got applied=%d stock=%d", applied, item.TotalStock)
	}
}
