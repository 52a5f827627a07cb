package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/storage/memory"
)

func newTestCache(t *testing.T, ledger domain.StockLedger) *StockCache {
	t.Helper()

	addr := os.Getenv("BOOKSTORE_REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("BOOKSTORE_REDIS_TEST_ADDR is not set")
	}

	client, err := Dial(context.Background(), addr)
	if err != nil {
		t.Skipf("redis is unavailable: %v", err)
	}

	c := NewStockCache(client, ledger, WithTTL(time.Minute))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStockCache_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	itemID := "book-" + uuid.NewString()
	ledger := memory.NewStockLedger(domain.StockItem{ID: itemID, Title: "Dune", TotalStock: 5})
	c := newTestCache(t, ledger)
	t.Cleanup(func() { _ = c.Invalidate(context.Background(), itemID) })

	item, err := c.StockInfo(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, int64(5), item.TotalStock)

	_, err = ledger.ApplyDelta(ctx, itemID, -2, "order-1")
	require.NoError(t, err)

	// До инвалидации отдаётся закешированное значение.
	cached, err := c.StockInfo(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, int64(5), cached.TotalStock)

	require.NoError(t, c.Invalidate(ctx, itemID))
	fresh, err := c.StockInfo(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, int64(3), fresh.TotalStock)
}

func TestStockCache_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStockLedger()
	c := newTestCache(t, ledger)
	itemID := "book-" + uuid.NewString()

	_, err := c.StockInfo(ctx, itemID)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	_, err = ledger.Upsert(ctx, domain.StockItem{ID: itemID, TotalStock: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Invalidate(context.Background(), itemID) })

	item, err := c.StockInfo(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, int64(1), item.TotalStock)
}
