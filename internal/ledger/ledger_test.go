package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/storage/memory"
)

var errBroken = errors.New("connection reset")

// brokenLedger отказывает первые failures вызовов ApplyDelta.
type brokenLedger struct {
	domain.StockLedger
	failures int
	calls    int
}

func (l *brokenLedger) ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (domain.StockItem, error) {
	l.calls++
	if l.calls <= l.failures {
		return domain.StockItem{}, errBroken
	}
	return l.StockLedger.ApplyDelta(ctx, itemID, delta, ref)
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute, nil)
	cb.now = func() time.Time { return now }

	fail := func() error { return errBroken }
	ok := func() error { return nil }

	require.ErrorIs(t, cb.Execute("op", fail, nil), errBroken)
	require.Equal(t, CircuitClosed, cb.State())
	require.ErrorIs(t, cb.Execute("op", fail, nil), errBroken)
	require.Equal(t, CircuitOpen, cb.State())

	require.ErrorIs(t, cb.Execute("op", ok, nil), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute("op", ok, nil))
	require.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Second, nil)
	cb.now = func() time.Time { return now }

	require.Error(t, cb.Execute("op", func() error { return errBroken }, nil))
	require.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.Error(t, cb.Execute("op", func() error { return errBroken }, nil))
	require.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_IgnoresBusinessErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, nil)

	for i := 0; i < 3; i++ {
		err := cb.Execute("op", func() error { return domain.ErrItemNotFound }, shouldRetry)
		require.ErrorIs(t, err, domain.ErrItemNotFound)
	}
	require.Equal(t, CircuitClosed, cb.State())
}

func TestGuarded_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	inner := &brokenLedger{
		StockLedger: memory.NewStockLedger(domain.StockItem{ID: "book-1", TotalStock: 5}),
		failures:    2,
	}
	g := NewGuarded(inner, nil, fastRetry(3), nil)

	item, err := g.ApplyDelta(ctx, "book-1", -2, "order-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), item.TotalStock)
	require.Equal(t, 3, inner.calls)
}

func TestGuarded_ExhaustedRetriesReportUnavailable(t *testing.T) {
	ctx := context.Background()
	inner := &brokenLedger{
		StockLedger: memory.NewStockLedger(domain.StockItem{ID: "book-1", TotalStock: 5}),
		failures:    10,
	}
	g := NewGuarded(inner, NewCircuitBreaker(5, time.Minute, nil), fastRetry(3), nil)

	_, err := g.ApplyDelta(ctx, "book-1", -2, "order-1")
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	require.ErrorIs(t, err, errBroken)
	require.Equal(t, 3, inner.calls)
}

func TestGuarded_DoesNotRetryBusinessErrors(t *testing.T) {
	ctx := context.Background()
	inner := &brokenLedger{StockLedger: memory.NewStockLedger(domain.StockItem{ID: "book-1", TotalStock: 1})}
	g := NewGuarded(inner, nil, fastRetry(3), nil)

	_, err := g.ApplyDelta(ctx, "book-1", -2, "order-1")
	require.ErrorIs(t, err, domain.ErrStockUnderflow)
	require.Equal(t, 1, inner.calls)

	_, err = g.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestGuarded_OpenCircuitFailsFast(t *testing.T) {
	ctx := context.Background()
	inner := &brokenLedger{
		StockLedger: memory.NewStockLedger(domain.StockItem{ID: "book-1", TotalStock: 5}),
		failures:    100,
	}
	g := NewGuarded(inner, NewCircuitBreaker(1, time.Hour, nil), fastRetry(3), nil)

	_, err := g.ApplyDelta(ctx, "book-1", -1, "order-1")
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	require.Equal(t, 1, inner.calls)

	_, err = g.Upsert(ctx, domain.StockItem{ID: "book-1", TotalStock: 9})
	require.ErrorIs(t, err, ErrCircuitOpen)
}
