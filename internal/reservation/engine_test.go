package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/reservation"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/storage/memory"
)

// flakyLedger оборачивает учёт и позволяет подменить результат ApplyDelta.
type flakyLedger struct {
	domain.StockLedger
	mu       sync.Mutex
	applyErr error
	applied  atomic.Int64
}

func (l *flakyLedger) failWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyErr = err
}

func (l *flakyLedger) ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (domain.StockItem, error) {
	l.mu.Lock()
	err := l.applyErr
	l.mu.Unlock()
	if err != nil {
		return domain.StockItem{}, err
	}
	l.applied.Add(1)
	return l.StockLedger.ApplyDelta(ctx, itemID, delta, ref)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, itemID)
	return nil
}

func newEngine(t *testing.T, stock int64, options ...reservation.Option) (*reservation.Engine, *memory.StockLedger) {
	t.Helper()
	ledger := memory.NewStockLedger(domain.StockItem{ID: "X", Title: "Dune", TotalStock: stock})
	return reservation.NewEngine(ledger, nil, options...), ledger
}

func persisted(t *testing.T, ledger domain.StockLedger, itemID string) int64 {
	t.Helper()
	item, err := ledger.Get(context.Background(), itemID)
	require.NoError(t, err)
	return item.TotalStock
}

func TestEngine_ReserveCommitCancelFlow(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 5)

	res, err := engine.Reserve(ctx, "X", 3, "OrderA")
	require.NoError(t, err)
	require.True(t, res.Success)

	avail, err := engine.Validate(ctx, "X", 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), avail.AvailableQty)

	res, err = engine.Reserve(ctx, "X", 3, "OrderB")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "available 2")
	require.Equal(t, int64(2), res.AvailableQty)

	res, err = engine.Reserve(ctx, "X", 2, "OrderB")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(0), res.AvailableQty)

	ok, err := engine.Commit(ctx, "X", 3, "OrderA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), persisted(t, ledger, "X"))

	ok, err = engine.Cancel(ctx, "X", "OrderB")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), persisted(t, ledger, "X"))

	avail, err = engine.Validate(ctx, "X", 2)
	require.NoError(t, err)
	require.True(t, avail.IsAvailable)
	require.Equal(t, int64(2), avail.AvailableQty)
	require.Empty(t, engine.Holds("X"))
}

func TestEngine_CommitWithoutHold(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 5)

	ok, err := engine.Commit(ctx, "X", 1, "OrderZ")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(5), persisted(t, ledger, "X"))
}

func TestEngine_ReserveRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, 5)

	cases := []struct {
		name    string
		itemID  string
		qty     int64
		orderID string
		message string
	}{
		{name: "zero qty", itemID: "X", qty: 0, orderID: "o", message: "qty must be greater than zero"},
		{name: "negative qty", itemID: "X", qty: -2, orderID: "o", message: "qty must be greater than zero"},
		{name: "empty item", itemID: " ", qty: 1, orderID: "o", message: "item_id is required"},
		{name: "empty order", itemID: "X", qty: 1, orderID: "", message: "order_id is required"},
		{name: "unknown item", itemID: "Y", qty: 1, orderID: "o", message: "book Y not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := engine.Reserve(ctx, tc.itemID, tc.qty, tc.orderID)
			require.NoError(t, err)
			require.False(t, res.Success)
			require.Contains(t, res.Message, tc.message)
		})
	}
	require.Empty(t, engine.Snapshot())
}

func TestEngine_ValidateUnknownItem(t *testing.T) {
	engine, _ := newEngine(t, 5)

	avail, err := engine.Validate(context.Background(), "missing", 1)
	require.NoError(t, err)
	require.False(t, avail.IsAvailable)
	require.Zero(t, avail.AvailableQty)
}

func TestEngine_ReserveOverwritesOwnHold(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, 5)

	res, err := engine.Reserve(ctx, "X", 4, "OrderA")
	require.NoError(t, err)
	require.True(t, res.Success)

	// Свой резерв не мешает увеличению до полного остатка.
	res, err = engine.Reserve(ctx, "X", 5, "OrderA")
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = engine.Reserve(ctx, "X", 1, "OrderA")
	require.NoError(t, err)
	require.True(t, res.Success)

	holds := engine.Holds("X")
	require.Len(t, holds, 1)
	require.Equal(t, int64(1), holds[0].Qty)

	avail, err := engine.Validate(ctx, "X", 4)
	require.NoError(t, err)
	require.Equal(t, int64(4), avail.AvailableQty)
}

func TestEngine_CommitOnlyOnce(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 5)

	_, err := engine.Reserve(ctx, "X", 2, "OrderA")
	require.NoError(t, err)

	ok, err := engine.Commit(ctx, "X", 2, "OrderA")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.Commit(ctx, "X", 2, "OrderA")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(3), persisted(t, ledger, "X"))
}

func TestEngine_CancelDoesNotTouchLedger(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 5)

	ok, err := engine.Cancel(ctx, "X", "OrderA")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = engine.Reserve(ctx, "X", 5, "OrderA")
	require.NoError(t, err)
	ok, err = engine.Cancel(ctx, "X", "OrderA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5), persisted(t, ledger, "X"))
}

func TestEngine_CommitQtyMismatchKeepsHold(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 5)

	_, err := engine.Reserve(ctx, "X", 3, "OrderA")
	require.NoError(t, err)

	ok, err := engine.Commit(ctx, "X", 2, "OrderA")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(5), persisted(t, ledger, "X"))

	hold := engine.Holds("X")
	require.Len(t, hold, 1)
	require.Equal(t, int64(3), hold[0].Qty)
}

func TestEngine_CommitUnderflowDropsHold(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 5)

	_, err := engine.Reserve(ctx, "X", 4, "OrderA")
	require.NoError(t, err)

	// Остаток уменьшили вручную ниже зарезервированного.
	_, err = ledger.Upsert(ctx, domain.StockItem{ID: "X", TotalStock: 2})
	require.NoError(t, err)

	ok, err := engine.Commit(ctx, "X", 4, "OrderA")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(2), persisted(t, ledger, "X"))
	require.Empty(t, engine.Holds("X"))
}

func TestEngine_CommitLedgerFailureRestoresHold(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyLedger{StockLedger: memory.NewStockLedger(domain.StockItem{ID: "X", TotalStock: 5})}
	engine := reservation.NewEngine(ledger, nil)

	_, err := engine.Reserve(ctx, "X", 3, "OrderA")
	require.NoError(t, err)

	ledger.failWith(domain.ErrLedgerUnavailable)
	ok, err := engine.Commit(ctx, "X", 3, "OrderA")
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	require.False(t, ok)
	require.Len(t, engine.Holds("X"), 1)

	ledger.failWith(nil)
	ok, err = engine.Commit(ctx, "X", 3, "OrderA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), ledger.applied.Load())
	require.Equal(t, int64(2), persisted(t, ledger, "X"))
}

// lostAckLedger применяет первое списание, но сообщает о сбое, как при потерянном ответе БД.
type lostAckLedger struct {
	domain.StockLedger
	lost atomic.Bool
}

func (l *lostAckLedger) ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (domain.StockItem, error) {
	item, err := l.StockLedger.ApplyDelta(ctx, itemID, delta, ref)
	if err == nil && l.lost.CompareAndSwap(false, true) {
		return domain.StockItem{}, domain.ErrLedgerUnavailable
	}
	return item, err
}

func TestEngine_CommitTreatsReplayedDeltaAsSuccess(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStockLedger(domain.StockItem{ID: "X", Title: "Dune", TotalStock: 5})
	engine := reservation.NewEngine(&lostAckLedger{StockLedger: ledger}, nil)

	_, err := engine.Reserve(ctx, "X", 2, "OrderA")
	require.NoError(t, err)

	ok, err := engine.Commit(ctx, "X", 2, "OrderA")
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	require.False(t, ok)
	require.Len(t, engine.Holds("X"), 1)

	// Повтор идёт с тем же токеном резерва, поэтому учёт не списывает второй раз.
	ok, err = engine.Commit(ctx, "X", 2, "OrderA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), persisted(t, ledger, "X"))
	require.Empty(t, engine.Holds("X"))
}

func TestEngine_RecommitSamePairDecrementsAgain(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 5)

	res, err := engine.Reserve(ctx, "X", 3, "OrderA")
	require.NoError(t, err)
	require.True(t, res.Success)
	ok, err := engine.Commit(ctx, "X", 3, "OrderA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), persisted(t, ledger, "X"))

	res, err = engine.Reserve(ctx, "X", 2, "OrderA")
	require.NoError(t, err)
	require.True(t, res.Success)
	ok, err = engine.Commit(ctx, "X", 2, "OrderA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), persisted(t, ledger, "X"))

	avail, err := engine.Validate(ctx, "X", 1)
	require.NoError(t, err)
	require.False(t, avail.IsAvailable)
	require.Equal(t, int64(0), avail.AvailableQty)
}

// gatedLedger задерживает ApplyDelta и Get указанной книги до закрытия ворот.
type gatedLedger struct {
	domain.StockLedger
	applyStarted chan struct{}
	applyGate    chan struct{}
	getItem      string
	getStarted   chan struct{}
	getGate      chan struct{}
}

func (l *gatedLedger) ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (domain.StockItem, error) {
	close(l.applyStarted)
	<-l.applyGate
	return l.StockLedger.ApplyDelta(ctx, itemID, delta, ref)
}

func (l *gatedLedger) Get(ctx context.Context, itemID string) (domain.StockItem, error) {
	if itemID == l.getItem {
		close(l.getStarted)
		select {
		case <-l.getGate:
		case <-ctx.Done():
			return domain.StockItem{}, ctx.Err()
		}
	}
	return l.StockLedger.Get(ctx, itemID)
}

func TestEngine_CommitSettleWaitsPastLockTimeout(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStockLedger(
		domain.StockItem{ID: "X", Title: "Dune", TotalStock: 5},
		domain.StockItem{ID: "Y", Title: "Solaris", TotalStock: 5},
	)
	gated := &gatedLedger{
		StockLedger:  ledger,
		applyStarted: make(chan struct{}),
		applyGate:    make(chan struct{}),
		getStarted:   make(chan struct{}),
		getGate:      make(chan struct{}),
	}
	engine := reservation.NewEngine(gated, nil, reservation.WithLockTimeout(20*time.Millisecond))

	_, err := engine.Reserve(ctx, "X", 1, "OrderA")
	require.NoError(t, err)
	gated.getItem = "Y"

	type commitResult struct {
		ok  bool
		err error
	}
	committed := make(chan commitResult, 1)
	go func() {
		ok, err := engine.Commit(ctx, "X", 1, "OrderA")
		committed <- commitResult{ok: ok, err: err}
	}()
	<-gated.applyStarted

	reserved := make(chan error, 1)
	go func() {
		_, err := engine.Reserve(ctx, "Y", 1, "OrderB")
		reserved <- err
	}()
	<-gated.getStarted

	// Критическую секцию держит Reserve дольше lockTimeout; списание обязано дождаться её.
	close(gated.applyGate)
	select {
	case <-committed:
		t.Fatal("commit finished settling without the reservation lock")
	case <-time.After(60 * time.Millisecond):
	}

	close(gated.getGate)
	require.NoError(t, <-reserved)
	res := <-committed
	require.NoError(t, res.err)
	require.True(t, res.ok)
	require.Equal(t, int64(4), persisted(t, ledger, "X"))
	require.Equal(t, int64(0), engine.Table().Held("X", ""))
	require.Equal(t, int64(1), engine.Table().Held("Y", ""))
}

func TestEngine_CommitInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	cache := &recordingCache{}
	engine, _ := newEngine(t, 5, reservation.WithCache(cache))

	_, err := engine.Reserve(ctx, "X", 1, "OrderA")
	require.NoError(t, err)
	_, err = engine.Commit(ctx, "X", 1, "OrderA")
	require.NoError(t, err)

	require.Equal(t, []string{"X"}, cache.invalidated)
}

func TestEngine_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, 10)

	var (
		wg      sync.WaitGroup
		success atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.Reserve(ctx, "X", 1, fmt.Sprintf("order-%d", i))
			if err == nil && res.Success {
				success.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(10), success.Load())
	require.Equal(t, int64(10), engine.Snapshot()["X"])
}

func TestEngine_ConcurrentCommitAndReserve(t *testing.T) {
	ctx := context.Background()
	engine, ledger := newEngine(t, 20)

	for i := 0; i < 10; i++ {
		res, err := engine.Reserve(ctx, "X", 1, fmt.Sprintf("first-%d", i))
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	var (
		wg       sync.WaitGroup
		reserved atomic.Int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ok, err := engine.Commit(ctx, "X", 1, fmt.Sprintf("first-%d", i))
			if err != nil || !ok {
				t.Errorf("commit %d failed: ok=%v err=%v", i, ok, err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			res, err := engine.Reserve(ctx, "X", 2, fmt.Sprintf("second-%d", i))
			if err == nil && res.Success {
				reserved.Add(2)
			}
		}(i)
	}
	wg.Wait()

	stock := persisted(t, ledger, "X")
	require.Equal(t, int64(10), stock)
	require.LessOrEqual(t, reserved.Load(), stock)
	require.Equal(t, reserved.Load(), engine.Snapshot()["X"])
}

func TestEngine_ReserveHonoursContextCancel(t *testing.T) {
	engine, _ := newEngine(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Reserve(ctx, "X", 1, "OrderA")
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ReleaseExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	reg := prometheus.NewRegistry()
	m := metrics.NewReservationMetricsWithRegisterer(reg)
	engine, _ := newEngine(t, 5,
		reservation.WithClock(clock),
		reservation.WithHoldTTL(10*time.Minute),
		reservation.WithMetrics(m),
	)

	_, err := engine.Reserve(ctx, "X", 2, "OrderA")
	require.NoError(t, err)

	released, err := engine.ReleaseExpired(ctx, now.Add(5*time.Minute))
	require.NoError(t, err)
	require.Zero(t, released)

	released, err = engine.ReleaseExpired(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, released)
	require.Empty(t, engine.Holds("X"))
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP bookstore_holds_expired_total Holds released by the expiry sweeper.
# TYPE bookstore_holds_expired_total counter
bookstore_holds_expired_total 1
`), "bookstore_holds_expired_total"))
}

func TestEngine_HoldTTLDisabled(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, 5, reservation.WithHoldTTL(0))

	_, err := engine.Reserve(ctx, "X", 2, "OrderA")
	require.NoError(t, err)
	require.True(t, engine.Holds("X")[0].ExpiresAt.IsZero())

	released, err := engine.ReleaseExpired(ctx, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, released)
}

func TestEngine_UpsertItem(t *testing.T) {
	ctx := context.Background()
	cache := &recordingCache{}
	engine, ledger := newEngine(t, 5, reservation.WithCache(cache))

	saved, err := engine.UpsertItem(ctx, domain.StockItem{ID: "Y", Title: "Solaris", TotalStock: 7})
	require.NoError(t, err)
	require.Equal(t, int64(7), saved.TotalStock)
	require.Equal(t, int64(7), persisted(t, ledger, "Y"))
	require.Equal(t, []string{"Y"}, cache.invalidated)

	_, err = engine.UpsertItem(ctx, domain.StockItem{ID: "", TotalStock: 1})
	require.Error(t, err)

	info, err := engine.StockInfo(ctx, "Y")
	require.NoError(t, err)
	require.Equal(t, "Solaris", info.Title)

	_, err = engine.StockInfo(ctx, "missing")
	require.True(t, errors.Is(err, domain.ErrItemNotFound))
}
