package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	bookstorev1 "github.com/AndriyBorkovich/OnlineBookstore/api/bookstore/v1"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/reservation"
	grpcsvc "github.com/AndriyBorkovich/OnlineBookstore/internal/service/grpc"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/storage/memory"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/workflow"
)

// fakeClient паникует на любом методе без заданной функции.
type fakeClient struct {
	bookstorev1.BookstoreServiceClient

	reserveFn func(context.Context, *bookstorev1.ReserveStockRequest) (*bookstorev1.ReserveStockResponse, error)
	commitFn  func(context.Context, *bookstorev1.CommitReservationRequest) (*bookstorev1.CommitReservationResponse, error)
	createFn  func(context.Context, *bookstorev1.CreateOrderRequest) (*bookstorev1.CreateOrderResponse, error)
	payFn     func(context.Context, *bookstorev1.PayOrderRequest) (*bookstorev1.PayOrderResponse, error)
}

func (f *fakeClient) ReserveStock(ctx context.Context, req *bookstorev1.ReserveStockRequest, _ ...grpc.CallOption) (*bookstorev1.ReserveStockResponse, error) {
	return f.reserveFn(ctx, req)
}

func (f *fakeClient) CommitReservation(ctx context.Context, req *bookstorev1.CommitReservationRequest, _ ...grpc.CallOption) (*bookstorev1.CommitReservationResponse, error) {
	return f.commitFn(ctx, req)
}

func (f *fakeClient) CreateOrder(ctx context.Context, req *bookstorev1.CreateOrderRequest, _ ...grpc.CallOption) (*bookstorev1.CreateOrderResponse, error) {
	return f.createFn(ctx, req)
}

func (f *fakeClient) PayOrder(ctx context.Context, req *bookstorev1.PayOrderRequest, _ ...grpc.CallOption) (*bookstorev1.PayOrderResponse, error) {
	return f.payFn(ctx, req)
}

func newBookstoreServer() *grpc.Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("component", "loadtest-test")

	engine := reservation.NewEngine(memory.NewStockLedger(), nil,
		reservation.WithHoldTTL(0),
		reservation.WithLogger(entry),
	)
	orders := workflow.NewService(
		memory.NewOrderRepository(),
		memory.NewOutboxRepository(),
		memory.NewTimelineRepository(),
		engine,
		workflow.WithLogger(entry),
	)

	server := grpc.NewServer()
	bookstorev1.RegisterBookstoreServiceServer(server,
		grpcsvc.NewBookstoreService(engine, engine, orders, memory.NewIdempotencyRepository(), entry))
	return server
}

func newBufconnClient(t *testing.T) bookstorev1.BookstoreServiceClient {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	server := newBookstoreServer()
	go func() {
		_ = server.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return bookstorev1.NewBookstoreServiceClient(conn)
}

func idempotencyKey(t *testing.T, ctx context.Context) string {
	t.Helper()
	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok, "outgoing metadata is missing")
	values := md.Get(idempotencyHeader)
	require.Len(t, values, 1)
	return values[0]
}

func TestForEachJob(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		var got []int
		forEachJob(context.Background(), config{total: 5}, func(i int) { got = append(got, i) })
		require.Equal(t, []int{0, 1, 2, 3, 4}, got)
	})

	t.Run("duration", func(t *testing.T) {
		n := 0
		forEachJob(context.Background(), config{duration: 20 * time.Millisecond}, func(int) {
			n++
			time.Sleep(time.Millisecond)
		})
		require.Positive(t, n)
	})

	t.Run("duration with cap", func(t *testing.T) {
		n := 0
		forEachJob(context.Background(), config{duration: time.Minute, total: 3, totalSet: true}, func(int) { n++ })
		require.Equal(t, 3, n)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		n := 0
		forEachJob(ctx, config{duration: time.Minute}, func(int) {
			n++
			if n == 4 {
				cancel()
			}
		})
		require.Equal(t, 4, n)
	})
}

func TestRunScenario_Reserve(t *testing.T) {
	cfg := config{mode: modeReserve, timeout: time.Second, itemID: "dune", qty: 1}
	col := newCollector()

	var seen []string
	client := &fakeClient{
		reserveFn: func(_ context.Context, req *bookstorev1.ReserveStockRequest) (*bookstorev1.ReserveStockResponse, error) {
			require.Equal(t, "dune", req.ItemId)
			require.Equal(t, int64(1), req.Qty)
			seen = append(seen, req.OrderId)
			return &bookstorev1.ReserveStockResponse{Success: len(seen) == 1}, nil
		},
	}

	require.NoError(t, runScenario(context.Background(), client, cfg, "lt-1", col))
	require.NoError(t, runScenario(context.Background(), client, cfg, "lt-2", col), "rejection is not a failure")
	require.Equal(t, []string{"lt-1", "lt-2"}, seen)
	require.Equal(t, int64(1), col.accepted.Load())
	require.Equal(t, int64(1), col.rejected.Load())

	scenarios, _ := col.method(scenarioMethod)
	require.Zero(t, scenarios.Failed)
}

func TestRunScenario_ReserveError(t *testing.T) {
	cfg := config{mode: modeReserve, timeout: time.Second, itemID: "dune", qty: 1}
	col := newCollector()
	client := &fakeClient{
		reserveFn: func(context.Context, *bookstorev1.ReserveStockRequest) (*bookstorev1.ReserveStockResponse, error) {
			return nil, status.Error(codes.Unavailable, "ledger down")
		},
	}

	err := runScenario(context.Background(), client, cfg, "lt-1", col)
	require.Equal(t, codes.Unavailable, status.Code(err))

	scenarios, _ := col.method(scenarioMethod)
	require.Equal(t, int64(1), scenarios.Codes[codes.Unavailable.String()])
	require.Zero(t, col.accepted.Load()+col.rejected.Load())
}

func TestRunScenario_ReserveCommit(t *testing.T) {
	cfg := config{mode: modeReserveCommit, timeout: time.Second, itemID: "dune", qty: 2}
	col := newCollector()
	client := &fakeClient{
		reserveFn: func(context.Context, *bookstorev1.ReserveStockRequest) (*bookstorev1.ReserveStockResponse, error) {
			return &bookstorev1.ReserveStockResponse{Success: true}, nil
		},
		commitFn: func(_ context.Context, req *bookstorev1.CommitReservationRequest) (*bookstorev1.CommitReservationResponse, error) {
			return &bookstorev1.CommitReservationResponse{Committed: req.OrderId == "lt-1"}, nil
		},
	}

	require.NoError(t, runScenario(context.Background(), client, cfg, "lt-1", col))
	err := runScenario(context.Background(), client, cfg, "lt-2", col)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.ErrorContains(t, err, "not committed")

	commits, ok := col.method("CommitReservation")
	require.True(t, ok)
	require.Equal(t, int64(2), commits.Calls)
	require.Equal(t, int64(4), col.acceptedQty.Load())
}

func TestRunScenario_Order(t *testing.T) {
	cfg := config{mode: modeOrder, timeout: time.Second, itemID: "dune", qty: 1}
	col := newCollector()

	var mu sync.Mutex
	var keys []string
	client := &fakeClient{
		createFn: func(ctx context.Context, req *bookstorev1.CreateOrderRequest) (*bookstorev1.CreateOrderResponse, error) {
			mu.Lock()
			keys = append(keys, idempotencyKey(t, ctx))
			mu.Unlock()
			if strings.HasSuffix(req.CustomerId, "-2") {
				return nil, status.Error(codes.FailedPrecondition, "insufficient stock")
			}
			return &bookstorev1.CreateOrderResponse{Order: &bookstorev1.Order{Id: "order-1"}}, nil
		},
		payFn: func(ctx context.Context, req *bookstorev1.PayOrderRequest) (*bookstorev1.PayOrderResponse, error) {
			mu.Lock()
			keys = append(keys, idempotencyKey(t, ctx))
			mu.Unlock()
			return &bookstorev1.PayOrderResponse{OrderId: req.OrderId, Status: bookstorev1.OrderStatusPaid}, nil
		},
	}

	require.NoError(t, runScenario(context.Background(), client, cfg, "lt-1", col))
	require.NoError(t, runScenario(context.Background(), client, cfg, "lt-2", col))
	require.Equal(t, []string{"create-lt-1", "pay-lt-1", "create-lt-2"}, keys)
	require.Equal(t, int64(1), col.accepted.Load())
	require.Equal(t, int64(1), col.rejected.Load())

	pays, ok := col.method("PayOrder")
	require.True(t, ok)
	require.Equal(t, int64(1), pays.Calls)
}

func TestRunScenario_OrderWithoutID(t *testing.T) {
	cfg := config{mode: modeOrder, timeout: time.Second, itemID: "dune", qty: 1}
	client := &fakeClient{
		createFn: func(context.Context, *bookstorev1.CreateOrderRequest) (*bookstorev1.CreateOrderResponse, error) {
			return &bookstorev1.CreateOrderResponse{Order: &bookstorev1.Order{}}, nil
		},
	}
	err := runScenario(context.Background(), client, cfg, "lt-1", newCollector())
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestRun_AgainstEngine(t *testing.T) {
	tests := []struct {
		mode      loadMode
		wantFinal int64
		wantHeld  int64
	}{
		{mode: modeReserve, wantFinal: 10, wantHeld: 10},
		{mode: modeReserveCommit, wantFinal: 0, wantHeld: 0},
		{mode: modeOrder, wantFinal: 0, wantHeld: 0},
	}

	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			cfg := config{
				total:       40,
				concurrency: 8,
				timeout:     2 * time.Second,
				mode:        tc.mode,
				itemID:      "dune",
				stock:       10,
				qty:         1,
				runTag:      "lt",
			}
			result, err := run(context.Background(), cfg, []bookstorev1.BookstoreServiceClient{newBufconnClient(t)})
			require.NoError(t, err)
			require.Zero(t, result.FailedScenarios, "%+v", result.Methods)
			require.Equal(t, int64(40), result.TotalScenarios)
			require.True(t, result.passed())

			require.Equal(t, &stockReport{
				ItemID:       "dune",
				InitialStock: 10,
				FinalStock:   tc.wantFinal,
				HeldQty:      tc.wantHeld,
				AcceptedQty:  10,
				Accepted:     10,
				Rejected:     30,
			}, result.Stock)
		})
	}
}

func TestRun_RequiresClients(t *testing.T) {
	_, err := run(context.Background(), config{}, nil)
	require.Error(t, err)
}

func TestReconcileStock_DetectsOversell(t *testing.T) {
	client := newBufconnClient(t)
	ctx := context.Background()
	_, err := client.UpsertStockItem(ctx, &bookstorev1.UpsertStockItemRequest{Id: "emma", TotalStock: 1})
	require.NoError(t, err)

	col := newCollector()
	col.settle(outcomeAccepted, 2)

	s, err := reconcileStock(ctx, client, config{itemID: "emma", timeout: time.Second}, 1, col)
	require.NoError(t, err)
	require.True(t, s.Oversold)
}

func TestSeedStock_KeepsExistingStock(t *testing.T) {
	client := newBufconnClient(t)
	ctx := context.Background()
	_, err := client.UpsertStockItem(ctx, &bookstorev1.UpsertStockItemRequest{Id: "ulysses", TotalStock: 4})
	require.NoError(t, err)

	initial, err := seedStock(ctx, client, config{itemID: "ulysses", timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, int64(4), initial)
}

func TestRealMain(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := newBookstoreServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	outPath := filepath.Join(t.TempDir(), "report.json")
	var stdout, stderr bytes.Buffer
	code := realMain([]string{
		"-addr=" + lis.Addr().String(),
		"-total=5",
		"-stock=5",
		"-concurrency=2",
		"-connections=2",
		"-timeout=2s",
		"-output=" + outPath,
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	require.Contains(t, stdout.String(), "oversold=false")
	_, err = os.Stat(outPath)
	require.NoError(t, err)

	require.Equal(t, exitConfig, realMain([]string{"-qty=0"}, io.Discard, io.Discard))
}
