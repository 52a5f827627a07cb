// Command loadtest нагружает один товар конкурентными резервами через gRPC
// и проверяет, что принятое количество не превысило остаток.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	bookstorev1 "github.com/AndriyBorkovich/OnlineBookstore/api/bookstore/v1"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitConfig  = 2
	seededTitle = "load test item"
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	logger := log.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(args)
	if err != nil {
		logger.WithError(err).Error("invalid config")
		return exitConfig
	}

	clients, closeAll, err := dial(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to create grpc clients")
		return exitFailed
	}
	defer closeAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, clients)
	if err != nil {
		logger.WithError(err).Error("load test failed")
		return exitFailed
	}

	printReport(stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			logger.WithError(err).Error("failed to write report")
			return exitFailed
		}
	}
	if !result.passed() {
		return exitFailed
	}
	return exitOK
}

func dial(cfg config) ([]bookstorev1.BookstoreServiceClient, func(), error) {
	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	closeAll := func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}

	clients := make([]bookstorev1.BookstoreServiceClient, 0, cfg.connections)
	for range cfg.connections {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		conns = append(conns, conn)
		clients = append(clients, bookstorev1.NewBookstoreServiceClient(conn))
	}
	return clients, closeAll, nil
}

// run засевает остаток, прогоняет сценарии и сверяет итог.
func run(ctx context.Context, cfg config, clients []bookstorev1.BookstoreServiceClient) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("no grpc clients")
	}

	initial, err := seedStock(ctx, clients[0], cfg)
	if err != nil {
		return report{}, err
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	forEachJob(ctx, cfg, func(i int) {
		client := clients[i%len(clients)]
		tag := fmt.Sprintf("%s-%s-%d", cfg.runTag, runID, i)
		g.Go(func() error {
			// Ошибка сценария уже попала в коллектор.
			_ = runScenario(ctx, client, cfg, tag, col)
			return nil
		})
	})
	_ = g.Wait()

	result := col.report(startedAt, time.Since(startedAt))

	// Сверка идёт даже после отмены прогона.
	stock, err := reconcileStock(context.WithoutCancel(ctx), clients[0], cfg, initial, col)
	if err != nil {
		return result, err
	}
	result.Stock = &stock
	return result, nil
}

// forEachJob вызывает start для номеров 0, 1, ... пока не исчерпан total,
// не вышло время duration или не отменён ctx. start может блокироваться.
func forEachJob(ctx context.Context, cfg config, start func(int)) {
	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; !cfg.bounded() || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		default:
		}
		start(i)
	}
}

// seedStock возвращает остаток на старте; при cfg.stock > 0 сначала выставляет его.
func seedStock(ctx context.Context, client bookstorev1.BookstoreServiceClient, cfg config) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	if cfg.stock == 0 {
		info, err := client.GetStockInfo(ctx, &bookstorev1.GetStockInfoRequest{ItemId: cfg.itemID})
		if err != nil {
			return 0, fmt.Errorf("read initial stock: %w", err)
		}
		return info.TotalStock, nil
	}

	resp, err := client.UpsertStockItem(ctx, &bookstorev1.UpsertStockItemRequest{
		Id:         cfg.itemID,
		Title:      seededTitle,
		TotalStock: cfg.stock,
	})
	if err != nil {
		return 0, fmt.Errorf("seed stock: %w", err)
	}
	if resp.Item == nil {
		return 0, errors.New("seed stock: empty response")
	}
	return resp.Item.TotalStock, nil
}

// reconcileStock: проданное плюс удерживаемое не превышает начальный остаток,
// и принятое сценариями тоже.
func reconcileStock(
	ctx context.Context,
	client bookstorev1.BookstoreServiceClient,
	cfg config,
	initial int64,
	col *collector,
) (stockReport, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	info, err := client.GetStockInfo(ctx, &bookstorev1.GetStockInfoRequest{ItemId: cfg.itemID})
	if err != nil {
		return stockReport{}, fmt.Errorf("read final stock: %w", err)
	}
	holds, err := client.ListHolds(ctx, &bookstorev1.ListHoldsRequest{ItemId: cfg.itemID})
	if err != nil {
		return stockReport{}, fmt.Errorf("list holds: %w", err)
	}

	s := stockReport{
		ItemID:       cfg.itemID,
		InitialStock: initial,
		FinalStock:   info.TotalStock,
		AcceptedQty:  col.acceptedQty.Load(),
		Accepted:     col.accepted.Load(),
		Rejected:     col.rejected.Load(),
	}
	for _, hold := range holds.Holds {
		s.HeldQty += hold.Qty
	}
	sold := initial - s.FinalStock
	s.Oversold = s.FinalStock < 0 || s.AcceptedQty > initial || sold+s.HeldQty > initial
	return s, nil
}
