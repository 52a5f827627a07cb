package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	bookstorev1 "github.com/AndriyBorkovich/OnlineBookstore/api/bookstore/v1"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/cache"
	rediscache "github.com/AndriyBorkovich/OnlineBookstore/internal/cache/redis"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	healthcheck "github.com/AndriyBorkovich/OnlineBookstore/internal/health"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/ledger"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/messaging/kafka"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/reservation"
	grpcsvc "github.com/AndriyBorkovich/OnlineBookstore/internal/service/grpc"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/service/idempotency"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/service/outbox"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/version"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/workflow"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает сервис и блокируется до отмены ctx или падения gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	healthHandler := healthcheck.NewHandler(version.Version())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("postgres", deps.storageChecker)
	}

	breaker := ledger.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, logger.WithField("layer", "ledger-breaker"))
	stockLedger := ledger.NewGuarded(deps.ledger, breaker, ledger.DefaultRetryConfig(), logger.WithField("layer", "ledger"))
	healthHandler.RegisterChecker("ledger", healthcheck.NewStateChecker("ledger", func() (bool, string) {
		state := breaker.State()
		return state != ledger.CircuitOpen, "circuit " + state.String()
	}))

	var (
		reader      domain.StockReader      = cache.Direct{Ledger: stockLedger}
		invalidator domain.CacheInvalidator = cache.Noop{}
	)
	if cfg.RedisAddr != "" {
		client, err := rediscache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).Warn("redis is unavailable, stock reads go to the ledger")
		} else {
			stockCache := rediscache.NewStockCache(client, stockLedger,
				rediscache.WithTTL(cfg.CacheTTL),
				rediscache.WithLogger(logger.WithField("layer", "stock-cache")),
			)
			defer func() {
				if err := stockCache.Close(); err != nil {
					logger.WithError(err).Warn("failed to close redis client")
				}
			}()
			reader, invalidator = stockCache, stockCache
			healthHandler.RegisterChecker("redis", healthcheck.NewOptionalPingChecker("redis", stockCache.Ping))
			logger.WithField("addr", cfg.RedisAddr).Info("redis stock cache enabled")
		}
	}

	engine := reservation.NewEngine(stockLedger, reservation.NewTable(),
		reservation.WithLogger(logger.WithField("layer", "reservation")),
		reservation.WithCache(invalidator),
		reservation.WithMetrics(metrics.NewReservationMetrics()),
		reservation.WithHoldTTL(cfg.HoldTTL),
		reservation.WithLockTimeout(cfg.LockTimeout),
		reservation.WithLedgerTimeout(cfg.LedgerTimeout),
	)

	orders := workflow.NewService(deps.repo, deps.outboxRepo, deps.timelineRepo, engine,
		workflow.WithLogger(logger.WithField("layer", "workflow")),
		workflow.WithMetrics(metrics.NewWorkflowMetrics()),
	)

	// Producer закрывается после остановки воркеров, которые через него публикуют.
	brokers := splitBrokers(cfg.KafkaBrokers)
	producer := connectKafka(brokers, healthHandler, logger)
	defer closeKafkaProducer(producer, logger)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()
	runWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workersCtx)
		}()
	}

	if cfg.HoldTTL > 0 {
		expiry := reservation.NewExpiryWorker(engine,
			reservation.WithSweepInterval(cfg.HoldSweepInterval),
			reservation.WithSweepLogger(logger.WithField("layer", "hold-expiry")),
		)
		runWorker(expiry.Run)
	}

	janitor := idempotency.NewJanitor(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-janitor")),
		idempotency.WithMetrics(metrics.NewMaintenanceMetrics()),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	runWorker(janitor.Run)

	if producer != nil {
		dlq := kafka.NewDeadLetterPublisher(producer)
		relay := outbox.NewRelay(deps.outboxRepo, kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithMetrics(metrics.NewOutboxMetrics()),
			outbox.WithDeadLetterSink(dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		runWorker(relay.Run)

		consumer, err := startPaymentConsumer(workersCtx, brokers, cfg.KafkaGroupID, orders, dlq, logger)
		if err != nil {
			logger.WithError(err).Warn("payment consumer is disabled")
		} else {
			defer stopKafkaConsumer(consumer, logger)
		}
	} else {
		logger.Info("kafka is not configured, outbox events stay in storage")
	}

	service := grpcsvc.NewBookstoreService(engine, reader, orders, deps.idempotencyRepo, logger.WithField("layer", "grpc"))
	grpcServer, healthServer := newGRPCServer(service, logger)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", lis.Addr().String()).Info("grpc server listening")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping grpc server")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newGRPCServer(service bookstorev1.BookstoreServiceServer, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	bookstorev1.RegisterBookstoreServiceServer(server, service)
	grpcMetrics.InitializeMetrics(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(bookstorev1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// stopGRPC ждёт завершения активных вызовов не дольше shutdownTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out, forcing grpc server stop")
		server.Stop()
	}
}

// startMetricsServer обслуживает /metrics и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("addr", addr).Info("metrics and health endpoints listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
