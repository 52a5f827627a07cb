// Command bookstore запускает gRPC-сервис заказов и резервирования книг.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/app"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/version"
)

func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := readLogLevel(lookup)
	if err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}
	log.SetLevel(level)
}

func main() {
	setupLogger(os.LookupEnv)

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"redis":          cfg.RedisAddr != "",
		"kafka":          cfg.KafkaBrokers != "",
		"hold_ttl":       cfg.HoldTTL,
	}).Info("starting bookstore service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("bookstore service failed")
	}

	log.Info("bookstore service stopped")
}
