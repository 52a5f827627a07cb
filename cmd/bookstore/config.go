package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/app"
)

const (
	envGRPCAddr                    = "BOOKSTORE_GRPC_ADDR"
	envMetricsAddr                 = "BOOKSTORE_METRICS_ADDR"
	envLogLevel                    = "BOOKSTORE_LOG_LEVEL"
	envStorageDriver               = "BOOKSTORE_STORAGE_DRIVER"
	envPostgresDSN                 = "BOOKSTORE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "BOOKSTORE_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "BOOKSTORE_REDIS_ADDR"
	envCacheTTL                    = "BOOKSTORE_CACHE_TTL"
	envKafkaBrokers                = "BOOKSTORE_KAFKA_BROKERS"
	envKafkaGroupID                = "BOOKSTORE_KAFKA_GROUP_ID"
	envHoldTTL                     = "BOOKSTORE_HOLD_TTL"
	envHoldSweepInterval           = "BOOKSTORE_HOLD_SWEEP_INTERVAL"
	envLockTimeout                 = "BOOKSTORE_LOCK_TIMEOUT"
	envLedgerTimeout               = "BOOKSTORE_LEDGER_TIMEOUT"
	envOutboxPollInterval          = "BOOKSTORE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "BOOKSTORE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "BOOKSTORE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "BOOKSTORE_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "BOOKSTORE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "BOOKSTORE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
)

type envLookup func(key string) (string, bool)

// envReader накапливает предупреждения: некорректное значение оставляет default.
type envReader struct {
	lookup   envLookup
	warnings []string
}

func (r *envReader) value(key string) (string, bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (r *envReader) warn(key, raw string, err error) {
	r.warnings = append(r.warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
}

func (r *envReader) str(key string, dst *string) {
	if raw, ok := r.value(key); ok {
		*dst = raw
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := parseBool(raw)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = v
}

func (r *envReader) integer(key string, dst *int) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0")
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = v
}

func (r *envReader) duration(key string, dst *time.Duration, allowZero bool) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	valid, rule := func(v time.Duration) bool { return v > 0 }, "must be > 0"
	if allowZero {
		valid, rule = func(v time.Duration) bool { return v >= 0 }, "must be >= 0"
	}
	v, err := parseDuration(raw, valid, rule)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = v
}

// readConfigFromEnv собирает app.Config поверх DefaultConfig.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	r := &envReader{lookup: lookup}

	r.str(envGRPCAddr, &cfg.GRPCAddr)
	r.str(envMetricsAddr, &cfg.MetricsAddr)
	if raw, ok := r.value(envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(raw)
	}
	r.str(envPostgresDSN, &cfg.PostgresDSN)
	r.boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	r.str(envRedisAddr, &cfg.RedisAddr)
	r.duration(envCacheTTL, &cfg.CacheTTL, false)
	r.str(envKafkaBrokers, &cfg.KafkaBrokers)
	r.str(envKafkaGroupID, &cfg.KafkaGroupID)
	// 0 отключает истечение резервов.
	r.duration(envHoldTTL, &cfg.HoldTTL, true)
	r.duration(envHoldSweepInterval, &cfg.HoldSweepInterval, false)
	r.duration(envLockTimeout, &cfg.LockTimeout, true)
	r.duration(envLedgerTimeout, &cfg.LedgerTimeout, false)
	r.duration(envOutboxPollInterval, &cfg.OutboxPollInterval, false)
	r.integer(envOutboxBatchSize, &cfg.OutboxBatchSize)
	r.integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	r.duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, true)
	r.duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, false)
	r.integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	return cfg, r.warnings
}

// readLogLevel возвращает уровень из BOOKSTORE_LOG_LEVEL, по умолчанию info.
func readLogLevel(lookup envLookup) (log.Level, error) {
	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("%s: %w", envLogLevel, err)
	}
	return level, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int: %w", err)
	}
	if !valid(v) {
		return 0, fmt.Errorf("%d %s", v, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if !valid(v) {
		return 0, fmt.Errorf("%s %s", v, rule)
	}
	return v, nil
}
