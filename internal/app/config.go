package app

import "time"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr пустой — кеш остатков выключен, чтения идут в учёт.
	RedisAddr string
	CacheTTL  time.Duration

	// KafkaBrokers — список через запятую; пустой отключает outbox relay и приём платежей.
	KafkaBrokers string
	KafkaGroupID string

	HoldTTL           time.Duration
	HoldSweepInterval time.Duration
	LockTimeout       time.Duration
	LedgerTimeout     time.Duration

	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		CacheTTL:                    30 * time.Second,
		KafkaGroupID:                "bookstore-payments",
		HoldTTL:                     30 * time.Minute,
		HoldSweepInterval:           30 * time.Second,
		LockTimeout:                 5 * time.Second,
		LedgerTimeout:               3 * time.Second,
		BreakerMaxFailures:          5,
		BreakerResetTimeout:         10 * time.Second,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 1000,
	}
}
