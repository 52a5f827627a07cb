package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

// opTimeout ограничивает одну операцию репозитория.
const opTimeout = 5 * time.Second

// Коды SQLSTATE, которые репозитории переводят в доменные ошибки.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type poolConfig struct {
	maxConns    int
	maxLifetime time.Duration
	maxIdleTime time.Duration
	pingTimeout time.Duration
	logger      *log.Entry
}

func defaultPoolConfig() poolConfig {
	return poolConfig{
		maxConns:    25,
		maxLifetime: 30 * time.Minute,
		maxIdleTime: 5 * time.Minute,
		pingTimeout: 5 * time.Second,
		logger:      log.WithField("component", "postgres"),
	}
}

type StoreOption func(*poolConfig)

// WithMaxOpenConns ограничивает пул; столько же соединений держится в idle.
func WithMaxOpenConns(n int) StoreOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.maxConns = n
		}
	}
}

func WithStoreLogger(logger *log.Entry) StoreOption {
	return func(c *poolConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Store держит пул соединений database/sql поверх драйвера pgx.
type Store struct {
	db          *sql.DB
	logger      *log.Entry
	pingTimeout time.Duration
}

// Open разбирает dsn, открывает пул и ждёт ответа базы.
func Open(ctx context.Context, dsn string, options ...StoreOption) (*Store, error) {
	cfg := defaultPoolConfig()
	for _, option := range options {
		option(&cfg)
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(cfg.maxConns)
	db.SetMaxIdleConns(cfg.maxConns)
	db.SetConnMaxLifetime(cfg.maxLifetime)
	db.SetConnMaxIdleTime(cfg.maxIdleTime)

	store := &Store{db: db, logger: cfg.logger, pingTimeout: cfg.pingTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store.logger.WithFields(log.Fields{
		"host":      connConfig.Host,
		"database":  connConfig.Database,
		"max_conns": cfg.maxConns,
	}).Debug("postgres pool opened")
	return store, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется проверкой готовности.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withTx коммитит, если fn вернула nil, иначе откатывает.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}
