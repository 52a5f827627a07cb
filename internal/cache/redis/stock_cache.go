package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

const (
	keyPrefix   = "bookstore:stock:"
	defaultTTL  = 30 * time.Second
	pingTimeout = 5 * time.Second
)

// StockCache — read-through кеш сведений об остатке поверх складского учёта.
// Ошибки Redis не ломают чтение: при сбое кеша ответ берётся из учёта.
type StockCache struct {
	client *goredis.Client
	source domain.StockLedger
	ttl    time.Duration
	logger *log.Entry
}

// Option настраивает StockCache.
type Option func(*StockCache)

// WithTTL задаёт время жизни записи кеша.
func WithTTL(ttl time.Duration) Option {
	return func(c *StockCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger задаёт logger кеша.
func WithLogger(logger *log.Entry) Option {
	return func(c *StockCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Dial подключается к Redis по адресу host:port или redis:// URL и проверяет соединение.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	var opts *goredis.Options
	if strings.Contains(addr, "://") {
		parsed, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &goredis.Options{Addr: addr}
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewStockCache создаёт кеш поверх клиента Redis и источника данных.
func NewStockCache(client *goredis.Client, source domain.StockLedger, options ...Option) *StockCache {
	c := &StockCache{
		client: client,
		source: source,
		ttl:    defaultTTL,
		logger: log.WithField("component", "stock-cache"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// StockInfo возвращает запись книги из кеша, при промахе читает учёт и заполняет кеш.
func (c *StockCache) StockInfo(ctx context.Context, itemID string) (domain.StockItem, error) {
	key := keyPrefix + itemID

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var item domain.StockItem
		if jsonErr := json.Unmarshal(raw, &item); jsonErr == nil {
			return item, nil
		}
		c.logger.WithField("item_id", itemID).Warn("stock cache entry is corrupted, reloading")
	case errors.Is(err, goredis.Nil):
	default:
		c.logger.WithError(err).WithField("item_id", itemID).Warn("stock cache read failed")
	}

	item, err := c.source.Get(ctx, itemID)
	if err != nil {
		return domain.StockItem{}, err
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return item, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("item_id", itemID).Warn("stock cache write failed")
	}
	return item, nil
}

// Invalidate удаляет запись книги из кеша.
func (c *StockCache) Invalidate(ctx context.Context, itemID string) error {
	if err := c.client.Del(ctx, keyPrefix+itemID).Err(); err != nil {
		return fmt.Errorf("invalidate stock cache %s: %w", itemID, err)
	}
	return nil
}

// Ping проверяет доступность Redis (health-check).
func (c *StockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis.
func (c *StockCache) Close() error {
	return c.client.Close()
}

var (
	_ domain.StockReader      = (*StockCache)(nil)
	_ domain.CacheInvalidator = (*StockCache)(nil)
)
