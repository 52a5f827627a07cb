package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// RetryConfig — параметры повторов обращений к учёту.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// Guarded оборачивает складской учёт повторами и circuit breaker.
// Повтор ApplyDelta безопасен: изменение с тем же ref применяется один раз.
type Guarded struct {
	next    domain.StockLedger
	breaker *CircuitBreaker
	retry   RetryConfig
	logger  *log.Entry
}

// NewGuarded создаёт обёртку. nil breaker отключает размыкание цепи.
func NewGuarded(next domain.StockLedger, breaker *CircuitBreaker, retry RetryConfig, logger *log.Entry) *Guarded {
	if logger == nil {
		logger = log.WithField("component", "stock-ledger")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 1
	}
	return &Guarded{next: next, breaker: breaker, retry: retry, logger: logger}
}

func (g *Guarded) Get(ctx context.Context, itemID string) (domain.StockItem, error) {
	var item domain.StockItem
	err := g.do(ctx, "Get", itemID, func() error {
		var err error
		item, err = g.next.Get(ctx, itemID)
		return err
	})
	return item, err
}

func (g *Guarded) ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (domain.StockItem, error) {
	var item domain.StockItem
	err := g.do(ctx, "ApplyDelta", itemID, func() error {
		var err error
		item, err = g.next.ApplyDelta(ctx, itemID, delta, ref)
		return err
	})
	return item, err
}

func (g *Guarded) Upsert(ctx context.Context, item domain.StockItem) (domain.StockItem, error) {
	var saved domain.StockItem
	err := g.do(ctx, "Upsert", item.ID, func() error {
		var err error
		saved, err = g.next.Upsert(ctx, item)
		return err
	})
	return saved, err
}

func (g *Guarded) do(ctx context.Context, operation, itemID string, fn func() error) error {
	var lastErr error
	delay := g.retry.InitialDelay

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		lastErr = g.call(operation, fn)
		if lastErr == nil || !shouldRetry(lastErr) {
			break
		}

		if attempt < g.retry.MaxAttempts {
			g.logger.WithFields(log.Fields{
				"operation": operation,
				"item_id":   itemID,
				"attempt":   attempt,
				"delay":     delay,
			}).WithError(lastErr).Warn("ledger call failed, retrying")

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, ctx.Err())
			case <-time.After(delay):
			}

			// Экспоненциальная задержка с ограничением
			delay = time.Duration(float64(delay) * g.retry.BackoffFactor)
			if g.retry.MaxDelay > 0 && delay > g.retry.MaxDelay {
				delay = g.retry.MaxDelay
			}
		}
	}

	if lastErr != nil && shouldRetry(lastErr) && !errors.Is(lastErr, domain.ErrLedgerUnavailable) {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrLedgerUnavailable, operation, itemID, lastErr)
	}
	return lastErr
}

func (g *Guarded) call(operation string, fn func() error) error {
	if g.breaker == nil {
		return fn()
	}
	err := g.breaker.Execute(operation, fn, shouldRetry)
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return err
}

// shouldRetry определяет, является ли ошибка временной.
func shouldRetry(err error) bool {
	// Не повторяем при бизнес-логических ошибках
	if domain.IsStockResult(err) ||
		errors.Is(err, domain.ErrStockUnderflow) ||
		errors.Is(err, domain.ErrDeltaAlreadyApplied) ||
		errors.Is(err, domain.ErrStockNegative) ||
		errors.Is(err, domain.ErrItemIDRequired) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Открытый breaker не закроется за время повторов.
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return true
}

var _ domain.StockLedger = (*Guarded)(nil)
