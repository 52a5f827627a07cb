// Package idempotency обслуживает хранилище idempotency-ключей gRPC-мутаций.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
)

const (
	taskName = "idempotency"

	defaultInterval   = 10 * time.Minute
	defaultBatchSize  = 500
	defaultMaxBatches = 20
)

// SweepResult описывает один прогон чистки.
type SweepResult struct {
	Deleted int
	Batches int
	// Truncated: прогон упёрся в лимит пачек, часть просроченных ключей осталась до следующего тика.
	Truncated bool
}

// Janitor удаляет ключи, чей ttl истёк.
type Janitor struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	metrics    *metrics.MaintenanceMetrics
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// Option настраивает Janitor.
type Option func(*Janitor)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithMetrics включает метрики прогонов.
func WithMetrics(m *metrics.MaintenanceMetrics) Option {
	return func(j *Janitor) { j.metrics = m }
}

// WithInterval задаёт паузу между прогонами.
func WithInterval(interval time.Duration) Option {
	return func(j *Janitor) {
		if interval > 0 {
			j.interval = interval
		}
	}
}

// WithBatchSize задаёт размер одной пачки удаления.
func WithBatchSize(size int) Option {
	return func(j *Janitor) {
		if size > 0 {
			j.batchSize = size
		}
	}
}

// WithMaxBatches ограничивает число пачек за прогон.
func WithMaxBatches(n int) Option {
	return func(j *Janitor) {
		if n > 0 {
			j.maxBatches = n
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(j *Janitor) {
		if clock != nil {
			j.now = clock
		}
	}
}

// NewJanitor создаёт чистильщик ключей.
func NewJanitor(repo domain.IdempotencyRepository, options ...Option) *Janitor {
	j := &Janitor{
		repo:       repo,
		logger:     log.WithField("component", "idempotency-janitor"),
		interval:   defaultInterval,
		batchSize:  defaultBatchSize,
		maxBatches: defaultMaxBatches,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(j)
	}
	return j
}

// Run чистит ключи сразу и затем по тикеру до отмены ctx.
func (j *Janitor) Run(ctx context.Context) {
	if j.repo == nil {
		j.logger.Warn("idempotency janitor disabled: no repository")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	res, err := j.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		j.record(metrics.RunResultError, res.Deleted)
		j.logger.WithError(err).WithField("deleted", res.Deleted).Warn("idempotency sweep failed")
	case res.Truncated:
		j.record(metrics.RunResultTruncate, res.Deleted)
		j.logger.WithField("deleted", res.Deleted).Info("idempotency sweep hit batch limit")
	default:
		j.record(metrics.RunResultOK, res.Deleted)
		if res.Deleted > 0 {
			j.logger.WithField("deleted", res.Deleted).Debug("idempotency sweep completed")
		}
	}
}

// Sweep удаляет ключи с ttl раньше текущего времени, не более maxBatches пачек.
// Граница фиксируется в начале прогона.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := j.now()

	for res.Batches < j.maxBatches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := j.repo.DeleteExpired(ctx, cutoff, j.batchSize)
		if err != nil {
			return res, err
		}
		res.Batches++
		res.Deleted += n
		if n < j.batchSize {
			return res, nil
		}
	}
	res.Truncated = true
	return res, nil
}

func (j *Janitor) record(result string, deleted int) {
	if j.metrics != nil {
		j.metrics.RecordRun(taskName, result, deleted)
	}
}
