// Package outbox переносит события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// DeadLetterSink принимает события, которые не удалось опубликовать.
type DeadLetterSink interface {
	PublishDeadLetter(event domain.OutboxMessage, cause error) error
}

// BatchResult — итог одного прохода по outbox.
type BatchResult struct {
	Pulled       int
	Sent         int
	DeadLettered int
	// Failed: публикация не удалась, DLQ не настроен, запись помечена failed.
	Failed int
	// Deferred: запись осталась pending до следующего прохода.
	Deferred int
}

func (r BatchResult) settled() int { return r.Sent + r.DeadLettered + r.Failed }

// Relay публикует pending-события. События одного заказа уходят в порядке записи:
// если событие заказа не удалось ни опубликовать, ни отправить в DLQ,
// остальные события этого заказа в текущем проходе откладываются.
type Relay struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       DeadLetterSink
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics
	now       func() time.Time

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseDelay    time.Duration
}

// Option настраивает Relay.
type Option func(*Relay)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics включает метрики.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithDeadLetterSink задаёт DLQ для событий после исчерпания попыток.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(r *Relay) { r.dlq = sink }
}

// WithPollInterval задаёт паузу между проходами при пустой очереди.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт размер выборки.
func WithBatchSize(size int) Option {
	return func(r *Relay) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(attempts int) Option {
	return func(r *Relay) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(r *Relay) {
		if delay >= 0 {
			r.baseDelay = delay
		}
	}
}

// WithClock подменяет источник времени для возраста очереди.
func WithClock(clock func() time.Time) Option {
	return func(r *Relay) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewRelay создаёт relay.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Relay {
	r := &Relay{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-relay"),
		now:          time.Now,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Run публикует события до отмены ctx. Полная выборка обрабатывается
// следующим проходом сразу, без ожидания тикера.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("outbox relay disabled: repository or publisher missing")
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		res := r.ProcessOnce(ctx)
		if res.Pulled == r.batchSize && res.settled() > 0 && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce обрабатывает одну выборку pending-событий.
func (r *Relay) ProcessOnce(ctx context.Context) BatchResult {
	var res BatchResult
	if ctx.Err() != nil {
		return res
	}
	defer r.refreshBacklog(ctx)

	events, err := r.repo.PullPending(ctx, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("outbox pull failed")
		return res
	}
	res.Pulled = len(events)

	blocked := make(map[string]struct{})
	for _, event := range events {
		if ctx.Err() != nil {
			return res
		}
		entry := r.logger.WithFields(log.Fields{
			"outbox_id":  event.ID,
			"order_id":   event.AggregateID,
			"event_type": event.EventType,
		})

		if _, ok := blocked[event.AggregateID]; ok {
			res.Deferred++
			r.record(metrics.OutboxDeferred)
			continue
		}

		publishErr := r.publish(ctx, event)
		switch {
		case publishErr == nil:
			res.Sent++
			r.record(metrics.OutboxSent)
			if err := r.repo.MarkSent(ctx, event.ID); err != nil {
				entry.WithError(err).Warn("mark outbox event sent failed")
			}
			continue
		case ctx.Err() != nil:
			return res
		}

		entry = entry.WithError(publishErr)
		if r.dlq != nil {
			if err := r.dlq.PublishDeadLetter(event, publishErr); err != nil {
				// Событие не теряем: остаётся pending, заказ ждёт следующего прохода.
				blocked[event.AggregateID] = struct{}{}
				res.Deferred++
				r.record(metrics.OutboxSinkFailure)
				entry.WithField("dlq_error", err.Error()).Error("outbox event kept pending: publish and dead letter both failed")
				continue
			}
			res.DeadLettered++
			r.record(metrics.OutboxDeadLetter)
			entry.Warn("outbox event moved to dead letter queue")
		} else {
			res.Failed++
			r.record(metrics.OutboxFailed)
			entry.Error("outbox event failed, no dead letter queue configured")
		}
		if err := r.repo.MarkFailed(ctx, event.ID); err != nil {
			entry.WithField("mark_error", err.Error()).Warn("mark outbox event failed")
		}
	}
	return res
}

func (r *Relay) publish(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if lastErr = r.publisher.Publish(event); lastErr == nil {
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}
		r.record(metrics.OutboxRetry)

		delay := r.backoff(attempt)
		if delay == 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", event.EventType, r.maxAttempts, lastErr)
}

// backoff удваивает паузу с каждой попыткой, не больше maxRetryDelay.
func (r *Relay) backoff(attempt int) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	delay := r.baseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (r *Relay) refreshBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Debug("outbox stats unavailable")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = r.now().Sub(stats.OldestPendingAt)
	}
	r.metrics.SetBacklog(stats.PendingCount, age)
}

func (r *Relay) record(result string) {
	if r.metrics != nil {
		r.metrics.RecordPublish(result)
	}
}
