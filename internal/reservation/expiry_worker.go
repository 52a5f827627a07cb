package reservation

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultSweepInterval = time.Minute

// expirer — часть Engine, нужная воркеру.
type expirer interface {
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}

// ExpiryWorker периодически снимает просроченные резервы.
type ExpiryWorker struct {
	engine   expirer
	logger   *log.Entry
	interval time.Duration
	now      func() time.Time
}

// ExpiryOption настраивает ExpiryWorker.
type ExpiryOption func(*ExpiryWorker)

// WithSweepInterval задаёт интервал между проходами.
func WithSweepInterval(interval time.Duration) ExpiryOption {
	return func(w *ExpiryWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithSweepLogger задаёт logger воркера.
func WithSweepLogger(logger *log.Entry) ExpiryOption {
	return func(w *ExpiryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithSweepClock подменяет источник времени.
func WithSweepClock(clock func() time.Time) ExpiryOption {
	return func(w *ExpiryWorker) {
		if clock != nil {
			w.now = clock
		}
	}
}

// NewExpiryWorker создаёт воркер очистки просроченных резервов.
func NewExpiryWorker(engine expirer, options ...ExpiryOption) *ExpiryWorker {
	w := &ExpiryWorker{
		engine:   engine,
		logger:   log.WithField("component", "hold-expiry-worker"),
		interval: defaultSweepInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run выполняет проходы до отмены ctx.
func (w *ExpiryWorker) Run(ctx context.Context) {
	if w.engine == nil {
		w.logger.Warn("hold expiry worker is disabled: engine is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один проход и возвращает число снятых резервов.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) int {
	released, err := w.engine.ReleaseExpired(ctx, w.now())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.WithError(err).Warn("hold expiry sweep failed")
		}
		return 0
	}
	if released > 0 {
		w.logger.WithField("released", released).Info("expired holds released")
	}
	return released
}
