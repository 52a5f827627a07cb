package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
)

const (
	defaultHoldTTL           = 30 * time.Minute
	defaultLockTimeout       = 5 * time.Second
	defaultLedgerTimeout     = 3 * time.Second
	defaultInvalidateTimeout = time.Second
)

// Options задаёт параметры Engine.
type Options struct {
	Logger        *log.Entry
	Cache         domain.CacheInvalidator
	Metrics       *metrics.ReservationMetrics
	HoldTTL       time.Duration
	LockTimeout   time.Duration
	LedgerTimeout time.Duration
	Clock         func() time.Time
}

// Option настраивает Engine.
type Option func(*Options)

// WithLogger задаёт logger движка.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithCache задаёт хук инвалидации кеша после списания.
func WithCache(cache domain.CacheInvalidator) Option {
	return func(opts *Options) { opts.Cache = cache }
}

// WithMetrics включает prometheus-метрики.
func WithMetrics(m *metrics.ReservationMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithHoldTTL задаёт время жизни резерва; 0 отключает истечение.
func WithHoldTTL(ttl time.Duration) Option {
	return func(opts *Options) { opts.HoldTTL = ttl }
}

// WithLockTimeout ограничивает ожидание критической секции.
func WithLockTimeout(timeout time.Duration) Option {
	return func(opts *Options) { opts.LockTimeout = timeout }
}

// WithLedgerTimeout ограничивает одно обращение к складскому учёту.
func WithLedgerTimeout(timeout time.Duration) Option {
	return func(opts *Options) { opts.LedgerTimeout = timeout }
}

// WithClock подменяет источник времени (тесты истечения резервов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// Engine — движок резервирования остатков.
//
// Все изменения таблицы (Reserve, снятие резерва в Commit, Cancel, очистка просроченных)
// выполняются в одной глобальной критической секции, общей для всех книг.
// Validate в неё не входит и даёт рекомендательный ответ.
type Engine struct {
	ledger  domain.StockLedger
	table   *Table
	cache   domain.CacheInvalidator
	metrics *metrics.ReservationMetrics
	logger  *log.Entry
	lock    *semaphore.Weighted

	holdTTL       time.Duration
	lockTimeout   time.Duration
	ledgerTimeout time.Duration
	now           func() time.Time
}

// NewEngine создаёт движок поверх складского учёта и таблицы резервов.
// nil table означает новую пустую таблицу.
func NewEngine(ledger domain.StockLedger, table *Table, options ...Option) *Engine {
	opts := Options{
		HoldTTL:       defaultHoldTTL,
		LockTimeout:   defaultLockTimeout,
		LedgerTimeout: defaultLedgerTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reservation-engine")
	}
	if table == nil {
		table = NewTable()
	}
	if opts.HoldTTL < 0 {
		opts.HoldTTL = 0
	}
	if opts.LockTimeout < 0 {
		opts.LockTimeout = 0
	}
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = defaultLedgerTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		ledger:        ledger,
		table:         table,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		logger:        logger,
		lock:          semaphore.NewWeighted(1),
		holdTTL:       opts.HoldTTL,
		lockTimeout:   opts.LockTimeout,
		ledgerTimeout: opts.LedgerTimeout,
		now:           clock,
	}
}

// Table возвращает таблицу резервов движка.
func (e *Engine) Table() *Table {
	return e.table
}

// Validate считает доступный остаток: сохранённый остаток минус все удерживаемые количества.
// Неизвестная книга — это {false, 0} без ошибки; прочие сбои учёта возвращаются как ошибка.
func (e *Engine) Validate(ctx context.Context, itemID string, qty int64) (domain.Availability, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, e.ledgerTimeout)
	defer cancel()

	item, err := e.ledger.Get(ledgerCtx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			e.logger.WithField("item_id", itemID).Debug("validate: item not found")
			return domain.Availability{ItemID: itemID}, nil
		}
		e.logger.WithError(err).WithField("item_id", itemID).Warn("validate: ledger read failed")
		return domain.Availability{ItemID: itemID}, fmt.Errorf("validate item %s: %w", itemID, err)
	}

	available := item.TotalStock - e.table.Held(itemID, "")
	return domain.Availability{
		ItemID:       itemID,
		IsAvailable:  available >= qty,
		AvailableQty: available,
		Known:        true,
	}, nil
}

// Reserve удерживает qty единиц книги под заказ. Повторный вызов для той же пары
// заменяет количество, а не добавляет к нему. Отказы по остатку возвращаются
// как Success=false; ошибка означает сбой учёта или отмену ctx.
func (e *Engine) Reserve(ctx context.Context, itemID string, qty int64, orderID string) (domain.ReserveResult, error) {
	logger := e.logger.WithFields(log.Fields{
		"item_id":  itemID,
		"order_id": orderID,
		"qty":      qty,
	})

	if msg := validateReserveArgs(itemID, qty, orderID); msg != "" {
		e.recordReserve(metrics.ResultInvalid)
		logger.Warn("reserve rejected: " + msg)
		return domain.ReserveResult{Message: msg, Reason: domain.RejectInvalid}, nil
	}

	release, err := e.acquire(ctx)
	if err != nil {
		e.recordReserve(metrics.ResultError)
		logger.WithError(err).Warn("reserve: lock not acquired")
		return domain.ReserveResult{}, err
	}
	defer release()

	ledgerCtx, cancel := context.WithTimeout(ctx, e.ledgerTimeout)
	item, err := e.ledger.Get(ledgerCtx, itemID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			e.recordReserve(metrics.ResultNotFound)
			logger.Info("reserve rejected: item not found")
			return domain.ReserveResult{Message: fmt.Sprintf("book %s not found", itemID), Reason: domain.RejectNotFound}, nil
		}
		e.recordReserve(metrics.ResultError)
		logger.WithError(err).Error("reserve: ledger read failed")
		return domain.ReserveResult{}, fmt.Errorf("reserve item %s: %w", itemID, err)
	}

	// Собственный прежний резерв заказа не мешает его замене.
	available := item.TotalStock - e.table.Held(itemID, orderID)
	if available < qty {
		if available < 0 {
			available = 0
		}
		e.recordReserve(metrics.ResultInsufficient)
		logger.WithField("available", available).Info("reserve rejected: insufficient stock")
		return domain.ReserveResult{
			Message:      fmt.Sprintf("insufficient stock for book %s: requested %d, available %d", itemID, qty, available),
			AvailableQty: available,
			Reason:       domain.RejectInsufficient,
		}, nil
	}

	now := e.now()
	hold := domain.Hold{ItemID: itemID, OrderID: orderID, Qty: qty, CreatedAt: now}
	if prev, ok := e.table.Get(itemID, orderID); ok {
		hold.CreatedAt = prev.CreatedAt
	}
	if e.holdTTL > 0 {
		hold.ExpiresAt = now.Add(e.holdTTL)
	}
	replaced := e.table.Put(hold)

	e.recordReserve(metrics.ResultSuccess)
	e.refreshActiveHolds()
	logger.WithFields(log.Fields{
		"available": available - qty,
		"replaced":  replaced,
	}).Debug("stock reserved")

	return domain.ReserveResult{
		Success:      true,
		Message:      fmt.Sprintf("reserved %d of book %s", qty, itemID),
		AvailableQty: available - qty,
	}, nil
}

// Commit списывает резерв со склада: снимает его и уменьшает сохранённый остаток на qty.
//
// false без ошибки возвращается, если резерва нет, если qty не совпадает с
// зарезервированным количеством (резерв остаётся) или если остаток оказался меньше qty
// (резерв снимается, учёт не меняется). Ошибка означает сбой записи; резерв тогда
// восстанавливается и Commit можно повторить.
func (e *Engine) Commit(ctx context.Context, itemID string, qty int64, orderID string) (bool, error) {
	logger := e.logger.WithFields(log.Fields{
		"item_id":  itemID,
		"order_id": orderID,
		"qty":      qty,
	})

	release, err := e.acquire(ctx)
	if err != nil {
		e.recordCommit(metrics.ResultError)
		logger.WithError(err).Warn("commit: lock not acquired")
		return false, err
	}

	current, ok := e.table.Get(itemID, orderID)
	if !ok {
		release()
		e.recordCommit(metrics.ResultNotFound)
		logger.Warn("commit failed: reservation not found")
		return false, nil
	}
	if current.Qty != qty {
		release()
		e.recordCommit(metrics.ResultQtyMismatch)
		logger.WithField("held_qty", current.Qty).Warn("commit failed: qty does not match reservation, hold kept")
		return false, nil
	}
	hold, _ := e.table.BeginSettle(itemID, orderID)
	release()

	// Запись в учёт идёт вне критической секции; списываемое количество
	// по-прежнему учитывается в Held, поэтому Reserve не может его перепродать.
	ledgerCtx, cancel := context.WithTimeout(ctx, e.ledgerTimeout)
	started := time.Now()
	_, applyErr := e.ledger.ApplyDelta(ledgerCtx, itemID, -qty, hold.Token)
	cancel()
	if e.metrics != nil {
		e.metrics.ObserveLedgerWrite(time.Since(started))
	}

	// Завершение должно пройти даже при отменённом ctx, иначе количество останется удержанным.
	defer e.acquireSettle()()
	defer e.refreshActiveHolds()

	switch {
	case applyErr == nil, errors.Is(applyErr, domain.ErrDeltaAlreadyApplied):
		e.table.EndSettle(itemID, hold.Token)
		e.recordCommit(metrics.ResultSuccess)
		if applyErr != nil {
			logger.Info("commit: ledger delta was already applied")
		}
		e.invalidate(ctx, itemID, logger)
		return true, nil
	case errors.Is(applyErr, domain.ErrStockUnderflow):
		e.table.EndSettle(itemID, hold.Token)
		e.recordCommit(metrics.ResultUnderflow)
		logger.WithError(applyErr).Error("commit: persisted stock is below committed qty, ledger left unchanged")
		return false, nil
	case errors.Is(applyErr, domain.ErrItemNotFound):
		e.table.EndSettle(itemID, hold.Token)
		e.recordCommit(metrics.ResultNotFound)
		logger.WithError(applyErr).Error("commit: item disappeared from ledger, hold dropped")
		return false, nil
	default:
		e.table.AbortSettle(hold)
		e.recordCommit(metrics.ResultError)
		logger.WithError(applyErr).Error("commit: ledger write failed, hold restored")
		return false, fmt.Errorf("commit item %s for order %s: %w", itemID, orderID, applyErr)
	}
}

// Cancel снимает резерв без изменения складского учёта.
func (e *Engine) Cancel(ctx context.Context, itemID, orderID string) (bool, error) {
	logger := e.logger.WithFields(log.Fields{
		"item_id":  itemID,
		"order_id": orderID,
	})

	release, err := e.acquire(ctx)
	if err != nil {
		e.recordCancel(metrics.ResultError)
		logger.WithError(err).Warn("cancel: lock not acquired")
		return false, err
	}
	defer release()

	hold, ok := e.table.Remove(itemID, orderID)
	if !ok {
		e.recordCancel(metrics.ResultNotFound)
		logger.Warn("cancel failed: reservation not found")
		return false, nil
	}

	e.recordCancel(metrics.ResultSuccess)
	e.refreshActiveHolds()
	logger.WithField("qty", hold.Qty).Debug("reservation canceled")
	return true, nil
}

// ReleaseExpired снимает резервы, срок которых истёк к моменту now.
func (e *Engine) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	if e.holdTTL <= 0 {
		return 0, nil
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	released := 0
	for _, hold := range e.table.Expired(now) {
		if _, ok := e.table.Remove(hold.ItemID, hold.OrderID); !ok {
			continue
		}
		released++
		e.logger.WithFields(log.Fields{
			"item_id":    hold.ItemID,
			"order_id":   hold.OrderID,
			"qty":        hold.Qty,
			"expired_at": hold.ExpiresAt.Format(time.RFC3339),
		}).Info("hold expired and released")
	}

	if released > 0 {
		if e.metrics != nil {
			e.metrics.RecordExpired(released)
		}
		e.refreshActiveHolds()
	}
	return released, nil
}

// StockInfo возвращает запись книги из складского учёта.
func (e *Engine) StockInfo(ctx context.Context, itemID string) (domain.StockItem, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, e.ledgerTimeout)
	defer cancel()

	item, err := e.ledger.Get(ledgerCtx, itemID)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("stock info %s: %w", itemID, err)
	}
	return item, nil
}

// UpsertItem заводит книгу в каталог или меняет её остаток.
// Выполняется в критической секции, чтобы не пересечься с проверкой в Reserve.
func (e *Engine) UpsertItem(ctx context.Context, item domain.StockItem) (domain.StockItem, error) {
	if errs := item.Validate(); len(errs) > 0 {
		return domain.StockItem{}, errors.Join(errs...)
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return domain.StockItem{}, err
	}
	defer release()

	ledgerCtx, cancel := context.WithTimeout(ctx, e.ledgerTimeout)
	defer cancel()

	saved, err := e.ledger.Upsert(ledgerCtx, item)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("upsert item %s: %w", item.ID, err)
	}

	logger := e.logger.WithFields(log.Fields{"item_id": saved.ID, "total_stock": saved.TotalStock})
	if held := e.table.Held(saved.ID, ""); held > saved.TotalStock {
		logger.WithField("held", held).Warn("stock set below currently held quantity")
	}
	e.invalidate(ctx, saved.ID, logger)
	return saved, nil
}

// Holds возвращает активные резервы книги.
func (e *Engine) Holds(itemID string) []domain.Hold {
	return e.table.Holds(itemID)
}

// Snapshot возвращает удерживаемое количество по книгам.
func (e *Engine) Snapshot() map[string]int64 {
	return e.table.Snapshot()
}

func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}

	started := time.Now()
	if err := e.lock.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire reservation lock: %w", err)
	}
	if e.metrics != nil {
		e.metrics.ObserveLockWait(time.Since(started))
	}
	return func() { e.lock.Release(1) }, nil
}

// acquireSettle ждёт критическую секцию без lockTimeout: завершение списания
// не может быть пропущено.
func (e *Engine) acquireSettle() func() {
	started := time.Now()
	// Acquire с контекстом без отмены и дедлайна не возвращает ошибку.
	_ = e.lock.Acquire(context.Background(), 1)
	if e.metrics != nil {
		e.metrics.ObserveLockWait(time.Since(started))
	}
	return func() { e.lock.Release(1) }
}

func (e *Engine) invalidate(ctx context.Context, itemID string, logger *log.Entry) {
	if e.cache == nil {
		return
	}
	invCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultInvalidateTimeout)
	defer cancel()
	if err := e.cache.Invalidate(invCtx, itemID); err != nil {
		logger.WithError(err).Warn("cache invalidation failed")
	}
}

func (e *Engine) refreshActiveHolds() {
	if e.metrics != nil {
		e.metrics.SetActiveHolds(e.table.Len())
	}
}

func (e *Engine) recordReserve(result string) {
	if e.metrics != nil {
		e.metrics.RecordReserve(result)
	}
}

func (e *Engine) recordCommit(result string) {
	if e.metrics != nil {
		e.metrics.RecordCommit(result)
	}
}

func (e *Engine) recordCancel(result string) {
	if e.metrics != nil {
		e.metrics.RecordCancel(result)
	}
}

func validateReserveArgs(itemID string, qty int64, orderID string) string {
	switch {
	case strings.TrimSpace(itemID) == "":
		return "item_id is required"
	case strings.TrimSpace(orderID) == "":
		return "order_id is required"
	case qty <= 0:
		return fmt.Sprintf("qty must be greater than zero, got %d", qty)
	default:
		return ""
	}
}
