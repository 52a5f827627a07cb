package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/messaging/kafka"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
)

const (
	aggregateOrder = "order"

	saveMaxAttempts = 3
	saveBaseDelay   = 10 * time.Millisecond

	stepCreate = "create"
	stepPay    = "pay"
	stepCancel = "cancel"
)

// Stock — операции движка резервов, которые использует жизненный цикл заказа.
type Stock interface {
	Validate(ctx context.Context, itemID string, qty int64) (domain.Availability, error)
	Reserve(ctx context.Context, itemID string, qty int64, orderID string) (domain.ReserveResult, error)
	Commit(ctx context.Context, itemID string, qty int64, orderID string) (bool, error)
	Cancel(ctx context.Context, itemID, orderID string) (bool, error)
}

// Line — позиция нового заказа.
type Line struct {
	ItemID string
	Qty    int64
}

// Options задаёт параметры Service.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.WorkflowMetrics
	Clock   func() time.Time
	NewID   func() string
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithMetrics включает метрики жизненного цикла заказов.
func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// WithIDGenerator подменяет генератор идентификаторов заказов и позиций.
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) { opts.NewID = newID }
}

// Service ведёт заказ по статусам pending → reserved → paid | canceled
// и держит резервы движка согласованными со статусом заказа.
type Service struct {
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	stock    Stock
	logger   *log.Entry
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
	newID    func() string
}

// NewService создаёт сервис заказов. outbox и timeline могут быть nil.
func NewService(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	stock Stock,
	options ...Option,
) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "order-workflow")
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Service{
		orders:   orders,
		outbox:   outbox,
		timeline: timeline,
		stock:    stock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Clock,
		newID:    opts.NewID,
	}
}

// CreateOrder сохраняет заказ и резервирует все его позиции.
// Позиции сначала проверяются на наличие: заказ с недоступной позицией не сохраняется.
// Если резерв всё же не удался, уже взятые резервы снимаются, а заказ удаляется.
func (s *Service) CreateOrder(ctx context.Context, customerID string, lines []Line) (domain.Order, error) {
	defer s.observe(stepCreate, s.now())

	now := s.now()
	order := domain.Order{
		ID:         s.newID(),
		CustomerID: customerID,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, line := range lines {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        s.newID(),
			ItemID:    line.ItemID,
			Qty:       line.Qty,
			HoldState: domain.HoldStatePending,
			CreatedAt: now,
		})
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.recordRejected()
		return domain.Order{}, errors.Join(errs...)
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": customerID,
	})

	for _, item := range order.Items {
		avail, err := s.stock.Validate(ctx, item.ItemID, item.Qty)
		if err != nil {
			s.recordFailure(stepCreate)
			return domain.Order{}, fmt.Errorf("validate order lines: %w", err)
		}
		if !avail.IsAvailable {
			err = unavailableLine(avail, item.Qty)
			logger.WithError(err).WithField("item_id", item.ItemID).Info("order rejected: line unavailable")
			s.recordRejected()
			return domain.Order{}, err
		}
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.recordFailure(stepCreate)
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	var reserved []domain.OrderItem
	for i, item := range order.Items {
		res, err := s.stock.Reserve(ctx, item.ItemID, item.Qty, order.ID)
		if err == nil && !res.Success {
			err = res.Err()
		}
		if err != nil {
			logger.WithError(err).WithField("item_id", item.ItemID).Info("order rejected: line not reserved")
			s.rollbackCreate(ctx, order.ID, reserved, logger)
			if domain.IsStockResult(err) {
				s.recordRejected()
			} else {
				s.recordFailure(stepCreate)
			}
			return domain.Order{}, err
		}
		order.Items[i].HoldState = domain.HoldStateReserved
		reserved = append(reserved, order.Items[i])
	}

	err := s.save(ctx, &order, func(o *domain.Order) error {
		if !o.Status.CanTransition(domain.OrderStatusReserved) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrOrderStatusTransition, o.Status, domain.OrderStatusReserved)
		}
		o.Status = domain.OrderStatusReserved
		for i := range o.Items {
			o.Items[i].HoldState = domain.HoldStateReserved
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Error("failed to persist reserved order")
		s.rollbackCreate(ctx, order.ID, reserved, logger)
		s.recordFailure(stepCreate)
		return domain.Order{}, err
	}

	s.emit(ctx, &order, domain.TimelineOrderCreated, "",
		kafka.NewOrderEvent(kafka.EventTypeOrderCreated, order.ID, order.CustomerID, string(domain.OrderStatusPending), nil))
	for _, item := range order.Items {
		s.emit(ctx, &order, domain.TimelineStockReserved, "",
			kafka.NewStockEvent(kafka.EventTypeStockReserved, order.ID, item.ItemID, item.Qty))
	}
	s.emitStatus(ctx, &order, kafka.EventTypeOrderReserved)

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	logger.WithField("lines", len(order.Items)).Info("order reserved")
	return order, nil
}

func unavailableLine(avail domain.Availability, qty int64) error {
	if !avail.Known {
		return fmt.Errorf("%w: book %s not found", domain.ErrItemNotFound, avail.ItemID)
	}
	available := max(avail.AvailableQty, 0)
	return fmt.Errorf("%w: insufficient stock for book %s: requested %d, available %d",
		domain.ErrInsufficientStock, avail.ItemID, qty, available)
}

// rollbackCreate снимает уже взятые резервы и удаляет заказ.
// Движок сам частичные резервы не снимает.
func (s *Service) rollbackCreate(ctx context.Context, orderID string, reserved []domain.OrderItem, logger *log.Entry) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, item := range reserved {
		if _, err := s.stock.Cancel(cleanupCtx, item.ItemID, orderID); err != nil {
			logger.WithError(err).WithField("item_id", item.ItemID).Error("failed to release hold during rollback")
		}
	}
	if err := s.orders.Delete(cleanupCtx, orderID); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		logger.WithError(err).Error("failed to delete rejected order")
	}
}

// MarkPaid списывает со склада все позиции и переводит заказ в paid.
// Уже списанные позиции сохраняются, поэтому повторный вызов их пропускает.
func (s *Service) MarkPaid(ctx context.Context, orderID string) (domain.Order, error) {
	defer s.observe(stepPay, s.now())

	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusPaid {
		return order, nil
	}
	if !order.Status.CanTransition(domain.OrderStatusPaid) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrOrderStatusTransition, order.Status, domain.OrderStatusPaid)
	}

	logger := s.logger.WithField("order_id", order.ID)

	for i := range order.Items {
		item := order.Items[i]
		if item.HoldState == domain.HoldStateCommitted {
			continue
		}
		ok, err := s.stock.Commit(ctx, item.ItemID, item.Qty, order.ID)
		if err != nil {
			s.recordFailure(stepPay)
			logger.WithError(err).WithField("item_id", item.ItemID).Warn("commit failed, order stays reserved")
			return domain.Order{}, err
		}
		if !ok {
			s.recordFailure(stepPay)
			logger.WithField("item_id", item.ItemID).Warn("commit rejected, order stays reserved")
			return domain.Order{}, fmt.Errorf("%w: book %s of order %s", domain.ErrReservationNotFound, item.ItemID, order.ID)
		}

		itemID := item.ItemID
		if err := s.save(ctx, &order, func(o *domain.Order) error {
			return setHoldState(o, itemID, domain.HoldStateCommitted)
		}); err != nil {
			s.recordFailure(stepPay)
			logger.WithError(err).WithField("item_id", itemID).Error("failed to record committed line")
			return domain.Order{}, err
		}
		s.emit(ctx, &order, domain.TimelineStockCommitted, "",
			kafka.NewStockEvent(kafka.EventTypeStockCommitted, order.ID, item.ItemID, item.Qty))
	}

	if err := s.save(ctx, &order, func(o *domain.Order) error {
		if o.Status == domain.OrderStatusPaid {
			return nil
		}
		if !o.Status.CanTransition(domain.OrderStatusPaid) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrOrderStatusTransition, o.Status, domain.OrderStatusPaid)
		}
		o.Status = domain.OrderStatusPaid
		return nil
	}); err != nil {
		s.recordFailure(stepPay)
		return domain.Order{}, err
	}

	s.emitStatus(ctx, &order, kafka.EventTypeOrderPaid)
	if s.metrics != nil {
		s.metrics.RecordOrderPaid()
	}
	logger.Info("order paid")
	return order, nil
}

// Cancel снимает все ещё удерживаемые резервы и переводит заказ в canceled.
// Если снять резерв не удалось, статус не меняется.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	defer s.observe(stepCancel, s.now())

	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusCanceled {
		return order, nil
	}
	if !order.Status.CanTransition(domain.OrderStatusCanceled) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrOrderStatusTransition, order.Status, domain.OrderStatusCanceled)
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"reason":   reason,
	})

	var released []domain.OrderItem
	for _, item := range order.Items {
		switch item.HoldState {
		case domain.HoldStateReserved, domain.HoldStatePending:
		case domain.HoldStateCommitted:
			logger.WithField("item_id", item.ItemID).Warn("canceling order with a committed line, stock is not returned")
			continue
		default:
			continue
		}
		canceled, err := s.stock.Cancel(ctx, item.ItemID, order.ID)
		if err != nil {
			s.recordFailure(stepCancel)
			logger.WithError(err).WithField("item_id", item.ItemID).Warn("release failed, order not canceled")
			return domain.Order{}, err
		}
		if !canceled {
			// Резерв мог истечь раньше отмены; остаток уже свободен.
			logger.WithField("item_id", item.ItemID).Debug("hold already gone")
		}
		released = append(released, item)
	}

	if err := s.save(ctx, &order, func(o *domain.Order) error {
		if o.Status == domain.OrderStatusCanceled {
			return nil
		}
		if !o.Status.CanTransition(domain.OrderStatusCanceled) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrOrderStatusTransition, o.Status, domain.OrderStatusCanceled)
		}
		o.Status = domain.OrderStatusCanceled
		for _, item := range released {
			if err := setHoldState(o, item.ItemID, domain.HoldStateReleased); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		s.recordFailure(stepCancel)
		return domain.Order{}, err
	}

	for _, item := range released {
		s.emit(ctx, &order, domain.TimelineStockReleased, reason,
			kafka.NewStockEvent(kafka.EventTypeStockReleased, order.ID, item.ItemID, item.Qty))
	}
	s.emit(ctx, &order, domain.TimelineOrderCanceled, reason,
		kafka.NewOrderEvent(kafka.EventTypeOrderCanceled, order.ID, order.CustomerID, string(order.Status), reasonMetadata(reason)))
	s.emitStatus(ctx, &order, kafka.EventTypeOrderCanceled)

	if s.metrics != nil {
		s.metrics.RecordOrderCanceled()
	}
	logger.WithField("released", len(released)).Info("order canceled")
	return order, nil
}

// Get возвращает заказ.
func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.load(ctx, orderID)
}

// List возвращает заказы клиента, новые первыми.
func (s *Service) List(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if customerID == "" {
		return nil, domain.ErrCustomerRequired
	}
	return s.orders.ListByCustomer(ctx, customerID, limit)
}

// Timeline возвращает события заказа в порядке возникновения.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, orderID)
}

func (s *Service) load(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return s.orders.Get(ctx, orderID)
}

// save применяет mutate к заказу и сохраняет его. При конфликте версий заказ
// перечитывается, mutate применяется к свежей копии, и попытка повторяется.
func (s *Service) save(ctx context.Context, order *domain.Order, mutate func(*domain.Order) error) error {
	for attempt := 0; attempt < saveMaxAttempts; attempt++ {
		next := order.Clone()
		if err := mutate(&next); err != nil {
			return err
		}
		next.UpdatedAt = s.now()

		err := s.orders.Save(ctx, next)
		if err == nil {
			next.Version++
			*order = next
			return nil
		}
		if !domain.IsVersionConflict(err) || attempt == saveMaxAttempts-1 {
			return fmt.Errorf("save order %s: %w", order.ID, err)
		}

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := s.orders.Get(ctx, order.ID)
		if loadErr != nil {
			return fmt.Errorf("reload order %s after conflict: %w", order.ID, loadErr)
		}
		*order = fresh

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(saveBaseDelay * time.Duration(1<<attempt)):
		}
	}
	return domain.ErrOrderVersionConflict
}

func setHoldState(order *domain.Order, itemID string, state domain.HoldState) error {
	for i := range order.Items {
		if order.Items[i].ItemID == itemID {
			order.Items[i].HoldState = state
			return nil
		}
	}
	return fmt.Errorf("order %s has no line for book %s", order.ID, itemID)
}

func (s *Service) emitStatus(ctx context.Context, order *domain.Order, eventType kafka.EventType) {
	s.emit(ctx, order, domain.TimelineOrderStatusChanged, "",
		kafka.NewOrderEvent(eventType, order.ID, order.CustomerID, string(order.Status), nil))
}

// emit пишет событие в outbox и timeline. Сбои только логируются:
// состояние заказа и резервов уже зафиксировано.
func (s *Service) emit(ctx context.Context, order *domain.Order, eventType, reason string, payload any) {
	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"event":    eventType,
	})

	if s.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: aggregateOrder,
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		} else if s.metrics != nil {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: s.now(),
		}
		if err := s.timeline.Append(ctx, event); err != nil {
			logger.WithError(err).Warn("append timeline event failed")
		} else if s.metrics != nil {
			s.metrics.RecordTimelineEvent()
		}
	}
}

func (s *Service) observe(step string, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStepDuration(step, s.now().Sub(started))
	}
}

func (s *Service) recordFailure(step string) {
	if s.metrics != nil {
		s.metrics.RecordStepFailure(step)
	}
}

func (s *Service) recordRejected() {
	if s.metrics != nil {
		s.metrics.RecordOrderRejected()
	}
}

func reasonMetadata(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}
