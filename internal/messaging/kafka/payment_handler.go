package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

const defaultPaymentFailedReason = "payment failed"

// PaymentProcessor — переходы заказа, которые запускают платёжные события.
type PaymentProcessor interface {
	MarkPaid(ctx context.Context, orderID string) (domain.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
}

// NewPaymentHandler возвращает обработчик topic платёжных событий:
// payment.captured списывает резервы заказа, payment.failed отменяет заказ.
func NewPaymentHandler(orders PaymentProcessor, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-handler")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParsePaymentEvent(message)
		if err != nil {
			return Permanent(err)
		}
		if event.OrderID == "" {
			return Permanent(domain.ErrOrderIDRequired)
		}

		entry := logger.WithFields(log.Fields{
			"order_id":   event.OrderID,
			"event_type": event.EventType,
			"payment_id": event.PaymentID,
		})

		switch event.EventType {
		case EventTypePaymentCaptured:
			_, err = orders.MarkPaid(ctx, event.OrderID)
		case EventTypePaymentFailed:
			reason := event.Reason
			if reason == "" {
				reason = defaultPaymentFailedReason
			}
			_, err = orders.Cancel(ctx, event.OrderID, reason)
		default:
			entry.Debug("payment event ignored")
			return nil
		}

		if err != nil {
			entry.WithError(err).Warn("payment event not applied")
			return classifyPaymentError(err)
		}
		entry.Info("payment event applied")
		return nil
	}
}

// classifyPaymentError отделяет ошибки состояния заказа, которые повтор не исправит.
func classifyPaymentError(err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrOrderStatusTransition),
		errors.Is(err, domain.ErrReservationNotFound),
		domain.IsInvalidInput(err):
		return Permanent(err)
	default:
		return fmt.Errorf("apply payment event: %w", err)
	}
}
