package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/version"
)

const (
	defaultConsumerRetries    = 3
	defaultConsumerRetryDelay = 200 * time.Millisecond
	maxConsumerRetryDelay     = 5 * time.Second
)

// ErrPermanent помечает ошибки, которые повтор не исправит: сообщение сразу уходит в DLQ.
var ErrPermanent = errors.New("permanent message failure")

func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// MessageHandler применяет одно сообщение. Ошибка, обёрнутая Permanent, не повторяется.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

type deadLetterForwarder interface {
	Forward(originalTopic, key string, value []byte, cause error, retryCount int) error
}

type consumerRecorder interface {
	RecordMessage(result string, took time.Duration)
}

type noopConsumerRecorder struct{}

func (noopConsumerRecorder) RecordMessage(string, time.Duration) {}

type ConsumerOption func(*Consumer)

func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDeadLetters включает перекладку необработанных сообщений в DLQ.
// Без DLQ такое сообщение останавливает claim до следующей сессии.
func WithDeadLetters(dlq *DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) {
		if dlq != nil {
			c.dlq = dlq
		}
	}
}

func WithConsumerMetrics(m *metrics.ConsumerMetrics) ConsumerOption {
	return func(c *Consumer) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMaxRetries задаёт число попыток на одно сообщение, включая первую.
func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithRetryDelay задаёт паузу перед второй попыткой; дальше она удваивается.
func WithRetryDelay(delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// Consumer читает topics в consumer group. Offset помечается только после
// успешной обработки или перекладки в DLQ, поэтому сообщения не теряются.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	dlq        deadLetterForwarder
	metrics    consumerRecorder
	attempts   int
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, options ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.ClientID = version.ClientID(clientID)
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, topics, handler, options...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:      group,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		metrics:    noopConsumerRecorder{},
		attempts:   defaultConsumerRetries,
		retryDelay: defaultConsumerRetryDelay,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Start запускает цикл сессий и чтение ошибок группы. Возвращается сразу.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.consumeLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// consumeLoop открывает новую сессию после каждого rebalance или прерванного claim.
func (c *Consumer) consumeLoop(ctx context.Context) {
	for ctx.Err() == nil {
		err := c.group.Consume(ctx, c.topics, c)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return
		case err != nil:
			c.logger.WithError(err).Error("consumer session failed")
			if !sleepCtx(ctx, c.retryDelay) {
				return
			}
		}
	}
}

func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает partition по порядку. Если сообщение не удалось ни
// применить, ни отправить в DLQ, claim завершается с ошибкой: sarama закрывает
// сессию, и после rejoin чтение продолжится с этого же offset.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(ctx, message); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s/%d offset %d: %w", message.Topic, message.Partition, message.Offset, err)
			}
			session.MarkMessage(message, "")
		}
	}
}

// process возвращает nil, если сообщение применено или лежит в DLQ.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	started := time.Now()
	entry := c.logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	})
	entry.Debug("received message")

	cause := c.handle(ctx, message, entry)
	if cause == nil {
		c.metrics.RecordMessage(metrics.ConsumedOK, time.Since(started))
		return nil
	}
	if ctx.Err() != nil {
		c.metrics.RecordMessage(metrics.ConsumedInterrupted, time.Since(started))
		return ctx.Err()
	}
	if c.dlq == nil {
		c.metrics.RecordMessage(metrics.ConsumedFailed, time.Since(started))
		entry.WithError(cause).Error("message processing failed after all retries")
		return cause
	}

	retryCount := RetryCount(message)
	if err := c.dlq.Forward(message.Topic, string(message.Key), message.Value, cause, retryCount); err != nil {
		c.metrics.RecordMessage(metrics.ConsumedDLQFailed, time.Since(started))
		entry.WithError(err).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}
	c.metrics.RecordMessage(metrics.ConsumedDeadLetter, time.Since(started))
	entry.WithError(cause).WithField("retry_count", retryCount).Info("message sent to DLQ")
	return nil
}

// handle вызывает обработчик до attempts раз. Возвращает последнюю ошибку
// обработчика или ошибку контекста, если ожидание прервано.
func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage, entry *log.Entry) error {
	attempts := max(c.attempts, 1)
	delay := c.retryDelay

	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, message)
		if err == nil || errors.Is(err, ErrPermanent) || attempt >= attempts {
			return err
		}

		entry.WithError(err).WithField("attempt", attempt).Warn("message processing failed, will retry")
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
		delay = min(delay*2, maxConsumerRetryDelay)
	}
}

// sleepCtx ждёт d и возвращает false, если контекст отменён раньше.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func decodeEvent[T any](message *sarama.ConsumerMessage, kind string) (*T, error) {
	var event T
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", kind, err)
	}
	return &event, nil
}

func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	return decodeEvent[OrderEvent](message, "order")
}

func ParsePaymentEvent(message *sarama.ConsumerMessage) (*PaymentEvent, error) {
	return decodeEvent[PaymentEvent](message, "payment")
}
