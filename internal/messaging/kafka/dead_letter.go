package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// DeadLetter — сообщение из DLQ, разобранное по заголовкам.
// Value и Key совпадают с исходным сообщением, поэтому его можно переотправить как есть.
type DeadLetter struct {
	OriginalTopic string
	Key           string
	Value         []byte
	ErrorMessage  string
	FailedAt      time.Time
	RetryCount    int
}

// rawPublisher — минимальная часть Producer, нужная для DLQ.
type rawPublisher interface {
	PublishRaw(topic, key string, value []byte, headers map[string]string) error
}

// DeadLetterPublisher отправляет необработанные сообщения в DLQ topic.
type DeadLetterPublisher struct {
	producer rawPublisher
	topic    string
}

// NewDeadLetterPublisher создаёт паблишер DLQ поверх producer.
func NewDeadLetterPublisher(producer *Producer) *DeadLetterPublisher {
	return &DeadLetterPublisher{producer: producer, topic: TopicDeadLetterQueue}
}

// Forward кладёт исходное сообщение в DLQ с причиной отказа.
func (p *DeadLetterPublisher) Forward(originalTopic, key string, value []byte, cause error, retryCount int) error {
	if p == nil || p.producer == nil {
		return errors.New("dead letter publisher is not initialized")
	}

	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	headers := map[string]string{
		HeaderOriginalTopic: originalTopic,
		HeaderErrorMessage:  message,
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		HeaderRetryCount:    strconv.Itoa(retryCount),
	}
	if err := p.producer.PublishRaw(p.topic, key, value, headers); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

// PublishDeadLetter отправляет в DLQ outbox-событие, которое не удалось опубликовать.
// Значение кодируется так же, как основным паблишером, чтобы replay дал тот же формат.
func (p *DeadLetterPublisher) PublishDeadLetter(event domain.OutboxMessage, cause error) error {
	body, err := encodeOutboxEnvelope(event)
	if err != nil {
		return err
	}
	return p.Forward(TopicOrderEvents, outboxKey(event), body, cause, 0)
}

// ParseDeadLetter разбирает сообщение из DLQ.
func ParseDeadLetter(message *sarama.ConsumerMessage) (DeadLetter, error) {
	letter := DeadLetter{
		Key:   string(message.Key),
		Value: message.Value,
	}
	for _, header := range message.Headers {
		if header == nil {
			continue
		}
		value := string(header.Value)
		switch string(header.Key) {
		case HeaderOriginalTopic:
			letter.OriginalTopic = value
		case HeaderErrorMessage:
			letter.ErrorMessage = value
		case HeaderFailedAt:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				letter.FailedAt = ts
			}
		case HeaderRetryCount:
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				letter.RetryCount = n
			}
		}
	}
	if letter.OriginalTopic == "" {
		return DeadLetter{}, fmt.Errorf("dlq message at offset %d has no %s header", message.Offset, HeaderOriginalTopic)
	}
	if !json.Valid(letter.Value) {
		return DeadLetter{}, fmt.Errorf("dlq message at offset %d has non-json value", message.Offset)
	}
	return letter, nil
}

// RetryCount извлекает x-retry-count из заголовков сообщения.
func RetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header == nil || string(header.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(header.Value)); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}
