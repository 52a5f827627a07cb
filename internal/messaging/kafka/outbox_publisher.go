package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// HeaderEventType дублирует тип события в заголовке, чтобы потребители могли фильтровать без разбора тела.
const HeaderEventType = "x-event-type"

// outboxEnvelope — формат сообщения, публикуемого из outbox.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Publish отправляет сообщение с ключом по заказу, чтобы события одного заказа шли в одну партицию.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	body, err := encodeOutboxEnvelope(event)
	if err != nil {
		return err
	}

	return p.producer.PublishRaw(p.topic, outboxKey(event), body, map[string]string{HeaderEventType: event.EventType})
}

func outboxKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

func encodeOutboxEnvelope(event domain.OutboxMessage) ([]byte, error) {
	var payload json.RawMessage
	if len(event.Payload) > 0 {
		payload = json.RawMessage(event.Payload)
	}
	body, err := json.Marshal(outboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox envelope: %w", err)
	}
	return body, nil
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
