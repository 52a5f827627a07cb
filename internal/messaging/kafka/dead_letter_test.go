package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

func headerMap(headers []sarama.RecordHeader) map[string]string {
	result := make(map[string]string, len(headers))
	for _, h := range headers {
		result[string(h.Key)] = string(h.Value)
	}
	return result
}

func TestDeadLetterPublisher_PublishDeadLetter(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, TopicDeadLetterQueue, msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		require.Equal(t, "order-7", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var envelope outboxEnvelope
		require.NoError(t, json.Unmarshal(value, &envelope))
		require.Equal(t, "outbox-7", envelope.ID)
		require.Equal(t, "StockReleased", envelope.EventType)

		headers := headerMap(msg.Headers)
		require.Equal(t, TopicOrderEvents, headers[HeaderOriginalTopic])
		require.Equal(t, "broker down", headers[HeaderErrorMessage])
		require.Equal(t, "0", headers[HeaderRetryCount])
		require.NotEmpty(t, headers[HeaderFailedAt])
		return nil
	})

	dlq := NewDeadLetterPublisher(newProducer(mockProducer, nil))
	err := dlq.PublishDeadLetter(domain.OutboxMessage{
		ID:            "outbox-7",
		AggregateType: "order",
		AggregateID:   "order-7",
		EventType:     "StockReleased",
		Payload:       []byte(`{"item_id":"book-1","qty":1}`),
	}, errors.New("broker down"))
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestDeadLetterPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var dlq *DeadLetterPublisher
	require.Error(t, dlq.Forward(TopicPaymentEvents, "k", []byte(`{}`), nil, 0))
}

func TestParseDeadLetter(t *testing.T) {
	t.Parallel()

	msg := &sarama.ConsumerMessage{
		Topic: TopicDeadLetterQueue,
		Key:   []byte("order-1"),
		Value: []byte(`{"event_type":"payment.captured","order_id":"order-1"}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderOriginalTopic), Value: []byte(TopicPaymentEvents)},
			{Key: []byte(HeaderErrorMessage), Value: []byte("order not found")},
			{Key: []byte(HeaderFailedAt), Value: []byte("2026-01-02T03:04:05Z")},
			{Key: []byte(HeaderRetryCount), Value: []byte("2")},
		},
	}

	letter, err := ParseDeadLetter(msg)
	require.NoError(t, err)
	require.Equal(t, TopicPaymentEvents, letter.OriginalTopic)
	require.Equal(t, "order-1", letter.Key)
	require.Equal(t, "order not found", letter.ErrorMessage)
	require.Equal(t, 2, letter.RetryCount)
	require.Equal(t, 2026, letter.FailedAt.Year())
	require.Equal(t, 2, RetryCount(msg))
}

func TestParseDeadLetter_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ParseDeadLetter(&sarama.ConsumerMessage{Value: []byte(`{}`)})
	require.Error(t, err)

	_, err = ParseDeadLetter(&sarama.ConsumerMessage{
		Value:   []byte("not json"),
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderOriginalTopic), Value: []byte(TopicPaymentEvents)}},
	})
	require.Error(t, err)
}

func TestRetryCount_MissingOrBroken(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, RetryCount(&sarama.ConsumerMessage{}))
	require.Equal(t, 0, RetryCount(&sarama.ConsumerMessage{
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("x")}},
	}))
}
