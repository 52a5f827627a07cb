package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/AndriyBorkovich/OnlineBookstore/internal/health"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/messaging/kafka"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/metrics"
)

// splitBrokers разбирает список брокеров через запятую.
func splitBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// initKafkaProducer создаёт producer, если брокеры заданы. Пустой список — nil, nil.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, logger.WithField("layer", "kafka-producer"))
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// connectKafka поднимает producer. Без Kafka сервис продолжает работу: события копятся
// в outbox, приём платежей выключен, а /healthz отдаёт degraded по компоненту kafka.
func connectKafka(brokers []string, healthHandler *healthcheck.Handler, logger *log.Entry) *kafka.Producer {
	producer, err := initKafkaProducer(brokers, logger)
	if err == nil {
		return producer
	}
	logger.WithError(err).WithField("brokers", brokers).Error("kafka is unavailable, outbox relay and payment intake disabled")
	message := "producer not connected: " + err.Error()
	healthHandler.RegisterChecker("kafka", healthcheck.NewStateChecker("kafka", func() (bool, string) {
		return false, message
	}))
	return nil
}

// startPaymentConsumer подписывает workflow на платёжные события.
// Сообщения, которые не удалось применить, уходят в DLQ.
func startPaymentConsumer(
	ctx context.Context,
	brokers []string,
	groupID string,
	orders kafka.PaymentProcessor,
	dlq *kafka.DeadLetterPublisher,
	logger *log.Entry,
) (*kafka.Consumer, error) {
	consumerLogger := logger.WithField("layer", "payment-consumer")
	consumer, err := kafka.NewConsumer(
		brokers,
		groupID,
		[]string{kafka.TopicPaymentEvents},
		kafka.NewPaymentHandler(orders, consumerLogger),
		kafka.WithConsumerLogger(consumerLogger),
		kafka.WithDeadLetters(dlq),
		kafka.WithConsumerMetrics(metrics.NewConsumerMetrics()),
	)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	return consumer, nil
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
		return
	}
	logger.Info("kafka consumer stopped")
}
