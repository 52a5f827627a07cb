package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы обработки входящего сообщения Kafka.
const (
	ConsumedOK          = "ok"
	ConsumedInterrupted = "interrupted"
	ConsumedFailed      = "failed"
	ConsumedDeadLetter  = "dlq"
	ConsumedDLQFailed   = "dlq_failed"
)

// ConsumerMetrics описывает consumer платёжных событий.
type ConsumerMetrics struct {
	messages *prometheus.CounterVec
	attempts prometheus.Histogram
}

func NewConsumerMetrics() *ConsumerMetrics {
	return NewConsumerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewConsumerMetricsWithRegisterer(registerer prometheus.Registerer) *ConsumerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ConsumerMetrics{
		messages: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_kafka_consumed_messages_total",
			Help: "Consumed Kafka messages grouped by processing result.",
		}, []string{"result"}),
		attempts: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bookstore_kafka_handle_duration_seconds",
			Help:    "Time spent handling one Kafka message including retries.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

func (m *ConsumerMetrics) RecordMessage(result string, took time.Duration) {
	m.messages.WithLabelValues(result).Inc()
	m.attempts.Observe(took.Seconds())
}
