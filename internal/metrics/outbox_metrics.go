package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы публикации outbox-события.
const (
	OutboxSent        = "sent"
	OutboxRetry       = "retry"
	OutboxDeadLetter  = "dead_letter"
	OutboxFailed      = "failed"
	OutboxDeferred    = "deferred"
	OutboxSinkFailure = "dlq_failed"
)

// OutboxMetrics описывает relay transactional outbox.
type OutboxMetrics struct {
	publishes *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики в переданном registerer.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		publishes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_outbox_publish_total",
			Help: "Outbox publish outcomes grouped by result.",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bookstore_outbox_pending_records",
			Help: "Pending records in the transactional outbox.",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bookstore_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record in seconds.",
		}),
	}
}

// RecordPublish фиксирует исход публикации.
func (m *OutboxMetrics) RecordPublish(result string) {
	m.publishes.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст очереди.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	m.pending.Set(float64(pending))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestAge.Set(oldestAge.Seconds())
}
