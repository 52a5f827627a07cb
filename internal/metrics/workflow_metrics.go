package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics содержит метрики жизненного цикла заказов.
type WorkflowMetrics struct {
	ordersCreated  prometheus.Counter
	ordersRejected prometheus.Counter
	ordersPaid     prometheus.Counter
	ordersCanceled prometheus.Counter
	stepFailures   *prometheus.CounterVec

	stepDuration *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewWorkflowMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewWorkflowMetrics() *WorkflowMetrics {
	return newWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkflowMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_orders_created_total",
			Help: "Orders created with all lines reserved.",
		}),
		ordersRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_orders_rejected_total",
			Help: "Orders rejected because stock could not be validated or reserved.",
		}),
		ordersPaid: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_orders_paid_total",
			Help: "Orders moved to paid with every line committed.",
		}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_orders_canceled_total",
			Help: "Orders canceled with holds released.",
		}),
		stepFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_workflow_step_failures_total",
			Help: "Workflow step failures grouped by step.",
		}, []string{"step"}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "bookstore_workflow_step_duration_seconds",
			Help:    "Duration of workflow steps in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_timeline_events_total",
			Help: "Timeline events recorded.",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_outbox_events_total",
			Help: "Events enqueued into the transactional outbox.",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *WorkflowMetrics) RecordOrderCreated() { m.ordersCreated.Inc() }

// RecordOrderRejected увеличивает счётчик отклонённых заказов.
func (m *WorkflowMetrics) RecordOrderRejected() { m.ordersRejected.Inc() }

// RecordOrderPaid увеличивает счётчик оплаченных заказов.
func (m *WorkflowMetrics) RecordOrderPaid() { m.ordersPaid.Inc() }

// RecordOrderCanceled увеличивает счётчик отменённых заказов.
func (m *WorkflowMetrics) RecordOrderCanceled() { m.ordersCanceled.Inc() }

// RecordStepFailure фиксирует сбой шага.
func (m *WorkflowMetrics) RecordStepFailure(step string) {
	m.stepFailures.WithLabelValues(step).Inc()
}

// RecordStepDuration записывает время выполнения шага.
func (m *WorkflowMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *WorkflowMetrics) RecordTimelineEvent() { m.timelineEvents.Inc() }

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *WorkflowMetrics) RecordOutboxEvent() { m.outboxEvents.Inc() }
