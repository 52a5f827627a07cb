package metrics

import "github.com/prometheus/client_golang/prometheus"

// Результаты фоновых прогонов обслуживания.
const (
	RunResultOK       = "ok"
	RunResultError    = "error"
	RunResultTruncate = "truncated"
)

// MaintenanceMetrics описывает фоновые чистки: idempotency-ключи и подобное.
type MaintenanceMetrics struct {
	runs        *prometheus.CounterVec
	deleted     *prometheus.CounterVec
	lastDeleted *prometheus.GaugeVec
}

// NewMaintenanceMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewMaintenanceMetrics() *MaintenanceMetrics {
	return NewMaintenanceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMaintenanceMetricsWithRegisterer создаёт метрики в переданном registerer.
func NewMaintenanceMetricsWithRegisterer(registerer prometheus.Registerer) *MaintenanceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &MaintenanceMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_maintenance_runs_total",
			Help: "Background maintenance runs grouped by task and result.",
		}, []string{"task", "result"}),
		deleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_maintenance_deleted_total",
			Help: "Rows removed by background maintenance grouped by task.",
		}, []string{"task"}),
		lastDeleted: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "bookstore_maintenance_last_deleted",
			Help: "Rows removed by the last maintenance run grouped by task.",
		}, []string{"task"}),
	}
}

// RecordRun фиксирует завершённый прогон задачи.
func (m *MaintenanceMetrics) RecordRun(task, result string, deleted int) {
	m.runs.WithLabelValues(task, result).Inc()
	if result == RunResultError {
		return
	}
	m.deleted.WithLabelValues(task).Add(float64(deleted))
	m.lastDeleted.WithLabelValues(task).Set(float64(deleted))
}
