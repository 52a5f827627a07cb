package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций движка резервов для label "result".
const (
	ResultSuccess      = "success"
	ResultInsufficient = "insufficient"
	ResultNotFound     = "not_found"
	ResultInvalid      = "invalid"
	ResultQtyMismatch  = "qty_mismatch"
	ResultUnderflow    = "underflow"
	ResultError        = "error"
)

// ReservationMetrics содержит метрики движка резервов.
type ReservationMetrics struct {
	reserveResults *prometheus.CounterVec
	commitResults  *prometheus.CounterVec
	cancelResults  *prometheus.CounterVec
	expiredHolds   prometheus.Counter

	activeHolds  prometheus.Gauge
	lockWait     prometheus.Histogram
	ledgerWrites prometheus.Histogram
}

// NewReservationMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewReservationMetrics() *ReservationMetrics {
	return NewReservationMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewReservationMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewReservationMetricsWithRegisterer(registerer prometheus.Registerer) *ReservationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReservationMetrics{
		reserveResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_reserve_total",
			Help: "Reserve calls grouped by result.",
		}, []string{"result"}),
		commitResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_commit_total",
			Help: "Commit calls grouped by result.",
		}, []string{"result"}),
		cancelResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_cancel_total",
			Help: "Cancel calls grouped by result.",
		}, []string{"result"}),
		expiredHolds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_holds_expired_total",
			Help: "Holds released by the expiry sweeper.",
		}),
		activeHolds: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bookstore_active_holds",
			Help: "Number of holds currently present in the reservation table.",
		}),
		lockWait: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bookstore_reservation_lock_wait_seconds",
			Help:    "Time spent waiting for the reservation critical section.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ledgerWrites: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bookstore_ledger_write_seconds",
			Help:    "Duration of stock ledger writes performed by commit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordReserve фиксирует результат Reserve.
func (m *ReservationMetrics) RecordReserve(result string) {
	m.reserveResults.WithLabelValues(result).Inc()
}

// RecordCommit фиксирует результат Commit.
func (m *ReservationMetrics) RecordCommit(result string) {
	m.commitResults.WithLabelValues(result).Inc()
}

// RecordCancel фиксирует результат Cancel.
func (m *ReservationMetrics) RecordCancel(result string) {
	m.cancelResults.WithLabelValues(result).Inc()
}

// RecordExpired увеличивает счётчик просроченных резервов.
func (m *ReservationMetrics) RecordExpired(n int) {
	m.expiredHolds.Add(float64(n))
}

// SetActiveHolds выставляет текущее число резервов.
func (m *ReservationMetrics) SetActiveHolds(n int) {
	m.activeHolds.Set(float64(n))
}

// ObserveLockWait записывает время ожидания критической секции.
func (m *ReservationMetrics) ObserveLockWait(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}

// ObserveLedgerWrite записывает длительность записи в складской учёт.
func (m *ReservationMetrics) ObserveLedgerWrite(d time.Duration) {
	m.ledgerWrites.Observe(d.Seconds())
}
