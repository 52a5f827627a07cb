package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// register добавляет коллектор в реестр. Если коллектор с тем же описанием уже
// есть, возвращается он: конструкторы метрик можно вызывать повторно.
func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		panic(fmt.Sprintf("register metric %q: %v", name, err))
	}
	existing, ok := dup.ExistingCollector.(C)
	if !ok {
		panic(fmt.Sprintf("metric %q is registered as %T", name, dup.ExistingCollector))
	}
	return existing
}

func registerCounter(r prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(r, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(r prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(r, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(r prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(r, opts.Name, prometheus.NewGauge(opts))
}

func registerGaugeVec(r prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	return register(r, opts.Name, prometheus.NewGaugeVec(opts, labels))
}

func registerHistogram(r prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(r, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(r prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(r, opts.Name, prometheus.NewHistogramVec(opts, labels))
}
