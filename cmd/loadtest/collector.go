package main

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// scenarioMethod — псевдо-метод, под которым учитывается сценарий целиком.
const scenarioMethod = "scenario"

// outcome — исход сценария с точки зрения остатка.
type outcome int

const (
	outcomeNone outcome = iota
	outcomeAccepted
	outcomeRejected
)

type callStats struct {
	codes     map[codes.Code]int64
	latencies []time.Duration
}

// collector потокобезопасно копит вызовы и исходы сценариев.
type collector struct {
	mu    sync.Mutex
	calls map[string]*callStats

	accepted    atomic.Int64
	rejected    atomic.Int64
	acceptedQty atomic.Int64
}

func newCollector() *collector {
	return &collector{calls: make(map[string]*callStats)}
}

func (c *collector) observe(method string, latency time.Duration, err error) {
	code := status.Code(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.calls[method]
	if stats == nil {
		stats = &callStats{codes: make(map[codes.Code]int64)}
		c.calls[method] = stats
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, latency)
}

func (c *collector) settle(o outcome, qty int64) {
	switch o {
	case outcomeAccepted:
		c.accepted.Add(1)
		c.acceptedQty.Add(qty)
	case outcomeRejected:
		c.rejected.Add(1)
	}
}

func (c *collector) method(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.calls[name]
	if !ok {
		return methodReport{}, false
	}
	return stats.report(), true
}

func (c *collector) report(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(c.calls)),
	}
	for name, stats := range c.calls {
		r.Methods[name] = stats.report()
	}

	if scenarios, ok := r.Methods[scenarioMethod]; ok {
		r.TotalScenarios = scenarios.Calls
		r.SuccessScenarios = scenarios.Success
		r.FailedScenarios = scenarios.Failed
		r.ErrorRate = scenarios.ErrorRate
		r.ScenarioLatencyMs = scenarios.LatencyMs
	}
	if elapsed > 0 {
		r.RPS = float64(r.TotalScenarios) / elapsed.Seconds()
	}
	return r
}

func (s *callStats) report() methodReport {
	m := methodReport{
		Codes:     make(map[string]int64, len(s.codes)),
		LatencyMs: summarize(s.latencies),
	}
	for code, n := range s.codes {
		m.Codes[code.String()] = n
		m.Calls += n
		if code == codes.OK {
			m.Success += n
		}
	}
	m.Failed = m.Calls - m.Success
	if m.Calls > 0 {
		m.ErrorRate = float64(m.Failed) / float64(m.Calls)
	}
	return m
}

func summarize(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return latencySummary{
		Min: millis(sorted[0]),
		Max: millis(sorted[len(sorted)-1]),
		Avg: millis(sum / time.Duration(len(sorted))),
		P50: millis(nearestRank(sorted, 50)),
		P95: millis(nearestRank(sorted, 95)),
		P99: millis(nearestRank(sorted, 99)),
	}
}

// nearestRank: наименьшее значение, не меньше которого p процентов выборки.
func nearestRank(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	return sorted[max(rank, 1)-1]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
