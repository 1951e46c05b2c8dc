// Package metrics provides the counter/summary surface used across sgkd,
// backed by github.com/prometheus/client_golang. It keeps the call shape the
// rest of the codebase expects — Inc(name, labels), ObserveSummary(name,
// labels, value) — on top of a real Prometheus registry, and exposes
// DumpProm for tests that assert on the exported text format.
package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu         sync.Mutex
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	summaries  map[string]*prometheus.SummaryVec
)

func init() {
	reset()
}

func reset() {
	registry = prometheus.NewRegistry()
	counters = make(map[string]*prometheus.CounterVec)
	summaries = make(map[string]*prometheus.SummaryVec)
}

// Reset discards all registered metrics. Intended for tests that need a
// clean slate between cases, mirroring the teacher's qbft metrics tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	reset()
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func counterFor(name string, labels map[string]string) *prometheus.CounterVec {
	cv, ok := counters[name]
	if ok {
		return cv
	}
	cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
	counters[name] = cv
	registry.MustRegister(cv)
	return cv
}

func summaryFor(name string, labels map[string]string) *prometheus.SummaryVec {
	sv, ok := summaries[name]
	if ok {
		return sv
	}
	sv = prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: name}, labelNames(labels))
	summaries[name] = sv
	registry.MustRegister(sv)
	return sv
}

// Inc increments a named counter, creating it (and its label set) on first
// use. A nil/empty labels map yields a label-less counter.
func Inc(name string, labels map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	counterFor(name, labels).With(labels).Inc()
}

// ObserveSummary records a single observation against a named summary.
func ObserveSummary(name string, labels map[string]string, value float64) {
	mu.Lock()
	defer mu.Unlock()
	summaryFor(name, labels).With(labels).Observe(value)
}

// DumpProm renders the current registry in Prometheus text exposition
// format, for tests that assert on specific counter/label substrings.
func DumpProm() string {
	mu.Lock()
	reg := registry
	mu.Unlock()

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	h.ServeHTTP(rec, req)
	return rec.Body.String()
}
