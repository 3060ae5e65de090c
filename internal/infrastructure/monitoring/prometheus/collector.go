// Package prometheus wraps the Prometheus client behind small interfaces so
// application code can record metrics without importing the client library,
// and tests can substitute a no-op collector.
package prometheus

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector defines the interface for metrics registration.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
}

// CounterVec wraps prometheus.CounterVec.
type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

// Counter wraps prometheus.Counter.
type Counter interface {
	Inc()
	Add(delta float64)
}

// GaugeVec wraps prometheus.GaugeVec.
type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

// Gauge wraps prometheus.Gauge.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

// HistogramVec wraps prometheus.HistogramVec.
type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

// Histogram wraps prometheus.Histogram.
type Histogram interface {
	Observe(value float64)
}

// namespace prefixes every metric emitted by this process.
const namespace = "fiscore"

type promCollector struct {
	registry *prometheus.Registry
	mu       sync.Mutex
}

// NewCollector creates a MetricsCollector backed by a dedicated registry
// (process collectors included).
func NewCollector() MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &promCollector{registry: reg}
}

type promCounterVec struct{ v *prometheus.CounterVec }

func (c promCounterVec) WithLabelValues(lvs ...string) Counter {
	return c.v.WithLabelValues(lvs...)
}

type promGaugeVec struct{ v *prometheus.GaugeVec }

func (g promGaugeVec) WithLabelValues(lvs ...string) Gauge {
	return g.v.WithLabelValues(lvs...)
}

type promHistogramVec struct{ v *prometheus.HistogramVec }

func (h promHistogramVec) WithLabelValues(lvs ...string) Histogram {
	return h.v.WithLabelValues(lvs...)
}

func (c *promCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: name, Help: help,
	}, labels)
	c.registry.MustRegister(v)
	return promCounterVec{v: v}
}

func (c *promCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, labels)
	c.registry.MustRegister(v)
	return promGaugeVec{v: v}
}

func (c *promCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: name, Help: help, Buckets: buckets,
	}, labels)
	c.registry.MustRegister(v)
	return promHistogramVec{v: v}
}

func (c *promCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ─────────────────────────────────────────────────────────────────────────────
// No-op collector for tests
// ─────────────────────────────────────────────────────────────────────────────

type nopCollector struct{}
type nopCounterVec struct{}
type nopGaugeVec struct{}
type nopHistogramVec struct{}
type nopMetric struct{}

func (nopMetric) Inc()            {}
func (nopMetric) Add(float64)     {}
func (nopMetric) Set(float64)     {}
func (nopMetric) Dec()            {}
func (nopMetric) Observe(float64) {}

func (nopCounterVec) WithLabelValues(...string) Counter     { return nopMetric{} }
func (nopGaugeVec) WithLabelValues(...string) Gauge         { return nopMetric{} }
func (nopHistogramVec) WithLabelValues(...string) Histogram { return nopMetric{} }

func (nopCollector) RegisterCounter(string, string, ...string) CounterVec { return nopCounterVec{} }
func (nopCollector) RegisterGauge(string, string, ...string) GaugeVec     { return nopGaugeVec{} }
func (nopCollector) RegisterHistogram(string, string, []float64, ...string) HistogramVec {
	return nopHistogramVec{}
}
func (nopCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// NewNopCollector returns a MetricsCollector that records nothing.
func NewNopCollector() MetricsCollector { return nopCollector{} }
