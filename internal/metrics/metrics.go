// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results
const (
	CycleCompleted   = "completed"
	CycleUnavailable = "source_unavailable"
	CycleRecovery    = "recovery_failed"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	files         *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	inFlight      prometheus.Gauge
}

// New creates collectors registered on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_files_total",
			Help: "Remote images by terminal state.",
		}, []string{"state"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_cycles_total",
			Help: "Poll cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_jobs_in_flight",
			Help: "Jobs dispatched in the current cycle.",
		}),
	}
	m.registry.MustRegister(m.files, m.cycles, m.cycleDuration, m.inFlight)
	return m
}

// ObserveOutcome counts one image in state
func (m *Metrics) ObserveOutcome(state string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(state).Inc()
}

// ObserveCycle counts one cycle and its duration
func (m *Metrics) ObserveCycle(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
}

// SetInFlight sets the number of jobs dispatched in the running cycle
func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
