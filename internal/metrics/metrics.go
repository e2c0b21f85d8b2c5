// Package metrics exposes Prometheus counters for batch runs. A nil *Metrics
// is valid and records nothing, so callers never need to guard.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carimages"

// Metrics holds the collectors for one process.
type Metrics struct {
	Tasks         *prometheus.CounterVec
	Resolutions   *prometheus.CounterVec
	BytesWritten  prometheus.Counter
	FetchDuration prometheus.Histogram
	registry      *prometheus.Registry
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Batch tasks processed, by outcome.",
		}, []string{"outcome"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topic_resolutions_total",
			Help:      "Topic lookups against the query endpoint, by result.",
		}, []string{"result"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Image bytes written to the output directory.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of image downloads in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.Tasks, m.Resolutions, m.BytesWritten, m.FetchDuration} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveTask counts one finished task; outcome is the task state
// (skipped, fetched or failed).
func (m *Metrics) ObserveTask(outcome string) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(outcome).Inc()
}

// ObserveResolution counts one topic lookup that reached the network.
func (m *Metrics) ObserveResolution(found bool) {
	if m == nil {
		return
	}
	result := "missing"
	if found {
		result = "found"
	}
	m.Resolutions.WithLabelValues(result).Inc()
}

// ObserveFetch records a download attempt; written is 0 when nothing was saved.
func (m *Metrics) ObserveFetch(elapsed time.Duration, written int64) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(elapsed.Seconds())
	if written > 0 {
		m.BytesWritten.Add(float64(written))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
