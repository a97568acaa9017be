// Package metrics provides Prometheus metrics for the pipeline job.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duckdb_pipe"

// Metrics holds all pipeline metrics. A nil or disabled Metrics is safe to
// use; every Record method becomes a no-op.
type Metrics struct {
	// Counters
	CyclesTotal   *prometheus.CounterVec
	DatasetsTotal *prometheus.CounterVec
	RowsLoaded    *prometheus.CounterVec

	// Histograms
	CycleDuration prometheus.Histogram
	FetchDuration prometheus.Histogram
	LoadDuration  *prometheus.HistogramVec

	// Gauges
	LastCycle prometheus.Gauge

	registry *prometheus.Registry
	enabled  bool
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
}

// New creates a metrics instance on a private registry.
func New(cfg Config) *Metrics {
	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}
	if !cfg.Enabled {
		return m
	}

	m.CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Pipeline cycles by outcome",
		},
		[]string{"status"},
	)
	m.DatasetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_total",
			Help:      "Datasets processed by outcome",
		},
		[]string{"status"},
	)
	m.RowsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows merged into the store per table",
		},
		[]string{"table"},
	)

	m.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full fetch and load cycle",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	m.FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of the event fetch",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	m.LoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of a single dataset load",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	m.LastCycle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix time the last cycle finished",
	})

	m.registry.MustRegister(
		m.CyclesTotal,
		m.DatasetsTotal,
		m.RowsLoaded,
		m.CycleDuration,
		m.FetchDuration,
		m.LoadDuration,
		m.LastCycle,
	)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m != nil && m.enabled
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(success bool, duration time.Duration, finished time.Time) {
	if !m.IsEnabled() {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.LastCycle.Set(float64(finished.Unix()))
}

// RecordFetchDuration observes how long the fetch took.
func (m *Metrics) RecordFetchDuration(duration time.Duration) {
	if m.IsEnabled() {
		m.FetchDuration.Observe(duration.Seconds())
	}
}

// RecordDataset counts a dataset outcome: loaded, skipped or failed.
func (m *Metrics) RecordDataset(status string) {
	if m.IsEnabled() {
		m.DatasetsTotal.WithLabelValues(status).Inc()
	}
}

// RecordLoad records rows and duration of a successful load.
func (m *Metrics) RecordLoad(table string, rows int64, duration time.Duration) {
	if !m.IsEnabled() {
		return
	}
	m.RowsLoaded.WithLabelValues(table).Add(float64(rows))
	m.LoadDuration.WithLabelValues(table).Observe(duration.Seconds())
}
