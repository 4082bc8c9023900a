// Package metrics exposes Prometheus metrics for knowledge-base queries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coursekb"

// Metrics holds the query metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal  *prometheus.CounterVec   // By intent and outcome (ok, or the error kind)
	queryDuration *prometheus.HistogramVec // By intent
	rowsReturned  *prometheus.HistogramVec // By intent
	rowsDropped   *prometheus.CounterVec   // By intent and reason

	uploadsTotal *prometheus.CounterVec // By status (ok/error)
	storeUp      prometheus.Gauge
}

// New creates the metrics and registers them, along with the Go and
// process collectors, on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of knowledge-base queries by intent and outcome",
		}, []string{"intent", "outcome"}),

		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query duration including binding and normalization",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"intent"}),

		rowsReturned: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "rows",
			Help:      "Records returned per query after normalization",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"intent"}),

		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "rows_dropped_total",
			Help:      "Result rows dropped during normalization by reason",
		}, []string{"intent", "reason"}),

		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "uploads_total",
			Help:      "Catalog uploads by status",
		}, []string{"status"}),

		storeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "1 if the last store ping succeeded, 0 otherwise",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.queriesTotal,
		m.queryDuration,
		m.rowsReturned,
		m.rowsDropped,
		m.uploadsTotal,
		m.storeUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordQuery records one query. outcome is "ok" or an error kind name.
func (m *Metrics) RecordQuery(intent, outcome string, records int, duration time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(intent, outcome).Inc()
	m.queryDuration.WithLabelValues(intent).Observe(duration.Seconds())
	if outcome == "ok" {
		m.rowsReturned.WithLabelValues(intent).Observe(float64(records))
	}
}

// RecordDropped records a row dropped by the normalizer.
func (m *Metrics) RecordDropped(intent, reason string) {
	if m == nil {
		return
	}
	m.rowsDropped.WithLabelValues(intent, reason).Inc()
}

// RecordUpload records a catalog upload attempt.
func (m *Metrics) RecordUpload(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
}

// RecordPing records the outcome of a store liveness check.
func (m *Metrics) RecordPing(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.storeUp.Set(0)
		return
	}
	m.storeUp.Set(1)
}

// Registry returns the underlying registry, or nil.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
