// Package metrics exposes Prometheus collectors for the CMS scanner.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// OutcomeOK labels successful fetches.
	OutcomeOK = "ok"
	// OutcomeError labels failed fetches.
	OutcomeError = "error"
)

var (
	scansTotal           *prometheus.CounterVec
	fetchErrorsTotal     *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	fetchBytesTotal      prometheus.Counter
	sinkErrorsTotal      *prometheus.CounterVec
	inflightTasks        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observe helpers are
// no-ops until Init has run.
func Init() {
	once.Do(func() {
		scansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cmsdetector_scans_total",
				Help: "Total number of classification results emitted, labeled by platform.",
			},
			[]string{"platform"},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cmsdetector_fetch_errors_total",
				Help: "Total number of failed homepage fetches, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cmsdetector_fetch_duration_seconds",
				Help:    "Histogram of homepage fetch latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 7, 10},
			},
			[]string{"outcome"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cmsdetector_fetch_bytes_total",
				Help: "Total number of body bytes fetched.",
			},
		)

		sinkErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cmsdetector_sink_errors_total",
				Help: "Total number of results a sink failed to accept, labeled by sink.",
			},
			[]string{"sink"},
		)

		inflightTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cmsdetector_inflight_tasks",
				Help: "Number of scan tasks currently in flight.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan counts one emitted result.
func ObserveScan(platform string) {
	if scansTotal == nil {
		return
	}
	scansTotal.WithLabelValues(platform).Inc()
}

// ObserveFetch records a fetch latency and, on success, the body size.
func ObserveFetch(outcome string, duration time.Duration, bytesFetched int) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveFetchError counts a fetch failure of the given kind.
func ObserveFetchError(kind string) {
	if fetchErrorsTotal == nil {
		return
	}
	fetchErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveSinkError counts a result the sink rejected.
func ObserveSinkError(sink string) {
	if sinkErrorsTotal == nil {
		return
	}
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// IncInflight increments the in-flight task gauge.
func IncInflight() {
	if inflightTasks == nil {
		return
	}
	inflightTasks.Inc()
}

// DecInflight decrements the in-flight task gauge.
func DecInflight() {
	if inflightTasks == nil {
		return
	}
	inflightTasks.Dec()
}
