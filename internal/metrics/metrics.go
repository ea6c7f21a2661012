// Package metrics exposes Prometheus collectors for the scrape engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsSubmittedTotal     *prometheus.CounterVec
	jobsRetriedTotal       *prometheus.CounterVec
	jobsSupersededTotal    prometheus.Counter
	outcomesDiscardedTotal prometheus.Counter
	commandsDroppedTotal   prometheus.Counter
	fetchDurationSeconds   *prometheus.HistogramVec
	jobsInflight           prometheus.Gauge
	captchaGated           prometheus.Gauge
	snapshotVersion        prometheus.Gauge
	snapshotListings       *prometheus.GaugeVec
	connectionHealth       prometheus.Gauge

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsSubmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketglass_jobs_submitted_total",
				Help: "Total scrape jobs admitted to the queue, labeled by target kind.",
			},
			[]string{"target"},
		)

		jobsRetriedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketglass_jobs_retried_total",
				Help: "Total retry attempts scheduled, labeled by target kind.",
			},
			[]string{"target"},
		)

		jobsSupersededTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "marketglass_jobs_superseded_total",
				Help: "Total running jobs cancelled in favor of a newer job for the same target.",
			},
		)

		outcomesDiscardedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "marketglass_outcomes_discarded_total",
				Help: "Total fetch outcomes discarded because their job was superseded.",
			},
		)

		commandsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "marketglass_commands_dropped_total",
				Help: "Total engine commands dropped because the coordinator was saturated.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketglass_fetch_duration_seconds",
				Help:    "Histogram of fetch attempt durations, labeled by target kind and outcome class.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"target", "class"},
		)

		jobsInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketglass_jobs_inflight",
				Help: "Number of fetch jobs currently running.",
			},
		)

		captchaGated = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketglass_captcha_gated_targets",
				Help: "Number of targets parked behind an unresolved challenge.",
			},
		)

		snapshotVersion = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketglass_snapshot_version",
				Help: "Version of the most recently published snapshot.",
			},
		)

		snapshotListings = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketglass_snapshot_listings",
				Help: "Listings in the published snapshot, labeled by lifecycle status.",
			},
			[]string{"status"},
		)

		connectionHealth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketglass_connection_health_level",
				Help: "Derived connection health, from 0 (down) to 3 (full).",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncJobSubmitted counts a job admitted to the queue.
func IncJobSubmitted(target string) {
	jobsSubmittedTotal.WithLabelValues(target).Inc()
}

// IncJobRetried counts a scheduled retry.
func IncJobRetried(target string) {
	jobsRetriedTotal.WithLabelValues(target).Inc()
}

// IncJobSuperseded counts a running job replaced by a newer one.
func IncJobSuperseded() {
	jobsSupersededTotal.Inc()
}

// IncOutcomeDiscarded counts a stale outcome dropped before merge.
func IncOutcomeDiscarded() {
	outcomesDiscardedTotal.Inc()
}

// IncCommandDropped counts an engine command dropped under saturation.
func IncCommandDropped() {
	commandsDroppedTotal.Inc()
}

// ObserveFetch records one settled fetch attempt.
func ObserveFetch(target, class string, duration time.Duration) {
	fetchDurationSeconds.WithLabelValues(target, class).Observe(duration.Seconds())
}

// SetJobsInFlight sets the running-jobs gauge.
func SetJobsInFlight(n int) {
	jobsInflight.Set(float64(n))
}

// SetCaptchaGated sets the gated-targets gauge.
func SetCaptchaGated(n int) {
	captchaGated.Set(float64(n))
}

// SetSnapshot records the published snapshot's version and listing counts.
func SetSnapshot(version uint64, active, possiblyEnded, ended int) {
	snapshotVersion.Set(float64(version))
	snapshotListings.WithLabelValues("active").Set(float64(active))
	snapshotListings.WithLabelValues("possibly_ended").Set(float64(possiblyEnded))
	snapshotListings.WithLabelValues("ended").Set(float64(ended))
}

// SetHealthLevel records the derived connection health level.
func SetHealthLevel(level int) {
	connectionHealth.Set(float64(level))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
