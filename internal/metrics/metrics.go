// Package metrics exposes Prometheus collectors for the feed service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	engineRunsTotal            *prometheus.CounterVec
	engineRunning              prometheus.Gauge
	adapterRunsTotal           *prometheus.CounterVec
	adapterDurationSeconds     *prometheus.HistogramVec
	recordsIngestedTotal       *prometheus.CounterVec
	candidatesSkippedTotal     *prometheus.CounterVec
	enrichFetchTotal           *prometheus.CounterVec
	enrichRateLimitDelaySecond *prometheus.HistogramVec
	authRejectionsTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		engineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_engine_runs_total",
				Help: "Total number of aggregation runs, labeled by final state.",
			},
			[]string{"state"},
		)

		engineRunning = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feed_engine_running",
				Help: "1 while an aggregation run is in progress.",
			},
		)

		adapterRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_adapter_runs_total",
				Help: "Total number of adapter invocations, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		adapterDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feed_adapter_duration_seconds",
				Help:    "Histogram of adapter fetch+ingest durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		)

		recordsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_records_ingested_total",
				Help: "Total number of new records persisted, labeled by source.",
			},
			[]string{"source"},
		)

		candidatesSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_candidates_skipped_total",
				Help: "Candidates not persisted, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		enrichFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_enrich_fetch_total",
				Help: "Article enrichment fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		enrichRateLimitDelaySecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feed_enrich_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		authRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_auth_rejections_total",
				Help: "Rejected API requests, labeled by reason.",
			},
			[]string{"reason"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun counts a finished engine run.
func ObserveRun(state string) {
	Init()
	engineRunsTotal.WithLabelValues(state).Inc()
}

// SetRunning toggles the in-progress gauge.
func SetRunning(running bool) {
	Init()
	if running {
		engineRunning.Set(1)
		return
	}
	engineRunning.Set(0)
}

// ObserveAdapter records one adapter invocation.
func ObserveAdapter(source, outcome string, ingested, skipped int, duration time.Duration) {
	Init()
	adapterRunsTotal.WithLabelValues(source, outcome).Inc()
	adapterDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	if ingested > 0 {
		recordsIngestedTotal.WithLabelValues(source).Add(float64(ingested))
	}
	if skipped > 0 {
		candidatesSkippedTotal.WithLabelValues(source, "duplicate_or_invalid").Add(float64(skipped))
	}
}

// ObserveEnrich counts an article enrichment fetch.
func ObserveEnrich(rawURL, status string) {
	Init()
	enrichFetchTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	enrichRateLimitDelaySecond.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveAuthRejection counts a rejected API request.
func ObserveAuthRejection(reason string) {
	Init()
	authRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
