// Package metrics exposes Prometheus collectors for the backfill job and the directory API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every collector in this package. It is separate from the default
// registry so a batch run can push exactly the job's series to a Pushgateway.
var Registry = prometheus.NewRegistry()

var (
	backfillRecordsTotal        *prometheus.CounterVec
	backfillFailuresTotal       *prometheus.CounterVec
	backfillRateLimitBackoffs   prometheus.Counter
	backfillStepDurationSeconds *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	rateLimitDelaySeconds       *prometheus.HistogramVec
	externalRequestsTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(Registry)

		backfillRecordsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backfill_records_total",
				Help: "Records seen by the logo backfill, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		backfillFailuresTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backfill_failures_total",
				Help: "Failed records, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		backfillRateLimitBackoffs = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backfill_rate_limit_backoffs_total",
				Help: "Number of fixed backoffs taken after a rate-limited record.",
			},
		)

		backfillStepDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backfill_step_duration_seconds",
				Help:    "Histogram of pipeline step latencies, labeled by step.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"step"},
		)

		httpRequestsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratelimit_delay_seconds",
				Help:    "Histogram of client-side rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"host"},
		)

		externalRequestsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_requests_total",
				Help: "Requests to external services, labeled by service and status code.",
			},
			[]string{"service", "code"},
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

// Handler returns an http.Handler for exposing the package registry.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRecord counts a record by outcome (succeeded, failed, skipped).
func ObserveRecord(outcome string) {
	Init()
	backfillRecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFailure counts a failed record by failure kind.
func ObserveFailure(kind string) {
	Init()
	backfillFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveRateLimitBackoff counts one fixed backoff.
func ObserveRateLimitBackoff() {
	Init()
	backfillRateLimitBackoffs.Inc()
}

// ObserveStep records how long a pipeline step took.
func ObserveStep(step string, duration time.Duration) {
	Init()
	backfillStepDurationSeconds.WithLabelValues(step).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveExternalRequest counts a response from an external service.
func ObserveExternalRequest(service string, code int) {
	Init()
	externalRequestsTotal.WithLabelValues(service, strconv.Itoa(code)).Inc()
}

// Push sends the registry to a Prometheus Pushgateway under the given job name.
func Push(ctx context.Context, gatewayURL, job string) error {
	Init()
	if err := push.New(gatewayURL, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
