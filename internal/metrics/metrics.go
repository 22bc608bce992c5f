// Package metrics exposes Prometheus collectors for essay publishing runs.
//
// A run is a short-lived process, so collectors live on a dedicated registry that is
// pushed to a Pushgateway at the end of the run instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder owns the collectors for one process. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	fetchAttemptsTotal     *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	publishAttemptsTotal   *prometheus.CounterVec
	notificationsTotal     *prometheus.CounterVec
	runsTotal              *prometheus.CounterVec
	artifactBytes          prometheus.Histogram
	runDurationSeconds     prometheus.Histogram
	templateFragmentsEmpty prometheus.Counter
	rateLimitDelaySeconds  *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		fetchAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "essaypub_fetch_attempts_total",
				Help: "Total number of document fetch attempts, labeled by target, site and outcome.",
			},
			[]string{"target", "site", "outcome"},
		),
		fetchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "essaypub_fetch_duration_seconds",
				Help:    "Histogram of successful fetch latencies, labeled by target.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"target"},
		),
		publishAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "essaypub_publish_attempts_total",
				Help: "Total number of artifact upload attempts, labeled by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "essaypub_notifications_total",
				Help: "Total number of publish notifications, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "essaypub_runs_total",
				Help: "Total number of publishing runs, labeled by status.",
			},
			[]string{"status"},
		),
		artifactBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "essaypub_artifact_bytes",
				Help:    "Size of merged artifacts in bytes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		runDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "essaypub_run_duration_seconds",
				Help:    "Histogram of end-to-end run latencies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		templateFragmentsEmpty: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "essaypub_template_fragment_empty_total",
				Help: "Total number of runs whose template carried no sentinel fragment.",
			},
		),
		rateLimitDelaySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "essaypub_rate_limit_delay_seconds",
				Help:    "Histogram of delays introduced by per-host rate limiting.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"site"},
		),
	}
}

// ObserveRateLimitDelay records time spent waiting for a rate limit token.
func (r *Recorder) ObserveRateLimitDelay(site string, delay time.Duration) {
	if r == nil {
		return
	}
	r.rateLimitDelaySeconds.WithLabelValues(site).Observe(delay.Seconds())
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
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

// ObserveFetchAttempt counts one fetch attempt.
func (r *Recorder) ObserveFetchAttempt(target, rawURL, outcome string) {
	if r == nil {
		return
	}
	r.fetchAttemptsTotal.WithLabelValues(target, SanitizeSite(rawURL), outcome).Inc()
}

// ObserveFetchDuration records the latency of a successful fetch.
func (r *Recorder) ObserveFetchDuration(target string, duration time.Duration) {
	if r == nil {
		return
	}
	r.fetchDurationSeconds.WithLabelValues(target).Observe(duration.Seconds())
}

// ObservePublishAttempt counts one upload attempt.
func (r *Recorder) ObservePublishAttempt(backend, outcome string) {
	if r == nil {
		return
	}
	r.publishAttemptsTotal.WithLabelValues(backend, outcome).Inc()
}

// ObserveNotification counts one notification.
func (r *Recorder) ObserveNotification(outcome string) {
	if r == nil {
		return
	}
	r.notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records the final status and latency of a run.
func (r *Recorder) ObserveRun(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(status).Inc()
	r.runDurationSeconds.Observe(duration.Seconds())
}

// ObserveArtifact records the size of a merged artifact.
func (r *Recorder) ObserveArtifact(size int) {
	if r == nil {
		return
	}
	r.artifactBytes.Observe(float64(size))
}

// ObserveEmptyTemplate counts a template without a sentinel fragment.
func (r *Recorder) ObserveEmptyTemplate() {
	if r == nil {
		return
	}
	r.templateFragmentsEmpty.Inc()
}

// Push sends every collector to the Pushgateway at gatewayURL under job.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
