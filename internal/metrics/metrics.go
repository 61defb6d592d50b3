// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PostsFetched counts posts fully fetched, transformed and written,
	// labeled by target.
	PostsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_posts_fetched_total",
			Help: "Total number of posts successfully archived, labeled by target.",
		},
		[]string{"target"},
	)

	// PostFailures counts terminal task failures, labeled by target and
	// failure class (transient, permanent, auth_required).
	PostFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_post_failures_total",
			Help: "Total number of post fetch failures, labeled by target and class.",
		},
		[]string{"target", "class"},
	)

	// Retries counts transient-failure retries.
	Retries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archiver_retries_total",
			Help: "Total number of fetch task retries.",
		},
	)

	// DiscoveryRuns counts index discovery attempts.
	DiscoveryRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archiver_discovery_runs_total",
			Help: "Total number of discovery passes across all targets.",
		},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_fetch_duration_seconds",
			Help:    "Duration of post fetch+transform+write, labeled by target.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"target"},
	)
)

// ObserveFetchDuration records one task's end-to-end duration.
func ObserveFetchDuration(target string, d time.Duration) {
	fetchDurationSeconds.WithLabelValues(target).Observe(d.Seconds())
}
