// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package metrics provides Prometheus instrumentation for the request
// path and the offline builders.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestDuration tracks endpoint latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// APIActiveRequests tracks in-flight requests.
	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// RecommendRequests counts recommendation requests by outcome.
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_requests_total",
			Help: "Total recommendation requests by outcome",
		},
		[]string{"outcome"}, // "ok", "empty_plot", "encoder_error", "internal_error"
	)

	// RecommendFallbacks counts requests that fell back to the global index.
	RecommendFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_fallbacks_total",
			Help: "Total requests where the filtered pool came up short",
		},
	)

	// RecommendResultCount tracks how many results each request returned.
	RecommendResultCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_result_count",
			Help:    "Number of results returned per request",
			Buckets: []float64{0, 1, 5, 10, 15, 20},
		},
	)

	// BuilderDuration tracks offline build durations.
	BuilderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "builder_duration_seconds",
			Help:    "Duration of offline builder runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"builder"},
	)

	// MetadataFetches counts TMDb fetches by result.
	MetadataFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_fetches_total",
			Help: "Total TMDb metadata fetches by result",
		},
		[]string{"result"}, // "hit", "fetched", "invalid", "error"
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBuild records one completed builder run.
func RecordBuild(builder string, duration time.Duration) {
	BuilderDuration.WithLabelValues(builder).Observe(duration.Seconds())
}
