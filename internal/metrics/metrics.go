// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package metrics exposes the Prometheus instrumentation for the pipeline:
// recommendation runs, library reconciliation, embedding generation, catalog
// sync, continue-watching polls, the poster cache and the circuit breakers
// guarding external providers. All collectors register on the default
// registry through promauto and are served by the ops listener at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels shared by several counters.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusSkipped  = "skipped"
	StatusCanceled = "canceled"
)

var (
	// Recommendation Metrics
	RecommendationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_recommendation_runs_total",
			Help: "Total number of recommendation runs by media kind and outcome",
		},
		[]string{"kind", "status"},
	)

	RecommendationRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_recommendation_run_duration_seconds",
			Help:    "Duration of a full recommendation run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	RecommendationCandidatesScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_recommendation_candidates_scored_total",
			Help: "Total number of candidates scored",
		},
		[]string{"kind"},
	)

	TasteProfileBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_taste_profile_builds_total",
			Help: "Taste profile builds by kind and result (built, empty, cached)",
		},
		[]string{"kind", "result"},
	)

	// Library Metrics
	LibraryFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_library_files_total",
			Help: "Virtual library entries by library purpose and operation",
		},
		[]string{"library", "op"}, // op: "added", "unchanged", "deleted", "failed"
	)

	LibraryRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_library_refreshes_total",
			Help: "Provider library refresh requests",
		},
		[]string{"library", "status"},
	)

	PosterCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_poster_cache_requests_total",
			Help: "Poster cache lookups by result",
		},
		[]string{"result"}, // result: "hit", "miss", "error", "rejected"
	)

	PosterCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_poster_cache_entries",
			Help: "Current number of cached posters",
		},
	)

	// Embedding Metrics
	EmbeddingBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_embedding_batches_total",
			Help: "Embedding batches by outcome",
		},
		[]string{"status"}, // status: "success", "failure", "rate_limited", "quota_exhausted"
	)

	EmbeddingItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_embedding_items_total",
			Help: "Items embedded by media kind",
		},
		[]string{"kind"},
	)

	EmbeddingRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_embedding_request_duration_seconds",
			Help:    "Duration of embedding provider requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Continue Watching Metrics
	ContinueWatchingPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_continue_watching_polls_total",
			Help: "Continue-watching per-user polls by outcome",
		},
		[]string{"status"},
	)

	ContinueWatchingItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_continue_watching_items",
			Help: "Deduplicated resume items in the most recent poll",
		},
	)

	// Catalog Metrics
	CatalogItemsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_catalog_items_synced_total",
			Help: "Catalog items upserted by media kind",
		},
		[]string{"kind"},
	)

	CatalogSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_catalog_sync_duration_seconds",
			Help:    "Duration of a full catalog sync in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Media Server Metrics
	MediaServerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_media_server_request_duration_seconds",
			Help:    "Duration of media server API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Job Metrics
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_jobs_finished_total",
			Help: "Background jobs reaching a terminal status",
		},
		[]string{"kind", "status"},
	)
)

// RecordRecommendationRun records the outcome and duration of one run.
func RecordRecommendationRun(kind, status string, duration time.Duration, candidates int) {
	RecommendationRuns.WithLabelValues(kind, status).Inc()
	RecommendationRunDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if candidates > 0 {
		RecommendationCandidatesScored.WithLabelValues(kind).Add(float64(candidates))
	}
}

// RecordProfileBuild records a taste profile lookup.
func RecordProfileBuild(kind, result string) {
	TasteProfileBuilds.WithLabelValues(kind, result).Inc()
}

// RecordLibraryWrite records the reconciliation counts of one writer pass.
func RecordLibraryWrite(library string, added, unchanged, deleted, failed int) {
	counts := map[string]int{
		"added":     added,
		"unchanged": unchanged,
		"deleted":   deleted,
		"failed":    failed,
	}
	for op, n := range counts {
		if n > 0 {
			LibraryFiles.WithLabelValues(library, op).Add(float64(n))
		}
	}
}

// RecordLibraryRefresh records a provider refresh call.
func RecordLibraryRefresh(library string, err error) {
	LibraryRefreshes.WithLabelValues(library, statusOf(err)).Inc()
}

// RecordPosterCache records a poster cache lookup.
func RecordPosterCache(result string) {
	PosterCacheRequests.WithLabelValues(result).Inc()
}

// RecordEmbeddingBatch records one embedding batch attempt.
func RecordEmbeddingBatch(status string, kind string, items int, duration time.Duration) {
	EmbeddingBatches.WithLabelValues(status).Inc()
	EmbeddingRequestDuration.Observe(duration.Seconds())
	if status == StatusSuccess && items > 0 {
		EmbeddingItems.WithLabelValues(kind).Add(float64(items))
	}
}

// RecordContinueWatchingPoll records one per-user poll.
func RecordContinueWatchingPoll(status string, items int) {
	ContinueWatchingPolls.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		ContinueWatchingItems.Set(float64(items))
	}
}

// RecordCatalogItems records upserted catalog items for one kind.
func RecordCatalogItems(kind string, n int) {
	if n > 0 {
		CatalogItemsSynced.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordMediaServerRequest records the latency of one provider call.
func RecordMediaServerRequest(endpoint string, duration time.Duration) {
	MediaServerRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordJobFinished records a job reaching a terminal status.
func RecordJobFinished(kind, status string) {
	JobsFinished.WithLabelValues(kind, status).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
