// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRecommendationRun(t *testing.T) {
	before := testutil.ToFloat64(RecommendationRuns.WithLabelValues("movie", StatusSuccess))
	scoredBefore := testutil.ToFloat64(RecommendationCandidatesScored.WithLabelValues("movie"))

	RecordRecommendationRun("movie", StatusSuccess, 2*time.Second, 40)

	if got := testutil.ToFloat64(RecommendationRuns.WithLabelValues("movie", StatusSuccess)); got != before+1 {
		t.Errorf("runs = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(RecommendationCandidatesScored.WithLabelValues("movie")); got != scoredBefore+40 {
		t.Errorf("candidates scored = %v, want %v", got, scoredBefore+40)
	}
}

func TestRecordLibraryWrite(t *testing.T) {
	tests := []struct {
		name                              string
		added, unchanged, deleted, failed int
	}{
		{"all ops", 3, 2, 1, 1},
		{"only unchanged", 0, 5, 0, 0},
		{"nothing", 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := "test-" + tt.name
			RecordLibraryWrite(lib, tt.added, tt.unchanged, tt.deleted, tt.failed)

			want := map[string]int{"added": tt.added, "unchanged": tt.unchanged, "deleted": tt.deleted, "failed": tt.failed}
			for op, n := range want {
				if got := testutil.ToFloat64(LibraryFiles.WithLabelValues(lib, op)); got != float64(n) {
					t.Errorf("%s = %v, want %v", op, got, n)
				}
			}
		})
	}
}

func TestRecordLibraryRefresh(t *testing.T) {
	RecordLibraryRefresh("refresh-test", nil)
	RecordLibraryRefresh("refresh-test", errors.New("boom"))
	RecordLibraryRefresh("refresh-test", errors.New("boom"))

	if got := testutil.ToFloat64(LibraryRefreshes.WithLabelValues("refresh-test", StatusSuccess)); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LibraryRefreshes.WithLabelValues("refresh-test", StatusFailure)); got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestRecordEmbeddingBatch(t *testing.T) {
	itemsBefore := testutil.ToFloat64(EmbeddingItems.WithLabelValues("series"))

	RecordEmbeddingBatch(StatusSuccess, "series", 50, 300*time.Millisecond)
	RecordEmbeddingBatch("rate_limited", "series", 50, 10*time.Millisecond)

	if got := testutil.ToFloat64(EmbeddingItems.WithLabelValues("series")); got != itemsBefore+50 {
		t.Errorf("items = %v, want %v", got, itemsBefore+50)
	}
}

func TestRecordContinueWatchingPoll(t *testing.T) {
	RecordContinueWatchingPoll(StatusSuccess, 7)
	if got := testutil.ToFloat64(ContinueWatchingItems); got != 7 {
		t.Errorf("items gauge = %v, want 7", got)
	}

	// failures leave the gauge alone
	RecordContinueWatchingPoll(StatusFailure, 0)
	if got := testutil.ToFloat64(ContinueWatchingItems); got != 7 {
		t.Errorf("items gauge after failure = %v, want 7", got)
	}
}

func TestRecordCatalogItems(t *testing.T) {
	before := testutil.ToFloat64(CatalogItemsSynced.WithLabelValues("episode"))
	RecordCatalogItems("episode", 0)
	RecordCatalogItems("episode", 100)
	if got := testutil.ToFloat64(CatalogItemsSynced.WithLabelValues("episode")); got != before+100 {
		t.Errorf("synced = %v, want %v", got, before+100)
	}
}

func TestMetricGathering(t *testing.T) {
	RecordPosterCache("hit")
	RecordMediaServerRequest("/Users", time.Millisecond)
	RecordJobFinished("catalog_sync", "completed")
	RecordProfileBuild("movie", "built")

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		t.Logf("Metric lint problem: %s", p.Text)
	}
}
