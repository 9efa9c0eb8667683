// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/models"
)

// testDBSemaphore serializes DuckDB usage across tests. It is held for the
// whole test so no two tests have a live connection at once.
var testDBSemaphore = make(chan struct{}, 1)

var testDBMutex sync.Mutex

// setupTestDB creates an in-memory database, failing the test if DuckDB does
// not come up within two minutes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
		Threads:   2,
	}

	type result struct {
		db  *DB
		err error
	}

	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		db, err := New(cfg)
		testDBMutex.Unlock()
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Logf("close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s")
		return nil
	}
}

func ptr[T any](v T) *T { return &v }

func seedMovies(t *testing.T, db *DB, items ...models.CatalogItem) {
	t.Helper()
	for i := range items {
		items[i].Kind = models.KindMovie
	}
	if err := db.UpsertCatalogItems(context.Background(), models.KindMovie, items); err != nil {
		t.Fatalf("UpsertCatalogItems: %v", err)
	}
}

func TestNew_InMemory(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestCatalog_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedMovies(t, db, models.CatalogItem{
		ID: "m1", Title: "Heat", Year: 1995, Genres: []string{"Crime", "Drama"},
		CommunityRating: ptr(8.3), ProviderIDs: models.ProviderIDs{IMDb: "tt0113277"},
		Path: "/media/movies/Heat (1995)/Heat.mkv", LibraryID: "lib-movies",
	})

	// Second upsert changes the title; the row is updated, not duplicated.
	seedMovies(t, db, models.CatalogItem{ID: "m1", Title: "Heat (Remastered)", Year: 1995, Genres: []string{"Crime"}})

	got, err := db.GetCatalogItems(ctx, models.KindMovie, []string{"m1", "missing"})
	if err != nil {
		t.Fatalf("GetCatalogItems: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	m := got["m1"]
	if m.Title != "Heat (Remastered)" {
		t.Errorf("Title = %q", m.Title)
	}
	if len(m.Genres) != 1 || m.Genres[0] != "Crime" {
		t.Errorf("Genres = %v", m.Genres)
	}
	if m.CommunityRating != nil {
		t.Errorf("CommunityRating = %v, want nil after upsert without rating", *m.CommunityRating)
	}
}

func TestCatalog_UnsupportedKind(t *testing.T) {
	db := setupTestDB(t)
	err := db.UpsertCatalogItems(context.Background(), models.MediaKind("track"), []models.CatalogItem{{ID: "x"}})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("err = %v, want ErrUnsupportedKind", err)
	}
}

func TestWatchedItems_Movies(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedMovies(t, db,
		models.CatalogItem{ID: "m1", Title: "A", Genres: []string{"Action"}, LibraryID: "lib1"},
		models.CatalogItem{ID: "m2", Title: "B", Genres: []string{"Drama"}, LibraryID: "lib2"},
		models.CatalogItem{ID: "m3", Title: "C", LibraryID: "lib1"},
	)

	played := time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)
	err := db.UpsertWatchHistory(ctx, []models.WatchHistoryEntry{
		{UserID: "u1", ItemID: "m1", Kind: models.KindMovie, PlayCount: 3, Played: true, UserRating: ptr(9.0), LastPlayedAt: &played},
		{UserID: "u1", ItemID: "m2", Kind: models.KindMovie, PlayCount: 1, Played: true},
		{UserID: "u1", ItemID: "m3", Kind: models.KindMovie}, // no engagement
		{UserID: "u2", ItemID: "m3", Kind: models.KindMovie, PlayCount: 1, Played: true},
	})
	if err != nil {
		t.Fatalf("UpsertWatchHistory: %v", err)
	}

	tests := []struct {
		name     string
		excluded []string
		wantIDs  []string
	}{
		{"all libraries", nil, []string{"m1", "m2"}},
		{"excluding lib2", []string{"lib2"}, []string{"m1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := db.WatchedItems(ctx, WatchedFilter{UserID: "u1", Kind: models.KindMovie, ExcludedLibraryIDs: tt.excluded})
			if err != nil {
				t.Fatalf("WatchedItems: %v", err)
			}
			var ids []string
			for _, it := range items {
				ids = append(ids, it.ItemID)
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
				}
			}
		})
	}

	items, err := db.WatchedItems(ctx, WatchedFilter{UserID: "u1", Kind: models.KindMovie})
	if err != nil {
		t.Fatal(err)
	}
	first := items[0]
	if first.PlayCount != 3 || first.UserRating == nil || *first.UserRating != 9 {
		t.Errorf("m1 = %+v", first)
	}
	if first.LastPlayedAt == nil || !first.LastPlayedAt.Equal(played) {
		t.Errorf("LastPlayedAt = %v, want %v", first.LastPlayedAt, played)
	}
}

func TestWatchedItems_SeriesAggregation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertCatalogItems(ctx, models.KindSeries, []models.CatalogItem{
		{ID: "s1", Title: "The Wire", Genres: []string{"Crime"}},
		{ID: "s2", Title: "Untouched"},
	}); err != nil {
		t.Fatal(err)
	}
	var eps []models.CatalogItem
	for i := 1; i <= 4; i++ {
		eps = append(eps, models.CatalogItem{
			ID: "s1e" + string(rune('0'+i)), Title: "Ep", SeriesID: "s1", SeasonNumber: 1, EpisodeNumber: i,
		})
	}
	if err := db.UpsertCatalogItems(ctx, models.KindEpisode, eps); err != nil {
		t.Fatal(err)
	}

	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := db.UpsertWatchHistory(ctx, []models.WatchHistoryEntry{
		{UserID: "u1", ItemID: "s1e1", Kind: models.KindEpisode, PlayCount: 1, Played: true, LastPlayedAt: &early},
		{UserID: "u1", ItemID: "s1e2", Kind: models.KindEpisode, PlayCount: 2, Played: true, LastPlayedAt: &late},
		{UserID: "u1", ItemID: "s1", Kind: models.KindSeries, IsFavorite: true, UserRating: ptr(9.0)},
	}); err != nil {
		t.Fatal(err)
	}

	items, err := db.WatchedItems(ctx, WatchedFilter{UserID: "u1", Kind: models.KindSeries})
	if err != nil {
		t.Fatalf("WatchedItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1 (%+v)", len(items), items)
	}
	s := items[0]
	if s.EpisodeCount != 2 || s.TotalEpisodes != 4 || s.PlayCount != 3 {
		t.Errorf("counts = episodes %d total %d plays %d", s.EpisodeCount, s.TotalEpisodes, s.PlayCount)
	}
	if !s.IsFavorite || s.UserRating == nil || *s.UserRating != 9 {
		t.Errorf("favorite/rating = %v/%v", s.IsFavorite, s.UserRating)
	}
	if s.LastPlayedAt == nil || !s.LastPlayedAt.Equal(late) {
		t.Errorf("LastPlayedAt = %v, want %v", s.LastPlayedAt, late)
	}

	episodes, err := db.ListEpisodes(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 4 || episodes[0].EpisodeNumber != 1 || episodes[3].EpisodeNumber != 4 {
		t.Errorf("ListEpisodes order wrong: %+v", episodes)
	}
}

func TestWatchedItems_UnsupportedKind(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.WatchedItems(context.Background(), WatchedFilter{UserID: "u1", Kind: models.KindEpisode})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("err = %v, want ErrUnsupportedKind", err)
	}
}

func TestEmbeddings_RoundTripAndMissing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedMovies(t, db,
		models.CatalogItem{ID: "a", Title: "A"},
		models.CatalogItem{ID: "b", Title: "B"},
		models.CatalogItem{ID: "c", Title: "C"},
	)

	if err := db.UpsertEmbeddings(ctx, models.KindMovie, "m1", []EmbeddingRecord{
		{ItemID: "a", Vector: []float32{0.25, 0.5, -1}, CanonicalText: "A."},
	}); err != nil {
		t.Fatalf("UpsertEmbeddings: %v", err)
	}

	got, err := db.GetEmbeddings(ctx, models.KindMovie, "m1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	want := []float32{0.25, 0.5, -1}
	for i := range want {
		if got["a"][i] != want[i] {
			t.Errorf("vector = %v, want %v", got["a"], want)
			break
		}
	}

	// Other models do not count.
	other, err := db.GetEmbeddings(ctx, models.KindMovie, "m2", []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("model m2 vectors = %d, want 0", len(other))
	}

	missing, err := db.ListItemsMissingEmbedding(ctx, models.KindMovie, "m1", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 2 || missing[0].ID != "b" || missing[1].ID != "c" {
		t.Errorf("missing = %+v, want b, c", missing)
	}

	page, err := db.ListItemsMissingEmbedding(ctx, models.KindMovie, "m1", "b", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID != "c" {
		t.Errorf("page after b = %+v, want c", page)
	}

	n, err := db.CountItemsMissingEmbedding(ctx, models.KindMovie, "m1")
	if err != nil || n != 2 {
		t.Errorf("CountItemsMissingEmbedding = %d, %v, want 2", n, err)
	}
}

func TestEmbeddings_RejectsNonFinite(t *testing.T) {
	db := setupTestDB(t)
	err := db.UpsertEmbeddings(context.Background(), models.KindMovie, "m1", []EmbeddingRecord{
		{ItemID: "a", Vector: []float32{float32(math.NaN())}},
	})
	if err == nil {
		t.Error("expected error for NaN component")
	}
}

func TestListCandidates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedMovies(t, db,
		models.CatalogItem{ID: "close", Title: "Close", LibraryID: "lib1"},
		models.CatalogItem{ID: "far", Title: "Far", LibraryID: "lib1"},
		models.CatalogItem{ID: "noemb", Title: "No Embedding", LibraryID: "lib1"},
		models.CatalogItem{ID: "seen", Title: "Seen", LibraryID: "lib1"},
		models.CatalogItem{ID: "hidden", Title: "Hidden", LibraryID: "lib2"},
	)
	if err := db.UpsertEmbeddings(ctx, models.KindMovie, "m1", []EmbeddingRecord{
		{ItemID: "close", Vector: []float32{1, 0}},
		{ItemID: "far", Vector: []float32{0, 1}},
		{ItemID: "seen", Vector: []float32{1, 0}},
		{ItemID: "hidden", Vector: []float32{1, 0}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertWatchHistory(ctx, []models.WatchHistoryEntry{
		{UserID: "u1", ItemID: "seen", Kind: models.KindMovie, PlayCount: 1, Played: true},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListCandidates(ctx, CandidateFilter{
		UserID: "u1", Kind: models.KindMovie, Model: "m1",
		Profile: []float32{1, 0}, ExcludedLibraryIDs: []string{"lib2"}, Limit: 10,
	})
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}

	wantIDs := []string{"close", "far", "noemb"}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d candidates, want %d (%+v)", len(got), len(wantIDs), got)
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("candidate[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if got[0].Similarity == nil || math.Abs(*got[0].Similarity-1) > 1e-6 {
		t.Errorf("close similarity = %v, want 1", got[0].Similarity)
	}
	if got[2].Similarity != nil {
		t.Errorf("noemb similarity = %v, want nil", *got[2].Similarity)
	}
}

func TestListCandidates_NoProfile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	low, high := 5.5, 8.1
	seedMovies(t, db,
		models.CatalogItem{ID: "a", Title: "Low", CommunityRating: &low},
		models.CatalogItem{ID: "b", Title: "High", CommunityRating: &high},
		models.CatalogItem{ID: "c", Title: "Unrated"},
	)

	got, err := db.ListCandidates(ctx, CandidateFilter{
		UserID: "u1", Kind: models.KindMovie, Model: "m1", Limit: 10,
	})
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}

	wantIDs := []string{"b", "a", "c"}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d candidates, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("candidate[%d] = %s, want %s", i, got[i].ID, id)
		}
		if got[i].Similarity != nil {
			t.Errorf("candidate[%d] similarity = %v, want nil", i, *got[i].Similarity)
		}
	}
}

func TestTasteProfile_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p, err := db.GetTasteProfile(ctx, "u1", models.KindMovie)
	if err != nil || p != nil {
		t.Fatalf("GetTasteProfile(missing) = %v, %v, want nil, nil", p, err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	in := &models.TasteProfile{
		UserID: "u1", Kind: models.KindMovie, Embedding: []float32{0.6, 0.8},
		Model: "m1", AutoUpdatedAt: &now, IsLocked: true, RefreshIntervalDays: 3,
	}
	if err := db.UpsertTasteProfile(ctx, in); err != nil {
		t.Fatalf("UpsertTasteProfile: %v", err)
	}

	out, err := db.GetTasteProfile(ctx, "u1", models.KindMovie)
	if err != nil || out == nil {
		t.Fatalf("GetTasteProfile = %v, %v", out, err)
	}
	if len(out.Embedding) != 2 || out.Embedding[1] != 0.8 {
		t.Errorf("Embedding = %v", out.Embedding)
	}
	if !out.IsLocked || out.RefreshIntervalDays != 3 || out.Model != "m1" {
		t.Errorf("profile = %+v", out)
	}
	if out.AutoUpdatedAt == nil || !out.AutoUpdatedAt.Equal(now) {
		t.Errorf("AutoUpdatedAt = %v, want %v", out.AutoUpdatedAt, now)
	}
}

func TestReplaceContinueWatching(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := func(id, imdb string, progress float64) models.ResumeItem {
		return models.ResumeItem{
			ID: id, Kind: models.KindMovie, Title: id, ProviderIDs: models.ProviderIDs{IMDb: imdb},
			ProgressPercent: progress, LastPlayedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	if err := db.ReplaceContinueWatching(ctx, "u1", []models.ResumeItem{item("a", "tt1", 10), item("b", "tt2", 20)}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceContinueWatching(ctx, "u2", []models.ResumeItem{item("a", "tt1", 90)}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceContinueWatching(ctx, "u1", []models.ResumeItem{item("b", "tt2", 55), item("c", "", 5)}); err != nil {
		t.Fatal(err)
	}

	entries, err := db.ListContinueWatching(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]models.ContinueWatchingEntry{}
	for _, e := range entries {
		got[e.Item.ID] = e
	}
	if len(got) != 2 {
		t.Fatalf("entries = %v, want b and c", entries)
	}
	if got["b"].Item.ProgressPercent != 55 {
		t.Errorf("b progress = %v, want 55", got["b"].Item.ProgressPercent)
	}
	if got["c"].IdentityKey != "id:c" {
		t.Errorf("c identity = %q, want id:c", got["c"].IdentityKey)
	}

	// Other users are untouched.
	other, err := db.ListContinueWatching(ctx, "u2")
	if err != nil || len(other) != 1 {
		t.Errorf("u2 entries = %v, %v", other, err)
	}

	// An empty fetch clears the user.
	if err := db.ReplaceContinueWatching(ctx, "u1", nil); err != nil {
		t.Fatal(err)
	}
	entries, _ = db.ListContinueWatching(ctx, "u1")
	if len(entries) != 0 {
		t.Errorf("entries after clear = %d, want 0", len(entries))
	}
}

func TestRuns_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run := &models.RecommendationRun{
		ID: uuid.NewString(), UserID: "u1", Kind: models.KindMovie, Model: "m1",
		Status: models.RunStatusRunning, StartedAt: time.Now().UTC(),
	}
	if err := db.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	sim := 0.9
	if err := db.SaveCandidates(ctx, run.ID, []models.RecommendationCandidate{
		{ItemID: "x", Rank: 1, Selected: true, Similarity: &sim, Novelty: 0.1, RatingScore: 0.8, FinalScore: 0.64},
		{ItemID: "y", Rank: 2, Selected: false, Novelty: 0.9, RatingScore: 0.5, FinalScore: 0.37},
	}); err != nil {
		t.Fatalf("SaveCandidates: %v", err)
	}

	finished := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	run.FinishedAt = &finished
	run.CandidateCount, run.SelectedCount, run.Added = 2, 1, 1
	if err := db.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.SelectedCount != 1 || got.FinishedAt == nil {
		t.Errorf("run = %+v", got)
	}

	all, err := db.ListRunCandidates(ctx, run.ID, false)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListRunCandidates(all) = %v, %v", all, err)
	}
	if all[1].Similarity != nil {
		t.Errorf("y similarity = %v, want nil", *all[1].Similarity)
	}
	selected, err := db.ListRunCandidates(ctx, run.ID, true)
	if err != nil || len(selected) != 1 || selected[0].ItemID != "x" {
		t.Errorf("ListRunCandidates(selected) = %v, %v", selected, err)
	}

	runs, err := db.ListRuns(ctx, "u1", 10)
	if err != nil || len(runs) != 1 {
		t.Errorf("ListRuns = %v, %v", runs, err)
	}

	if _, err := db.GetRun(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestVirtualLibraries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, err := db.GetVirtualLibrary(ctx, "u1", models.KindMovie, models.PurposeRecommendations)
	if err != nil || v != nil {
		t.Fatalf("GetVirtualLibrary(missing) = %v, %v", v, err)
	}

	in := &models.VirtualLibrary{
		UserID: "u1", Kind: models.KindMovie, Purpose: models.PurposeRecommendations,
		ProviderLibraryID: "prov-1", Name: "alice - Recommended Movies", Path: "/data/libraries/u1/movie",
	}
	if err := db.UpsertVirtualLibrary(ctx, in); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertVirtualLibrary(ctx, &models.VirtualLibrary{
		UserID: "u2", Kind: models.KindEpisode, Purpose: models.PurposeContinueWatching,
		Name: "bob - Continue Watching", Path: "/data/libraries/u2/continue",
	}); err != nil {
		t.Fatal(err)
	}

	v, err = db.GetVirtualLibrary(ctx, "u1", models.KindMovie, models.PurposeRecommendations)
	if err != nil || v == nil || v.ProviderLibraryID != "prov-1" {
		t.Fatalf("GetVirtualLibrary = %+v, %v", v, err)
	}

	all, err := db.ListVirtualLibraries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var users []string
	for _, l := range all {
		users = append(users, l.UserID)
	}
	sort.Strings(users)
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("users = %v", users)
	}
}

func TestExcludedLibraries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SetExcludedLibraries(ctx, "u1", []string{"b", "a"}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetExcludedLibraries(ctx, "u1", []string{"c", "a"}); err != nil {
		t.Fatal(err)
	}
	got, err := db.ExcludedLibraries(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("ExcludedLibraries = %v, want [a c]", got)
	}
}

func TestListHelpers(t *testing.T) {
	if got := joinList([]string{" Sci-Fi ", "", "Action, Adventure"}); got != "Sci-Fi,Action  Adventure" {
		t.Errorf("joinList = %q", got)
	}
	if got := splitList("a, b,,c"); len(got) != 3 || got[1] != "b" {
		t.Errorf("splitList = %v", got)
	}
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
}
