// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeHistory struct {
	items    []models.WatchedItem
	excluded []string
	err      error
	filter   database.WatchedFilter
}

func (f *fakeHistory) WatchedItems(_ context.Context, filter database.WatchedFilter) ([]models.WatchedItem, error) {
	f.filter = filter
	return f.items, f.err
}

func (f *fakeHistory) ExcludedLibraries(context.Context, string) ([]string, error) {
	return f.excluded, nil
}

type fakeEmbeddings map[string][]float32

func (f fakeEmbeddings) GetEmbeddings(_ context.Context, _ models.MediaKind, _ string, ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32)
	for _, id := range ids {
		if v, ok := f[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type fakeProfiles struct {
	stored  *models.TasteProfile
	upserts int
}

func (f *fakeProfiles) GetTasteProfile(context.Context, string, models.MediaKind) (*models.TasteProfile, error) {
	if f.stored == nil {
		return nil, nil
	}
	cp := *f.stored
	return &cp, nil
}

func (f *fakeProfiles) UpsertTasteProfile(_ context.Context, p *models.TasteProfile) error {
	cp := *p
	f.stored = &cp
	f.upserts++
	return nil
}

func ptr[T any](v T) *T { return &v }

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func newTestBuilder(h *fakeHistory, e fakeEmbeddings) *Builder {
	b := NewBuilder(h, e, "test-model")
	b.now = func() time.Time { return testNow }
	return b
}

func TestEngagementWeight(t *testing.T) {
	base := models.WatchedItem{Kind: models.KindMovie, PlayCount: 1}

	tests := []struct {
		name   string
		higher models.WatchedItem
		lower  models.WatchedItem
	}{
		{
			name:   "more plays",
			higher: models.WatchedItem{Kind: models.KindMovie, PlayCount: 10},
			lower:  base,
		},
		{
			name:   "favorite",
			higher: models.WatchedItem{Kind: models.KindMovie, PlayCount: 1, IsFavorite: true},
			lower:  base,
		},
		{
			name:   "high rating",
			higher: models.WatchedItem{Kind: models.KindMovie, PlayCount: 1, UserRating: ptr(9.0)},
			lower:  models.WatchedItem{Kind: models.KindMovie, PlayCount: 1, UserRating: ptr(3.0)},
		},
		{
			name:   "completed series",
			higher: models.WatchedItem{Kind: models.KindSeries, EpisodeCount: 30, TotalEpisodes: 30},
			lower:  models.WatchedItem{Kind: models.KindSeries, EpisodeCount: 30, TotalEpisodes: 100},
		},
		{
			name:   "recent",
			higher: models.WatchedItem{Kind: models.KindMovie, PlayCount: 1, LastPlayedAt: ptr(testNow.Add(-24 * time.Hour))},
			lower:  models.WatchedItem{Kind: models.KindMovie, PlayCount: 1, LastPlayedAt: ptr(testNow.Add(-400 * 24 * time.Hour))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hi := EngagementWeight(&tt.higher, testNow)
			lo := EngagementWeight(&tt.lower, testNow)
			if hi <= lo {
				t.Errorf("weight %v should exceed %v", hi, lo)
			}
		})
	}
}

func TestEngagementWeight_CompletionBonus(t *testing.T) {
	full := models.WatchedItem{Kind: models.KindSeries, EpisodeCount: 30, TotalEpisodes: 30}
	partial := models.WatchedItem{Kind: models.KindSeries, EpisodeCount: 30, TotalEpisodes: 100}

	if rate, _ := full.CompletionRate(); rate != 1.0 {
		t.Fatalf("full completion = %v, want 1.0", rate)
	}
	if rate, _ := partial.CompletionRate(); math.Abs(rate-0.3) > 1e-12 {
		t.Fatalf("partial completion = %v, want 0.3", rate)
	}

	hi := EngagementWeight(&full, testNow)
	lo := EngagementWeight(&partial, testNow)
	if math.Abs(hi/lo-1.5) > 1e-9 {
		t.Errorf("completion 1.0 / 0.3 weight ratio = %v, want 1.5", hi/lo)
	}
}

func TestEngagementWeight_RecencyFloor(t *testing.T) {
	old := models.WatchedItem{Kind: models.KindMovie, PlayCount: 1, LastPlayedAt: ptr(testNow.AddDate(-20, 0, 0))}
	if got := EngagementWeight(&old, testNow); math.Abs(got-recencyFloor) > 1e-9 {
		t.Errorf("weight = %v, want floor %v", got, recencyFloor)
	}

	future := models.WatchedItem{Kind: models.KindMovie, PlayCount: 1, LastPlayedAt: ptr(testNow.Add(time.Hour))}
	if got := EngagementWeight(&future, testNow); got != 1 {
		t.Errorf("future play weight = %v, want 1", got)
	}
}

func TestBuilder_UnitLength(t *testing.T) {
	h := &fakeHistory{items: []models.WatchedItem{
		{ItemID: "a", Kind: models.KindMovie, PlayCount: 3},
		{ItemID: "b", Kind: models.KindMovie, PlayCount: 1, IsFavorite: true},
		{ItemID: "c", Kind: models.KindMovie, PlayCount: 2},
	}}
	e := fakeEmbeddings{
		"a": {3, 4, 0},
		"b": {0, 10, 2},
		"c": {1, 1, 1},
	}

	vec, err := newTestBuilder(h, e).Build(context.Background(), "u1", models.KindMovie)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("dims = %d, want 3", len(vec))
	}
	if n := norm(vec); math.Abs(n-1) > 1e-6 {
		t.Errorf("norm = %v, want 1", n)
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	h := &fakeHistory{items: []models.WatchedItem{
		{ItemID: "a", Kind: models.KindMovie, PlayCount: 1},
		{ItemID: "b", Kind: models.KindMovie, PlayCount: 1},
		{ItemID: "c", Kind: models.KindMovie, PlayCount: 5},
	}}
	e := fakeEmbeddings{"a": {1, 0.5}, "b": {0.2, 1}, "c": {0.3, 0.3}}
	b := newTestBuilder(h, e)

	first, err := b.Build(context.Background(), "u1", models.KindMovie)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := b.Build(context.Background(), "u1", models.KindMovie)
		if err != nil {
			t.Fatal(err)
		}
		for d := range first {
			if again[d] != first[d] {
				t.Fatalf("run %d differs at %d: %v != %v", i, d, again[d], first[d])
			}
		}
	}
}

func TestBuilder_EngagedSeriesDominates(t *testing.T) {
	h := &fakeHistory{items: []models.WatchedItem{
		{ItemID: "A", Kind: models.KindSeries, EpisodeCount: 12, TotalEpisodes: 12, IsFavorite: true, UserRating: ptr(9.0)},
		{ItemID: "B", Kind: models.KindSeries, EpisodeCount: 3, TotalEpisodes: 20},
	}}
	e := fakeEmbeddings{"A": {1, 0}, "B": {0, 1}}

	vec, err := newTestBuilder(h, e).Build(context.Background(), "u1", models.KindSeries)
	if err != nil {
		t.Fatal(err)
	}

	// With orthogonal inputs each component is proportional to its weight.
	fraction := float64(vec[0]) / (float64(vec[0]) + float64(vec[1]))
	if fraction <= 0.7 {
		t.Errorf("series A contributes %.3f of the profile, want > 0.7", fraction)
	}
}

func TestBuilder_InsufficientData(t *testing.T) {
	tests := []struct {
		name  string
		items []models.WatchedItem
		emb   fakeEmbeddings
	}{
		{name: "no history"},
		{
			name:  "no embeddings",
			items: []models.WatchedItem{{ItemID: "a", Kind: models.KindMovie, PlayCount: 1}},
			emb:   fakeEmbeddings{},
		},
		{
			name:  "zero vector",
			items: []models.WatchedItem{{ItemID: "a", Kind: models.KindMovie, PlayCount: 1}},
			emb:   fakeEmbeddings{"a": {0, 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, err := newTestBuilder(&fakeHistory{items: tt.items}, tt.emb).Build(context.Background(), "u1", models.KindMovie)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if vec != nil {
				t.Errorf("vec = %v, want nil", vec)
			}
		})
	}
}

func TestBuilder_SkipsMismatchedDimensions(t *testing.T) {
	h := &fakeHistory{items: []models.WatchedItem{
		{ItemID: "a", Kind: models.KindMovie, PlayCount: 10},
		{ItemID: "b", Kind: models.KindMovie, PlayCount: 1},
	}}
	e := fakeEmbeddings{"a": {0, 1}, "b": {1, 0, 0}}

	vec, err := newTestBuilder(h, e).Build(context.Background(), "u1", models.KindMovie)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 2 || vec[1] != 1 {
		t.Errorf("vec = %v, want [0 1]", vec)
	}
}

func TestBuilder_PassesExclusions(t *testing.T) {
	h := &fakeHistory{excluded: []string{"lib-kids"}}
	if _, err := newTestBuilder(h, fakeEmbeddings{}).Build(context.Background(), "u1", models.KindMovie); err != nil {
		t.Fatal(err)
	}
	if len(h.filter.ExcludedLibraryIDs) != 1 || h.filter.ExcludedLibraryIDs[0] != "lib-kids" {
		t.Errorf("filter = %+v, want the user's excluded libraries", h.filter)
	}

	h.err = errors.New("boom")
	if _, err := newTestBuilder(h, fakeEmbeddings{}).Build(context.Background(), "u1", models.KindMovie); err == nil {
		t.Error("expected history error")
	}
}

func TestProfileService_Get(t *testing.T) {
	history := &fakeHistory{items: []models.WatchedItem{{ItemID: "a", Kind: models.KindMovie, PlayCount: 1}}}
	emb := fakeEmbeddings{"a": {0, 2}}
	fresh := testNow.Add(-24 * time.Hour)
	stale := testNow.AddDate(0, 0, -30)

	tests := []struct {
		name        string
		stored      *models.TasteProfile
		force       bool
		want        []float32
		wantUpserts int
	}{
		{
			name:        "no stored profile builds",
			want:        []float32{0, 1},
			wantUpserts: 1,
		},
		{
			name:   "fresh profile cached",
			stored: &models.TasteProfile{Embedding: []float32{1, 0}, Model: "test-model", AutoUpdatedAt: &fresh, RefreshIntervalDays: 7},
			want:   []float32{1, 0},
		},
		{
			name:        "stale profile rebuilt",
			stored:      &models.TasteProfile{Embedding: []float32{1, 0}, Model: "test-model", AutoUpdatedAt: &stale, RefreshIntervalDays: 7},
			want:        []float32{0, 1},
			wantUpserts: 1,
		},
		{
			name:   "locked profile kept",
			stored: &models.TasteProfile{Embedding: []float32{1, 0}, Model: "test-model", AutoUpdatedAt: &stale, IsLocked: true, RefreshIntervalDays: 7},
			want:   []float32{1, 0},
		},
		{
			name:        "force rebuilds locked profile",
			stored:      &models.TasteProfile{Embedding: []float32{1, 0}, Model: "test-model", AutoUpdatedAt: &fresh, IsLocked: true, RefreshIntervalDays: 7},
			force:       true,
			want:        []float32{0, 1},
			wantUpserts: 1,
		},
		{
			name:        "other model rebuilt",
			stored:      &models.TasteProfile{Embedding: []float32{1, 0}, Model: "old-model", AutoUpdatedAt: &fresh, IsLocked: true, RefreshIntervalDays: 7},
			want:        []float32{0, 1},
			wantUpserts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeProfiles{stored: tt.stored}
			svc := NewProfileService(newTestBuilder(history, emb), store, 7)
			svc.now = func() time.Time { return testNow }

			got, err := svc.Get(context.Background(), "u1", models.KindMovie, tt.force)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got) != len(tt.want) || got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Errorf("profile = %v, want %v", got, tt.want)
			}
			if store.upserts != tt.wantUpserts {
				t.Errorf("upserts = %d, want %d", store.upserts, tt.wantUpserts)
			}
			if tt.wantUpserts > 0 {
				if store.stored.AutoUpdatedAt == nil || !store.stored.AutoUpdatedAt.Equal(testNow) {
					t.Errorf("auto_updated_at = %v, want %v", store.stored.AutoUpdatedAt, testNow)
				}
				if store.stored.Model != "test-model" {
					t.Errorf("model = %q", store.stored.Model)
				}
			}
		})
	}
}

func TestProfileService_KeepsStaleProfileWithoutData(t *testing.T) {
	stale := testNow.AddDate(0, 0, -30)
	store := &fakeProfiles{stored: &models.TasteProfile{
		Embedding: []float32{1, 0}, Model: "test-model", AutoUpdatedAt: &stale, RefreshIntervalDays: 7,
	}}
	svc := NewProfileService(newTestBuilder(&fakeHistory{}, fakeEmbeddings{}), store, 7)
	svc.now = func() time.Time { return testNow }

	got, err := svc.Get(context.Background(), "u1", models.KindMovie, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 1 {
		t.Errorf("profile = %v, want stored vector", got)
	}
	if store.upserts != 0 {
		t.Errorf("upserts = %d, want 0", store.upserts)
	}
}
