// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

// recencyHalfLifeDays halves an item's weight every 180 days since it was
// last played, down to recencyFloor.
const (
	recencyHalfLifeDays = 180.0
	recencyFloor        = 0.25
)

// HistorySource supplies a user's engaged items.
type HistorySource interface {
	WatchedItems(ctx context.Context, filter database.WatchedFilter) ([]models.WatchedItem, error)
	ExcludedLibraries(ctx context.Context, userID string) ([]string, error)
}

// EmbeddingSource supplies item vectors for one model.
type EmbeddingSource interface {
	GetEmbeddings(ctx context.Context, kind models.MediaKind, model string, ids []string) (map[string][]float32, error)
}

// ProfileStore persists taste profiles.
type ProfileStore interface {
	GetTasteProfile(ctx context.Context, userID string, kind models.MediaKind) (*models.TasteProfile, error)
	UpsertTasteProfile(ctx context.Context, p *models.TasteProfile) error
}

// EngagementWeight scores how strongly an item reflects the user's taste.
func EngagementWeight(item *models.WatchedItem, now time.Time) float64 {
	var w float64
	if item.Kind == models.KindSeries {
		w = 1 + math.Log10(float64(max(item.EpisodeCount, 1)))
		if rate, ok := item.CompletionRate(); ok {
			switch {
			case rate > 0.9:
				w *= 1.5
			case rate > 0.5:
				w *= 1.2
			}
		}
	} else {
		w = 1 + math.Log10(float64(max(item.PlayCount, 1)))*0.5
	}

	if item.IsFavorite {
		w *= 1.5
	}

	if item.UserRating != nil && *item.UserRating > 0 && !math.IsNaN(*item.UserRating) {
		r := *item.UserRating
		if r > 5 {
			r /= 10
		} else {
			r /= 5
		}
		r = math.Min(r, 1)
		w *= 0.5 + r*0.75
	}

	if item.LastPlayedAt != nil {
		days := now.Sub(*item.LastPlayedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		w *= math.Max(recencyFloor, math.Pow(0.5, days/recencyHalfLifeDays))
	}
	return w
}

// Builder computes taste profiles. It reads from the store but never writes.
type Builder struct {
	history    HistorySource
	embeddings EmbeddingSource
	model      string
	now        func() time.Time
	logger     zerolog.Logger
}

// NewBuilder creates a builder for vectors of model.
func NewBuilder(history HistorySource, embeddings EmbeddingSource, model string) *Builder {
	return &Builder{
		history:    history,
		embeddings: embeddings,
		model:      model,
		now:        time.Now,
		logger:     logging.WithComponent("profile-builder"),
	}
}

type weightedItem struct {
	item   *models.WatchedItem
	weight float64
}

// Build returns the user's L2-normalized taste vector for kind, or nil when
// there is no weighted history with embeddings to build it from.
func (b *Builder) Build(ctx context.Context, userID string, kind models.MediaKind) ([]float32, error) {
	excluded, err := b.history.ExcludedLibraries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load excluded libraries: %w", err)
	}
	items, err := b.history.WatchedItems(ctx, database.WatchedFilter{
		UserID:             userID,
		Kind:               kind,
		ExcludedLibraryIDs: excluded,
	})
	if err != nil {
		return nil, fmt.Errorf("load watch history: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	now := b.now()
	weighted := make([]weightedItem, len(items))
	ids := make([]string, len(items))
	for i := range items {
		weighted[i] = weightedItem{item: &items[i], weight: EngagementWeight(&items[i], now)}
		ids[i] = items[i].ItemID
	}
	sort.SliceStable(weighted, func(i, j int) bool { return weighted[i].weight > weighted[j].weight })

	vectors, err := b.embeddings.GetEmbeddings(ctx, kind, b.model, ids)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	var (
		sum         []float64
		totalWeight float64
		used        int
	)
	for _, wi := range weighted {
		vec, ok := vectors[wi.item.ItemID]
		if !ok || len(vec) == 0 || wi.weight <= 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		if len(vec) != len(sum) {
			b.logger.Warn().Str("item_id", wi.item.ItemID).Int("dims", len(vec)).Int("want", len(sum)).
				Msg("Skipping embedding with mismatched dimension")
			continue
		}
		for d, v := range vec {
			sum[d] += float64(v) * wi.weight
		}
		totalWeight += wi.weight
		used++
	}
	if totalWeight == 0 {
		return nil, nil
	}

	var norm float64
	for d := range sum {
		sum[d] /= totalWeight
		norm += sum[d] * sum[d]
	}
	norm = math.Sqrt(norm)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, nil
	}

	out := make([]float32, len(sum))
	for d, v := range sum {
		out[d] = float32(v / norm)
	}

	ev := logging.Ctx(ctx).Debug().
		Str("kind", string(kind)).
		Int("history", len(items)).
		Int("embedded", used)
	if len(weighted) > 0 {
		ev = ev.Str("top_item", weighted[0].item.Title).Float64("top_weight", weighted[0].weight)
	}
	ev.Msg("Built taste profile")

	return out, nil
}

// ProfileService returns cached profiles and rebuilds them when stale.
type ProfileService struct {
	builder     *Builder
	store       ProfileStore
	refreshDays int
	now         func() time.Time
}

// NewProfileService creates a service. refreshDays applies to profiles that
// have no interval of their own.
func NewProfileService(builder *Builder, store ProfileStore, refreshDays int) *ProfileService {
	if refreshDays <= 0 {
		refreshDays = 7
	}
	return &ProfileService{builder: builder, store: store, refreshDays: refreshDays, now: time.Now}
}

// Get returns the user's profile for kind. A fresh stored profile is
// returned as is, as is a locked one unless force is set. Otherwise the
// profile is rebuilt and saved. A profile built with another model is
// always rebuilt because its vectors are not comparable.
func (s *ProfileService) Get(ctx context.Context, userID string, kind models.MediaKind, force bool) ([]float32, error) {
	stored, err := s.store.GetTasteProfile(ctx, userID, kind)
	if err != nil {
		return nil, err
	}

	model := s.builder.model
	usable := stored != nil && len(stored.Embedding) > 0 && stored.Model == model
	if usable && !force {
		if stored.IsLocked {
			metrics.RecordProfileBuild(string(kind), "locked")
			return stored.Embedding, nil
		}
		if !stored.IsStale(s.now()) {
			metrics.RecordProfileBuild(string(kind), "cached")
			return stored.Embedding, nil
		}
	}

	vec, err := s.builder.Build(ctx, userID, kind)
	if err != nil {
		metrics.RecordProfileBuild(string(kind), "error")
		return nil, err
	}
	if vec == nil {
		metrics.RecordProfileBuild(string(kind), "insufficient")
		if usable {
			return stored.Embedding, nil
		}
		return nil, nil
	}

	p := stored
	if p == nil {
		p = &models.TasteProfile{UserID: userID, Kind: kind}
	}
	now := s.now().UTC()
	p.Embedding = vec
	p.Model = model
	p.AutoUpdatedAt = &now
	if p.RefreshIntervalDays <= 0 {
		p.RefreshIntervalDays = s.refreshDays
	}
	if err := s.store.UpsertTasteProfile(ctx, p); err != nil {
		return nil, err
	}

	metrics.RecordProfileBuild(string(kind), "built")
	return vec, nil
}
