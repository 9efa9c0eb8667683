// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"math"
	"sort"

	"github.com/tomtom215/marquee/internal/models"
)

const (
	// NeutralRatingScore is used for candidates without a usable rating.
	NeutralRatingScore = 0.5

	// NeutralNoveltyScore is used when there is nothing to compare genres
	// against.
	NeutralNoveltyScore = 0.5

	// DefaultGenreWindow is how many recent items shape genre novelty.
	DefaultGenreWindow = 50
)

// Candidate is one scored item.
type Candidate struct {
	Item        models.CatalogItem `json:"item"`
	Similarity  *float64           `json:"similarity,omitempty"`
	Novelty     float64            `json:"novelty"`
	RatingScore float64            `json:"rating_score"`
	FinalScore  float64            `json:"final_score"`
	Rank        int                `json:"rank"`
}

// ScoreConfig parameterizes ScoreCandidates.
type ScoreConfig struct {
	Weights     Weights
	GenreWindow int
}

// ScoreCandidates scores and ranks candidates against the user's history.
// The result is sorted by final score, ties keeping input order, with Rank
// set from 1.
func ScoreCandidates(candidates []models.CandidateItem, history []models.WatchedItem, cfg ScoreConfig) []Candidate {
	window := cfg.GenreWindow
	if window <= 0 {
		window = DefaultGenreWindow
	}
	weights := cfg.Weights.Normalize()
	freq, maxFreq := recentGenreFrequency(history, window)

	scored := make([]Candidate, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		scored[i] = Candidate{
			Item:        c.CatalogItem,
			Similarity:  c.Similarity,
			Novelty:     novelty(c.Genres, freq, maxFreq),
			RatingScore: ratingScore(c.CommunityRating),
		}
		scored[i].FinalScore = finalScore(scored[i].Similarity, scored[i].Novelty, scored[i].RatingScore, weights)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].FinalScore > scored[j].FinalScore })
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

// recentGenreFrequency counts genres over the window most recently played
// items. Items without a timestamp sort after all dated ones.
func recentGenreFrequency(history []models.WatchedItem, window int) (map[string]int, int) {
	recent := make([]*models.WatchedItem, len(history))
	for i := range history {
		recent[i] = &history[i]
	}
	sort.SliceStable(recent, func(i, j int) bool {
		a, b := recent[i].LastPlayedAt, recent[j].LastPlayedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if len(recent) > window {
		recent = recent[:window]
	}

	freq := make(map[string]int)
	maxFreq := 0
	for _, it := range recent {
		for _, g := range uniqueGenres(it.Genres) {
			freq[g]++
			if freq[g] > maxFreq {
				maxFreq = freq[g]
			}
		}
	}
	return freq, maxFreq
}

// novelty is one minus the candidate's mean relative genre frequency. A
// window without any genres gives no signal and is treated as empty.
func novelty(genres []string, freq map[string]int, maxFreq int) float64 {
	unique := uniqueGenres(genres)
	if len(unique) == 0 || maxFreq == 0 {
		return NeutralNoveltyScore
	}

	var sum float64
	for _, g := range unique {
		sum += float64(freq[g]) / float64(maxFreq)
	}
	n := 1 - sum/float64(len(unique))
	return math.Max(0, math.Min(1, n))
}

// ratingScore maps a 0..10 community rating to 0..1. Values above 10 are
// clamped.
func ratingScore(rating *float64) float64 {
	if rating == nil || math.IsNaN(*rating) || *rating <= 0 {
		return NeutralRatingScore
	}
	return math.Min(*rating, 10) / 10
}

func finalScore(similarity *float64, novelty, rating float64, w Weights) float64 {
	var sim float64
	if similarity != nil && !math.IsNaN(*similarity) {
		sim = *similarity
	}
	return sim*w.Similarity + novelty*w.Novelty + rating*w.Rating
}

func uniqueGenres(genres []string) []string {
	if len(genres) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		key := genreKey(g)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
