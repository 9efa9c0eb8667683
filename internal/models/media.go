// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package models holds the normalized domain types shared between the store,
// the media-server client and the pipeline packages. Raw provider payloads
// never leave internal/mediaserver; everything past that boundary uses these.
package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind identifies the kind of content an item or profile refers to.
type MediaKind string

const (
	KindMovie   MediaKind = "movie"
	KindSeries  MediaKind = "series"
	KindEpisode MediaKind = "episode"
)

// Valid reports whether k is a known kind.
func (k MediaKind) Valid() bool {
	switch k {
	case KindMovie, KindSeries, KindEpisode:
		return true
	}
	return false
}

// ParseMediaKind converts a config or database string to a MediaKind.
func ParseMediaKind(s string) (MediaKind, error) {
	k := MediaKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown media kind %q", s)
	}
	return k, nil
}

// ProviderIDs are the cross-reference identifiers a media server reports for an item.
// IMDb is the primary external ID, TMDb the secondary.
type ProviderIDs struct {
	IMDb string `json:"imdb,omitempty"`
	TMDb string `json:"tmdb,omitempty"`
	TVDb string `json:"tvdb,omitempty"`
}

// IdentityKey returns the first non-empty of IMDb, TMDb and rawID.
// Two records with the same key describe the same logical title.
func (p ProviderIDs) IdentityKey(rawID string) string {
	if p.IMDb != "" {
		return "imdb:" + p.IMDb
	}
	if p.TMDb != "" {
		return "tmdb:" + p.TMDb
	}
	return "id:" + rawID
}

// CatalogItem is a movie, series or episode known to the media server.
type CatalogItem struct {
	ID              string
	Kind            MediaKind
	Title           string
	Year            int
	Genres          []string
	Overview        string
	CommunityRating *float64
	ProviderIDs     ProviderIDs
	Path            string
	LibraryID       string
	RuntimeTicks    int64
	ImageURL        string

	// Episode linkage
	SeriesID      string
	SeriesName    string
	SeasonNumber  int
	EpisodeNumber int

	UpdatedAt time.Time
}

// WatchHistoryEntry is one user's persisted engagement with one item.
// Series-level rows carry favorite and rating; play counts live on episode rows.
type WatchHistoryEntry struct {
	UserID       string
	ItemID       string
	Kind         MediaKind
	PlayCount    int
	Played       bool
	IsFavorite   bool
	UserRating   *float64
	LastPlayedAt *time.Time
}

// User is a media-server account.
type User struct {
	ID         string
	Name       string
	IsAdmin    bool
	IsDisabled bool
}

// Library is a top-level media-server library (virtual folder).
type Library struct {
	ID             string
	Name           string
	CollectionType string
	Paths          []string
}

// WatchedItem is one user's engagement with a movie, or with a series
// aggregated from its episode rows. It is derived from watch history on
// demand and never stored.
type WatchedItem struct {
	ItemID    string
	Kind      MediaKind
	Title     string
	Genres    []string
	LibraryID string

	PlayCount     int
	EpisodeCount  int
	TotalEpisodes int

	IsFavorite   bool
	UserRating   *float64
	LastPlayedAt *time.Time
}

// CompletionRate is watched episodes over total episodes. ok is false when
// the total is unknown.
func (w *WatchedItem) CompletionRate() (rate float64, ok bool) {
	if w.TotalEpisodes <= 0 {
		return 0, false
	}
	return float64(w.EpisodeCount) / float64(w.TotalEpisodes), true
}

// CandidateItem is an unwatched catalog item with its similarity to a taste
// profile. Similarity is nil when the item has no embedding.
type CandidateItem struct {
	CatalogItem
	Similarity *float64
}
