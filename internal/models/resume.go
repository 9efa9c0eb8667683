// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"errors"
	"strings"
	"time"
)

// ResumeItem is a partially watched movie or episode as reported by the media
// server's resume endpoint, after normalization.
type ResumeItem struct {
	ID          string
	Kind        MediaKind
	Title       string
	Year        int
	Overview    string
	ProviderIDs ProviderIDs

	ProgressPercent float64
	PositionTicks   int64
	RuntimeTicks    int64
	LastPlayedAt    time.Time

	LibraryID   string
	LibraryName string
	Path        string
	ImageURL    string

	SeriesID      string
	SeriesName    string
	SeasonNumber  int
	EpisodeNumber int
}

// IdentityKey is the de-duplication key for continue watching.
func (r *ResumeItem) IdentityKey() string {
	return r.ProviderIDs.IdentityKey(r.ID)
}

// ContinueWatchingEntry is a persisted, deduplicated resume record.
type ContinueWatchingEntry struct {
	UserID      string
	IdentityKey string
	Item        ResumeItem
	SyncedAt    time.Time
}

var errEmptyTimestamp = errors.New("empty timestamp")

// providerTimeLayouts covers the formats Jellyfin and Emby emit. RFC3339
// parsing accepts any fractional precision, including Jellyfin's 7 digits.
var providerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseProviderTime parses a media-server timestamp. Values without a zone are
// taken as UTC.
func ParseProviderTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}

	var lastErr error
	for _, layout := range providerTimeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
