// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package continuewatching keeps a per-user "continue watching" library in
// sync with the media server's resume state. Items are collapsed across
// source libraries so each title appears once.
package continuewatching

import (
	"github.com/tomtom215/marquee/internal/models"
)

// FilterAndDeduplicate drops resume items from generated and admin-excluded
// libraries and keeps one item per identity key. The representative has the
// highest progress, then the most recent play, then the alphabetically lowest
// library name. Output follows the first appearance of each key, so the
// function is deterministic and applying it twice changes nothing.
func FilterAndDeduplicate(raw []models.ResumeItem, excludedAuto, excludedAdmin []string, libraryName func(id string) string) []models.ResumeItem {
	skip := make(map[string]struct{}, len(excludedAuto)+len(excludedAdmin))
	for _, id := range excludedAuto {
		skip[id] = struct{}{}
	}
	for _, id := range excludedAdmin {
		skip[id] = struct{}{}
	}

	var (
		order []string
		best  = make(map[string]models.ResumeItem)
	)
	for i := range raw {
		item := raw[i]
		if _, excluded := skip[item.LibraryID]; excluded && item.LibraryID != "" {
			continue
		}
		if libraryName != nil && item.LibraryID != "" {
			if name := libraryName(item.LibraryID); name != "" {
				item.LibraryName = name
			}
		}

		key := item.IdentityKey()
		current, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = item
			continue
		}
		if preferred(&item, &current) {
			best[key] = item
		}
	}

	out := make([]models.ResumeItem, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// preferred reports whether a should represent its group over b.
func preferred(a, b *models.ResumeItem) bool {
	if a.ProgressPercent != b.ProgressPercent {
		return a.ProgressPercent > b.ProgressPercent
	}
	if !a.LastPlayedAt.Equal(b.LastPlayedAt) {
		return a.LastPlayedAt.After(b.LastPlayedAt)
	}
	return a.LibraryName < b.LibraryName
}
