// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package embedding

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tomtom215/marquee/internal/models"
)

// maxOverviewRunes bounds the overview so one verbose synopsis cannot push a
// batch past the provider's token limit.
const maxOverviewRunes = 2000

// CanonicalText is the text an item is embedded from. It changes only when
// the underlying metadata changes, so it is stored next to the vector.
//
//	Movie/series: "Title (Year). Genres: A, B. Overview"
//	Episode:      "Series – S01E02 – Title. Overview"
func CanonicalText(item *models.CatalogItem) string {
	var b strings.Builder

	if item.Kind == models.KindEpisode {
		if item.SeriesName != "" {
			b.WriteString(item.SeriesName)
			b.WriteString(" – ")
		}
		fmt.Fprintf(&b, "S%02dE%02d", item.SeasonNumber, item.EpisodeNumber)
		if t := strings.TrimSpace(item.Title); t != "" {
			b.WriteString(" – ")
			b.WriteString(t)
		}
		b.WriteString(".")
	} else {
		b.WriteString(strings.TrimSpace(item.Title))
		if item.Year > 0 {
			fmt.Fprintf(&b, " (%d)", item.Year)
		}
		b.WriteString(".")
		if len(item.Genres) > 0 {
			b.WriteString(" Genres: ")
			b.WriteString(strings.Join(item.Genres, ", "))
			b.WriteString(".")
		}
	}

	if ov := truncateRunes(strings.TrimSpace(item.Overview), maxOverviewRunes); ov != "" {
		b.WriteString(" ")
		b.WriteString(ov)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
