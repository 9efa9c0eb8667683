// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package library

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tomtom215/marquee/internal/models"
)

// Item is one desired entry of a virtual library.
type Item struct {
	ID              string             `validate:"required,notblank"`
	Kind            models.MediaKind   `validate:"required,oneof=movie series episode"`
	Title           string             `validate:"required,notblank"`
	Year            int                `validate:"gte=0,lte=9999"`
	Rank            int                `validate:"gte=1"`
	ProviderIDs     models.ProviderIDs `validate:"-"`
	Overview        string
	Genres          []string
	CommunityRating *float64

	// Path is the media file (or URL) the pointer file references. Series
	// carry their pointers in Episodes instead.
	Path     string `validate:"required_unless=Kind series"`
	ImageURL string `validate:"omitempty,url"`

	SeriesName    string
	SeasonNumber  int `validate:"gte=0"`
	EpisodeNumber int `validate:"gte=0"`

	Episodes []Episode `validate:"required_if=Kind series,dive"`
}

// Episode is one pointer inside a series folder.
type Episode struct {
	ID            string `validate:"required"`
	Title         string
	SeasonNumber  int `validate:"gte=0"`
	EpisodeNumber int `validate:"gte=0"`
	Path          string
}

// FromCatalog builds a writer item from catalog metadata.
func FromCatalog(c *models.CatalogItem, rank int) Item {
	return Item{
		ID:              c.ID,
		Kind:            c.Kind,
		Title:           c.Title,
		Year:            c.Year,
		Rank:            rank,
		ProviderIDs:     c.ProviderIDs,
		Overview:        c.Overview,
		Genres:          c.Genres,
		CommunityRating: c.CommunityRating,
		Path:            c.Path,
		ImageURL:        c.ImageURL,
		SeriesName:      c.SeriesName,
		SeasonNumber:    c.SeasonNumber,
		EpisodeNumber:   c.EpisodeNumber,
	}
}

// FromResume builds a writer item from a continue-watching entry.
func FromResume(r *models.ResumeItem, rank int) Item {
	return Item{
		ID:            r.ID,
		Kind:          r.Kind,
		Title:         r.Title,
		Year:          r.Year,
		Rank:          rank,
		ProviderIDs:   r.ProviderIDs,
		Overview:      r.Overview,
		Path:          r.Path,
		ImageURL:      r.ImageURL,
		SeriesName:    r.SeriesName,
		SeasonNumber:  r.SeasonNumber,
		EpisodeNumber: r.EpisodeNumber,
	}
}

// EntryName is the deterministic base name of an item on disk. It is the
// folder name for series and the file stem otherwise.
func (it *Item) EntryName() string {
	var b strings.Builder
	switch it.Kind {
	case models.KindEpisode:
		if it.SeriesName != "" {
			b.WriteString(it.SeriesName)
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "S%02dE%02d %s", it.SeasonNumber, it.EpisodeNumber, it.Title)
	default:
		b.WriteString(it.Title)
		if it.Year > 0 {
			fmt.Fprintf(&b, " (%d)", it.Year)
		}
	}
	b.WriteByte(' ')
	b.WriteString(it.idTag())
	return sanitizeName(b.String())
}

// idTag prefers the IMDb id, then TMDb, then the server id. Episodes always
// use the server id because external ids identify the show.
func (it *Item) idTag() string {
	if it.Kind != models.KindEpisode {
		if it.ProviderIDs.IMDb != "" {
			return "[imdbid-" + it.ProviderIDs.IMDb + "]"
		}
		if it.ProviderIDs.TMDb != "" {
			return "[tmdbid-" + it.ProviderIDs.TMDb + "]"
		}
	}
	return "[id-" + it.ID + "]"
}

// displayTitle is the title written into the sidecar.
func (it *Item) displayTitle() string {
	if it.Kind == models.KindEpisode && it.SeriesName != "" {
		return fmt.Sprintf("%s S%02dE%02d %s", it.SeriesName, it.SeasonNumber, it.EpisodeNumber, it.Title)
	}
	return it.Title
}

// EpisodeName is the pointer file stem of an episode inside a series folder.
func (e *Episode) EpisodeName(series string) string {
	name := fmt.Sprintf("%s S%02dE%02d", series, e.SeasonNumber, e.EpisodeNumber)
	if e.Title != "" {
		name += " " + e.Title
	}
	return sanitizeName(name + " [id-" + e.ID + "]")
}

// sanitizeName replaces characters that are invalid in file names on common
// filesystems and trims trailing dots and spaces.
func sanitizeName(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	mapped = strings.Join(strings.Fields(mapped), " ")
	return strings.TrimRight(mapped, ". ")
}
