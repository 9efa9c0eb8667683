// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
nfo.go - Kodi-style XML sidecars

Jellyfin and Emby read these when "NFO" is enabled as a local metadata
reader on the library. sorttitle carries the rank as a zero-padded prefix and
dateadded is backdated one day per rank, so both "Sort Name" and "Date Added"
views show the ranking.
*/

//nolint:staticcheck // File documentation, not package doc
package library

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/marquee/internal/models"
)

const nfoDateLayout = "2006-01-02 15:04:05"

type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr,omitempty"`
	Value   string `xml:",chardata"`
}

type thumb struct {
	Aspect string `xml:"aspect,attr"`
	URL    string `xml:",chardata"`
}

type nfoCommon struct {
	Title     string     `xml:"title"`
	SortTitle string     `xml:"sorttitle"`
	Year      int        `xml:"year,omitempty"`
	Plot      string     `xml:"plot,omitempty"`
	Rating    string     `xml:"rating,omitempty"`
	Genres    []string   `xml:"genre"`
	UniqueIDs []uniqueID `xml:"uniqueid"`
	Thumb     *thumb     `xml:"thumb,omitempty"`
	DateAdded string     `xml:"dateadded"`
}

type movieNFO struct {
	XMLName xml.Name `xml:"movie"`
	nfoCommon
	ShowTitle string `xml:"showtitle,omitempty"`
	Season    int    `xml:"season,omitempty"`
	Episode   int    `xml:"episode,omitempty"`
}

type tvShowNFO struct {
	XMLName xml.Name `xml:"tvshow"`
	nfoCommon
}

// dateAdded backdates rank 1 to today, rank 2 to yesterday and so on. now is
// truncated to the day so rewrites within a day produce identical files.
func dateAdded(now time.Time, rank int) string {
	day := now.UTC().Truncate(24 * time.Hour)
	return day.AddDate(0, 0, -(rank - 1)).Format(nfoDateLayout)
}

func sortTitle(rank int, title string) string {
	return fmt.Sprintf("%03d %s", rank, title)
}

func buildCommon(it *Item, now time.Time) nfoCommon {
	title := it.displayTitle()
	c := nfoCommon{
		Title:     title,
		SortTitle: sortTitle(it.Rank, title),
		Year:      it.Year,
		Plot:      it.Overview,
		Genres:    it.Genres,
		DateAdded: dateAdded(now, it.Rank),
	}
	if it.CommunityRating != nil {
		c.Rating = strconv.FormatFloat(*it.CommunityRating, 'f', 1, 64)
	}
	if it.ProviderIDs.IMDb != "" {
		c.UniqueIDs = append(c.UniqueIDs, uniqueID{Type: "imdb", Value: it.ProviderIDs.IMDb})
	}
	if it.ProviderIDs.TMDb != "" {
		c.UniqueIDs = append(c.UniqueIDs, uniqueID{Type: "tmdb", Value: it.ProviderIDs.TMDb})
	}
	if it.ProviderIDs.TVDb != "" {
		c.UniqueIDs = append(c.UniqueIDs, uniqueID{Type: "tvdb", Value: it.ProviderIDs.TVDb})
	}
	if len(c.UniqueIDs) > 0 {
		c.UniqueIDs[0].Default = true
	}
	if it.ImageURL != "" {
		c.Thumb = &thumb{Aspect: "poster", URL: it.ImageURL}
	}
	return c
}

// renderNFO returns the sidecar for it. Episodes in a flat library are
// written as movie entries so they show up in a movies-type collection.
func renderNFO(it *Item, now time.Time) ([]byte, error) {
	var doc any
	switch it.Kind {
	case models.KindSeries:
		doc = tvShowNFO{nfoCommon: buildCommon(it, now)}
	case models.KindEpisode:
		doc = movieNFO{
			nfoCommon: buildCommon(it, now),
			ShowTitle: it.SeriesName,
			Season:    it.SeasonNumber,
			Episode:   it.EpisodeNumber,
		}
	default:
		doc = movieNFO{nfoCommon: buildCommon(it, now)}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal nfo: %w", err)
	}
	data := make([]byte, 0, len(xml.Header)+len(out)+1)
	data = append(data, xml.Header...)
	data = append(data, out...)
	data = append(data, '\n')
	return data, nil
}
