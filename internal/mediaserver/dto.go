// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
dto.go - Jellyfin/Emby wire types and their normalization

Both servers share the BaseItemDto shape for the fields used here. Provider
id keys differ in case between servers and versions ("Imdb", "IMDB"), so
they are matched case-insensitively.
*/

//nolint:staticcheck // File documentation, not package doc
package mediaserver

import (
	"strings"

	"github.com/tomtom215/marquee/internal/models"
)

type userDto struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Policy struct {
		IsAdministrator bool `json:"IsAdministrator"`
		IsDisabled      bool `json:"IsDisabled"`
	} `json:"Policy"`
}

type virtualFolderDto struct {
	Name           string   `json:"Name"`
	ItemID         string   `json:"ItemId"`
	CollectionType string   `json:"CollectionType"`
	Locations      []string `json:"Locations"`
}

type userDataDto struct {
	PlaybackPositionTicks int64    `json:"PlaybackPositionTicks"`
	PlayCount             int      `json:"PlayCount"`
	IsFavorite            bool     `json:"IsFavorite"`
	Played                bool     `json:"Played"`
	LastPlayedDate        string   `json:"LastPlayedDate"`
	PlayedPercentage      *float64 `json:"PlayedPercentage"`
	Rating                *float64 `json:"Rating"`
}

type baseItemDto struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	ProductionYear    int               `json:"ProductionYear"`
	Genres            []string          `json:"Genres"`
	Overview          string            `json:"Overview"`
	CommunityRating   *float64          `json:"CommunityRating"`
	ProviderIDs       map[string]string `json:"ProviderIds"`
	Path              string            `json:"Path"`
	RunTimeTicks      int64             `json:"RunTimeTicks"`
	SeriesID          string            `json:"SeriesId"`
	SeriesName        string            `json:"SeriesName"`
	ParentIndexNumber int               `json:"ParentIndexNumber"`
	IndexNumber       int               `json:"IndexNumber"`
	UserData          *userDataDto      `json:"UserData"`
}

type itemsResponse struct {
	Items            []baseItemDto `json:"Items"`
	TotalRecordCount int           `json:"TotalRecordCount"`
}

// itemTypes maps a media kind to the server's IncludeItemTypes value.
var itemTypes = map[models.MediaKind]string{
	models.KindMovie:   "Movie",
	models.KindSeries:  "Series",
	models.KindEpisode: "Episode",
}

// collectionTypes maps a media kind to the CollectionType of a new library.
var collectionTypes = map[models.MediaKind]string{
	models.KindMovie:   "movies",
	models.KindSeries:  "tvshows",
	models.KindEpisode: "tvshows",
}

func kindFromType(t string) models.MediaKind {
	switch strings.ToLower(t) {
	case "movie":
		return models.KindMovie
	case "series":
		return models.KindSeries
	case "episode":
		return models.KindEpisode
	}
	return ""
}

func providerID(ids map[string]string, key string) string {
	for k, v := range ids {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (d *baseItemDto) providerIDs() models.ProviderIDs {
	return models.ProviderIDs{
		IMDb: providerID(d.ProviderIDs, "Imdb"),
		TMDb: providerID(d.ProviderIDs, "Tmdb"),
		TVDb: providerID(d.ProviderIDs, "Tvdb"),
	}
}

func (u *userDto) toModel() models.User {
	return models.User{
		ID:         u.ID,
		Name:       u.Name,
		IsAdmin:    u.Policy.IsAdministrator,
		IsDisabled: u.Policy.IsDisabled,
	}
}

func (v *virtualFolderDto) toModel() models.Library {
	return models.Library{
		ID:             v.ItemID,
		Name:           v.Name,
		CollectionType: v.CollectionType,
		Paths:          v.Locations,
	}
}

func (d *baseItemDto) toCatalogItem(lib *models.Library, imageURL string) models.CatalogItem {
	item := models.CatalogItem{
		ID:              d.ID,
		Kind:            kindFromType(d.Type),
		Title:           strings.TrimSpace(d.Name),
		Year:            d.ProductionYear,
		Genres:          d.Genres,
		Overview:        d.Overview,
		CommunityRating: d.CommunityRating,
		ProviderIDs:     d.providerIDs(),
		Path:            d.Path,
		RuntimeTicks:    d.RunTimeTicks,
		ImageURL:        imageURL,
		SeriesID:        d.SeriesID,
		SeriesName:      d.SeriesName,
		SeasonNumber:    d.ParentIndexNumber,
		EpisodeNumber:   d.IndexNumber,
	}
	if lib != nil {
		item.LibraryID = lib.ID
	}
	return item
}

// toHistoryEntry returns the user's engagement with the item, or false when
// there is none worth recording.
func (d *baseItemDto) toHistoryEntry(userID string) (models.WatchHistoryEntry, bool) {
	ud := d.UserData
	if ud == nil {
		return models.WatchHistoryEntry{}, false
	}
	rating := ud.Rating
	if rating != nil && *rating <= 0 {
		rating = nil
	}
	if !ud.Played && ud.PlayCount == 0 && !ud.IsFavorite && rating == nil {
		return models.WatchHistoryEntry{}, false
	}

	entry := models.WatchHistoryEntry{
		UserID:     userID,
		ItemID:     d.ID,
		Kind:       kindFromType(d.Type),
		PlayCount:  ud.PlayCount,
		Played:     ud.Played,
		IsFavorite: ud.IsFavorite,
		UserRating: rating,
	}
	if entry.Played && entry.PlayCount == 0 {
		entry.PlayCount = 1
	}
	if t, err := models.ParseProviderTime(ud.LastPlayedDate); err == nil {
		entry.LastPlayedAt = &t
	}
	return entry, true
}

func (d *baseItemDto) toResumeItem(lib *models.Library, imageURL string) models.ResumeItem {
	item := models.ResumeItem{
		ID:            d.ID,
		Kind:          kindFromType(d.Type),
		Title:         strings.TrimSpace(d.Name),
		Year:          d.ProductionYear,
		Overview:      d.Overview,
		ProviderIDs:   d.providerIDs(),
		RuntimeTicks:  d.RunTimeTicks,
		Path:          d.Path,
		ImageURL:      imageURL,
		SeriesID:      d.SeriesID,
		SeriesName:    d.SeriesName,
		SeasonNumber:  d.ParentIndexNumber,
		EpisodeNumber: d.IndexNumber,
	}
	if lib != nil {
		item.LibraryID = lib.ID
		item.LibraryName = lib.Name
	}
	if ud := d.UserData; ud != nil {
		item.PositionTicks = ud.PlaybackPositionTicks
		switch {
		case ud.PlayedPercentage != nil:
			item.ProgressPercent = *ud.PlayedPercentage
		case d.RunTimeTicks > 0:
			item.ProgressPercent = float64(ud.PlaybackPositionTicks) * 100 / float64(d.RunTimeTicks)
		}
		if t, err := models.ParseProviderTime(ud.LastPlayedDate); err == nil {
			item.LastPlayedAt = t
		}
	}
	return item
}
