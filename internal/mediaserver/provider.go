// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package mediaserver is the typed boundary to Jellyfin and Emby. Wire
// payloads are decoded into the DTOs in dto.go and normalized into models
// types before they leave the package.
package mediaserver

import (
	"context"
	"errors"

	"github.com/tomtom215/marquee/internal/models"
)

var (
	// ErrNotFound is returned for unknown users, items or libraries.
	ErrNotFound = errors.New("media server resource not found")

	// ErrUnauthorized means the API key was rejected.
	ErrUnauthorized = errors.New("media server rejected api key")
)

// Provider is every media-server operation the pipeline uses.
type Provider interface {
	Ping(ctx context.Context) error

	GetUsers(ctx context.Context) ([]models.User, error)
	GetLibraries(ctx context.Context) ([]models.Library, error)
	GetResumeItems(ctx context.Context, userID string) ([]models.ResumeItem, error)

	// CreateVirtualLibrary creates a library over path and returns its id.
	CreateVirtualLibrary(ctx context.Context, name, path string, kind models.MediaKind) (string, error)
	RefreshLibrary(ctx context.Context, libraryID string) error

	GetUserLibraryAccess(ctx context.Context, userID string) (*LibraryAccess, error)
	UpdateUserLibraryAccess(ctx context.Context, userID string, allowed []string) error

	ListItems(ctx context.Context, kind models.MediaKind, start, limit int) (*ItemPage, error)
	ListUserItems(ctx context.Context, userID string, kind models.MediaKind, start, limit int) (*HistoryPage, error)

	// ImageURL is the primary image of an item; it needs no credentials.
	ImageURL(itemID string) string
}

// LibraryAccess is the library part of a user's policy.
type LibraryAccess struct {
	EnableAllFolders bool
	EnabledFolders   []string
}

// Allows reports whether the user can see libraryID.
func (a *LibraryAccess) Allows(libraryID string) bool {
	if a.EnableAllFolders {
		return true
	}
	for _, id := range a.EnabledFolders {
		if id == libraryID {
			return true
		}
	}
	return false
}

// ItemPage is one page of catalog items.
type ItemPage struct {
	Items []models.CatalogItem
	Total int
}

// HistoryPage is one page of a user's items reduced to those with any
// engagement. Scanned is the number of items the page covered, which is what
// the next start index advances by.
type HistoryPage struct {
	Entries []models.WatchHistoryEntry
	Scanned int
	Total   int
}
