// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package library

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/mediaserver"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

// LibraryStore persists generated library bookkeeping.
type LibraryStore interface {
	GetVirtualLibrary(ctx context.Context, userID string, kind models.MediaKind, purpose string) (*models.VirtualLibrary, error)
	UpsertVirtualLibrary(ctx context.Context, v *models.VirtualLibrary) error
	ListVirtualLibraries(ctx context.Context) ([]models.VirtualLibrary, error)
}

// Target identifies one generated library.
type Target struct {
	Kind    models.MediaKind
	Purpose string
	Name    string
	Path    string
}

// Publisher makes a written directory visible on the media server.
type Publisher struct {
	provider mediaserver.Provider
	store    LibraryStore
	logger   zerolog.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(provider mediaserver.Provider, store LibraryStore) *Publisher {
	return &Publisher{
		provider: provider,
		store:    store,
		logger:   logging.WithComponent("library-publisher"),
	}
}

// Publish ensures the library for target exists on the server, refreshes it
// when result reports changes, and restricts the user's access so they see
// their own generated libraries and no one else's.
func (p *Publisher) Publish(ctx context.Context, userID string, target Target, result *Result) (*models.VirtualLibrary, error) {
	log := p.logger.With().Str("user_id", userID).Str("library", target.Name).Logger()

	rec, err := p.store.GetVirtualLibrary(ctx, userID, target.Kind, target.Purpose)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &models.VirtualLibrary{UserID: userID, Kind: target.Kind, Purpose: target.Purpose}
	}

	libs, err := p.provider.GetLibraries(ctx)
	if err != nil {
		return nil, err
	}

	libraryID := findLibrary(libs, rec.ProviderLibraryID, target.Name)
	created := false
	if libraryID == "" {
		libraryID, err = p.provider.CreateVirtualLibrary(ctx, target.Name, target.Path, collectionKind(target))
		if err != nil {
			return nil, err
		}
		created = true
		libs = append(libs, models.Library{ID: libraryID, Name: target.Name, Paths: []string{target.Path}})
		log.Info().Str("library_id", libraryID).Msg("Created virtual library")
	}

	rec.ProviderLibraryID = libraryID
	rec.Name = target.Name
	rec.Path = target.Path
	if err := p.store.UpsertVirtualLibrary(ctx, rec); err != nil {
		return nil, err
	}

	if !created && result != nil && result.Changed() {
		err := p.provider.RefreshLibrary(ctx, libraryID)
		metrics.RecordLibraryRefresh(target.Name, err)
		if err != nil {
			return rec, err
		}
		log.Debug().Str("library_id", libraryID).Msg("Refresh queued")
	}

	if err := p.syncAccess(ctx, userID, libs, created); err != nil {
		return rec, err
	}
	return rec, nil
}

// syncAccess grants the user every library they could already see plus
// their own generated libraries, minus other users' generated libraries.
func (p *Publisher) syncAccess(ctx context.Context, userID string, libs []models.Library, force bool) error {
	generated, err := p.store.ListVirtualLibraries(ctx)
	if err != nil {
		return err
	}
	own := make(map[string]bool)
	foreign := make(map[string]bool)
	for i := range generated {
		id := generated[i].ProviderLibraryID
		if id == "" {
			continue
		}
		if generated[i].UserID == userID {
			own[id] = true
		} else {
			foreign[id] = true
		}
	}

	access, err := p.provider.GetUserLibraryAccess(ctx, userID)
	if err != nil {
		return err
	}

	var current []string
	if access.EnableAllFolders {
		for i := range libs {
			current = append(current, libs[i].ID)
		}
	} else {
		current = access.EnabledFolders
	}

	allowed := desiredAccess(current, own, foreign)
	if !force && !access.EnableAllFolders && sameSet(allowed, access.EnabledFolders) {
		return nil
	}
	if !force && access.EnableAllFolders && len(foreign) == 0 && sameSet(allowed, current) {
		return nil
	}

	if err := p.provider.UpdateUserLibraryAccess(ctx, userID, allowed); err != nil {
		return fmt.Errorf("sync library access: %w", err)
	}
	p.logger.Info().Str("user_id", userID).Int("libraries", len(allowed)).Msg("Updated library access")
	return nil
}

func desiredAccess(current []string, own, foreign map[string]bool) []string {
	set := make(map[string]bool, len(current)+len(own))
	for _, id := range current {
		if id != "" && !foreign[id] {
			set[id] = true
		}
	}
	for id := range own {
		set[id] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}

func findLibrary(libs []models.Library, id, name string) string {
	for i := range libs {
		if id != "" && libs[i].ID == id {
			return id
		}
	}
	for i := range libs {
		if libs[i].Name == name {
			return libs[i].ID
		}
	}
	return ""
}

// collectionKind picks the server collection type. Continue-watching
// libraries mix movies and episodes and are created as movie libraries.
func collectionKind(t Target) models.MediaKind {
	if t.Purpose == models.PurposeContinueWatching {
		return models.KindMovie
	}
	return t.Kind
}
