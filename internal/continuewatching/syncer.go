// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package continuewatching

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/library"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/mediaserver"
	"github.com/tomtom215/marquee/internal/models"
)

// ErrSyncInProgress is returned while a sync for the same user is active.
var ErrSyncInProgress = fmt.Errorf("continue watching sync %w", jobs.ErrInProgress)

// Store persists deduplicated resume state and reads generated libraries.
type Store interface {
	ReplaceContinueWatching(ctx context.Context, userID string, items []models.ResumeItem) error
	ListVirtualLibraries(ctx context.Context) ([]models.VirtualLibrary, error)
}

// LibraryWriter reconciles a library directory.
type LibraryWriter interface {
	Write(ctx context.Context, dir string, items []library.Item) (*library.Result, error)
}

// LibraryPublisher makes a library directory visible on the media server.
type LibraryPublisher interface {
	Publish(ctx context.Context, userID string, target library.Target, result *library.Result) (*models.VirtualLibrary, error)
}

// SyncResult summarizes one user sync.
type SyncResult struct {
	UserID  string                 `json:"user_id"`
	Fetched int                    `json:"fetched"`
	Items   []models.ResumeItem    `json:"items"`
	Library *library.Result        `json:"library,omitempty"`
	Virtual *models.VirtualLibrary `json:"virtual_library,omitempty"`
}

// Syncer fetches, deduplicates, stores and publishes one user's resume state.
type Syncer struct {
	provider  mediaserver.Provider
	store     Store
	writer    LibraryWriter
	publisher LibraryPublisher
	cfg       config.ContinueWatchingConfig
	libCfg    config.LibraryConfig
	guard     *jobs.Guard
	logger    zerolog.Logger
}

// NewSyncer creates a syncer.
func NewSyncer(provider mediaserver.Provider, store Store, writer LibraryWriter, publisher LibraryPublisher,
	cfg config.ContinueWatchingConfig, libCfg config.LibraryConfig) *Syncer {
	return &Syncer{
		provider:  provider,
		store:     store,
		writer:    writer,
		publisher: publisher,
		cfg:       cfg,
		libCfg:    libCfg,
		guard:     jobs.NewGuard(),
		logger:    logging.WithComponent("continue-watching"),
	}
}

// SyncUser refreshes the user's continue-watching library. userName names
// the library and defaults to the id.
func (s *Syncer) SyncUser(ctx context.Context, userID, userName string) (*SyncResult, error) {
	release, ok := s.guard.TryAcquire(userID)
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer release()

	ctx = logging.ContextWithUserID(ctx, userID)
	result := &SyncResult{UserID: userID}

	raw, err := s.provider.GetResumeItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch resume items: %w", err)
	}
	result.Fetched = len(raw)

	generated, err := s.generatedLibraryIDs(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.libraryNames(ctx)
	if err != nil {
		// Names only break ties between equal items.
		logging.Ctx(ctx).Warn().Err(err).Msg("Could not resolve library names")
	}

	items := FilterAndDeduplicate(raw, generated, s.cfg.ExcludedLibraryIDs, func(id string) string { return names[id] })
	items = s.limit(items)
	result.Items = items

	if err := s.store.ReplaceContinueWatching(ctx, userID, items); err != nil {
		return result, fmt.Errorf("store continue watching: %w", err)
	}

	entries := make([]library.Item, len(items))
	for i := range items {
		entries[i] = library.FromResume(&items[i], i+1)
	}

	if userName == "" {
		userName = userID
	}
	target := library.Target{
		Kind:    models.KindMovie,
		Purpose: models.PurposeContinueWatching,
		Name:    config.LibraryName(s.libCfg.ContinueWatchingName, userName, ""),
		Path:    library.Dir(s.libCfg.Root, userID, models.PurposeContinueWatching),
	}

	written, err := s.writer.Write(ctx, target.Path, entries)
	if err != nil {
		return result, fmt.Errorf("write library: %w", err)
	}
	result.Library = written

	vl, err := s.publisher.Publish(ctx, userID, target, written)
	if err != nil {
		return result, fmt.Errorf("publish library: %w", err)
	}
	result.Virtual = vl

	logging.Ctx(ctx).Debug().
		Int("fetched", result.Fetched).
		Int("kept", len(items)).
		Int("added", written.Added).
		Int("deleted", written.Deleted).
		Int("failed", written.Failed).
		Msg("Continue watching synced")
	return result, nil
}

// limit keeps the most recently played max_items, preserving order.
func (s *Syncer) limit(items []models.ResumeItem) []models.ResumeItem {
	n := s.cfg.MaxItems
	if n <= 0 || len(items) <= n {
		return items
	}

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return items[idx[a]].LastPlayedAt.After(items[idx[b]].LastPlayedAt)
	})
	keep := make([]bool, len(items))
	for _, i := range idx[:n] {
		keep[i] = true
	}

	out := make([]models.ResumeItem, 0, n)
	for i := range items {
		if keep[i] {
			out = append(out, items[i])
		}
	}
	return out
}

func (s *Syncer) generatedLibraryIDs(ctx context.Context) ([]string, error) {
	libs, err := s.store.ListVirtualLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generated libraries: %w", err)
	}
	ids := make([]string, 0, len(libs))
	for i := range libs {
		if libs[i].ProviderLibraryID != "" {
			ids = append(ids, libs[i].ProviderLibraryID)
		}
	}
	return ids, nil
}

func (s *Syncer) libraryNames(ctx context.Context) (map[string]string, error) {
	libs, err := s.provider.GetLibraries(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(libs))
	for i := range libs {
		names[libs[i].ID] = libs[i].Name
	}
	return names, nil
}
