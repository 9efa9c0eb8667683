// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package continuewatching

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/library"
	"github.com/tomtom215/marquee/internal/mediaserver"
	"github.com/tomtom215/marquee/internal/models"
)

type fakeProvider struct {
	mediaserver.Provider
	resume    []models.ResumeItem
	resumeErr error
	libraries []models.Library
	users     []models.User
	userCalls int
}

func (f *fakeProvider) GetResumeItems(context.Context, string) ([]models.ResumeItem, error) {
	return f.resume, f.resumeErr
}

func (f *fakeProvider) GetLibraries(context.Context) ([]models.Library, error) {
	return f.libraries, nil
}

func (f *fakeProvider) GetUsers(context.Context) ([]models.User, error) {
	f.userCalls++
	return f.users, nil
}

type fakeStore struct {
	replaced map[string][]models.ResumeItem
	virtual  []models.VirtualLibrary
}

func (f *fakeStore) ReplaceContinueWatching(_ context.Context, userID string, items []models.ResumeItem) error {
	if f.replaced == nil {
		f.replaced = make(map[string][]models.ResumeItem)
	}
	f.replaced[userID] = items
	return nil
}

func (f *fakeStore) ListVirtualLibraries(context.Context) ([]models.VirtualLibrary, error) {
	return f.virtual, nil
}

type fakePublisher struct {
	target library.Target
	result *library.Result
}

func (p *fakePublisher) Publish(_ context.Context, userID string, target library.Target, result *library.Result) (*models.VirtualLibrary, error) {
	p.target, p.result = target, result
	return &models.VirtualLibrary{UserID: userID, Purpose: target.Purpose, ProviderLibraryID: "cw-1"}, nil
}

func newTestSyncer(t *testing.T, provider *fakeProvider, store *fakeStore, pub *fakePublisher, maxItems int) (*Syncer, string) {
	t.Helper()
	root := t.TempDir()
	s := NewSyncer(provider, store, library.NewWriter(nil, nil), pub,
		config.ContinueWatchingConfig{ExcludedLibraryIDs: []string{"lib-kids"}, MaxItems: maxItems},
		config.LibraryConfig{Root: root, ContinueWatchingName: "{user} - Continue Watching"})
	return s, root
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestSyncer_SyncUser(t *testing.T) {
	ep := resume("e1", "lib-a", "", 30, t0)
	ep.Kind = models.KindEpisode
	ep.Title = "Pilot"
	ep.SeriesName = "Show"
	ep.SeasonNumber, ep.EpisodeNumber = 1, 1

	provider := &fakeProvider{
		resume: []models.ResumeItem{
			resume("1", "lib-a", "tt1", 20, t0),
			resume("2", "lib-b", "tt1", 60, t0),
			resume("3", "lib-ai", "tt2", 10, t0),
			resume("4", "lib-kids", "tt3", 10, t0),
			ep,
		},
		libraries: []models.Library{{ID: "lib-a", Name: "Movies"}, {ID: "lib-b", Name: "Movies 4K"}},
	}
	store := &fakeStore{virtual: []models.VirtualLibrary{{UserID: "u2", ProviderLibraryID: "lib-ai"}}}
	pub := &fakePublisher{}
	s, root := newTestSyncer(t, provider, store, pub, 0)

	res, err := s.SyncUser(context.Background(), "u1", "Alice")
	if err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if res.Fetched != 5 || len(res.Items) != 2 {
		t.Fatalf("fetched=%d kept=%d", res.Fetched, len(res.Items))
	}
	if got := store.replaced["u1"]; len(got) != 2 || got[0].ID != "2" || got[0].LibraryName != "Movies 4K" {
		t.Errorf("stored = %+v", got)
	}

	if pub.target.Name != "Alice - Continue Watching" || pub.target.Purpose != models.PurposeContinueWatching ||
		pub.target.Kind != models.KindMovie {
		t.Errorf("target = %+v", pub.target)
	}
	if pub.target.Path != filepath.Join(root, "u1", models.PurposeContinueWatching) {
		t.Errorf("path = %q", pub.target.Path)
	}
	if pub.result.Added != 2 || pub.result.Failed != 0 {
		t.Errorf("result = %+v", pub.result)
	}

	want := []string{
		"Show S01E01 Pilot [id-e1].nfo",
		"Show S01E01 Pilot [id-e1].strm",
		"Title 2 [imdbid-tt1].nfo",
		"Title 2 [imdbid-tt1].strm",
	}
	if got := listDir(t, pub.target.Path); !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}

	// Finishing the movie removes it on the next sync.
	provider.resume = []models.ResumeItem{ep}
	res, err = s.SyncUser(context.Background(), "u1", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if res.Library.Deleted != 1 || res.Library.Added != 0 {
		t.Errorf("second sync = %+v", res.Library)
	}
	if len(store.replaced["u1"]) != 1 {
		t.Errorf("stored %d items, want 1", len(store.replaced["u1"]))
	}
}

func TestSyncer_MaxItemsKeepsMostRecent(t *testing.T) {
	provider := &fakeProvider{resume: []models.ResumeItem{
		resume("old", "lib-a", "tt1", 10, t0.Add(-48*time.Hour)),
		resume("new", "lib-a", "tt2", 10, t0),
		resume("mid", "lib-a", "tt3", 10, t0.Add(-time.Hour)),
	}}
	store := &fakeStore{}
	s, _ := newTestSyncer(t, provider, store, &fakePublisher{}, 2)

	res, err := s.SyncUser(context.Background(), "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(res.Items); len(got) != 2 || got[0] != "new" || got[1] != "mid" {
		t.Errorf("items = %v, want [new mid]", got)
	}
}

func TestSyncer_FetchError(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestSyncer(t, &fakeProvider{resumeErr: errors.New("offline")}, store, &fakePublisher{}, 0)

	if _, err := s.SyncUser(context.Background(), "u1", ""); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := store.replaced["u1"]; ok {
		t.Error("a failed fetch must not replace stored state")
	}
}

func TestSyncer_InProgress(t *testing.T) {
	s, _ := newTestSyncer(t, &fakeProvider{}, &fakeStore{}, &fakePublisher{}, 0)
	release, _ := s.guard.TryAcquire("u1")
	defer release()

	if _, err := s.SyncUser(context.Background(), "u1", ""); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("err = %v, want ErrSyncInProgress", err)
	}
}
