// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package library materializes ranked item lists as virtual libraries on
// disk and publishes them to the media server.
//
// A library directory holds one entry per item. Movies and episodes are a
// set of sibling files sharing a base name:
//
//	Heat (1995) [imdbid-tt0113277].strm
//	Heat (1995) [imdbid-tt0113277].nfo
//	Heat (1995) [imdbid-tt0113277]-poster.jpg
//
// Series are a folder of that name holding tvshow.nfo, poster.jpg and one
// .strm per episode. Write reconciles the directory against the desired set:
// after it returns, the entries on disk are exactly the desired entries that
// could be written.
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/validation"
)

const (
	strmExt      = ".strm"
	nfoExt       = ".nfo"
	posterSuffix = "-poster.jpg"

	seriesNFO    = "tvshow.nfo"
	seriesPoster = "poster.jpg"

	dirPerm  = 0o755
	filePerm = 0o644
)

// PosterSource returns poster bytes for an image URL.
type PosterSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ItemFailure is one desired item that could not be written.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Result counts what one Write did. Added and Unchanged partition the
// written-or-kept entries by whether they existed before; Written counts
// entries where at least one file was created or changed.
type Result struct {
	Written   int           `json:"written"`
	Added     int           `json:"added"`
	Unchanged int           `json:"unchanged"`
	Deleted   int           `json:"deleted"`
	Failed    int           `json:"failed"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// Changed reports whether the directory differs from before the write.
func (r *Result) Changed() bool {
	return r.Written > 0 || r.Deleted > 0
}

func (r *Result) fail(it *Item, reason string) {
	r.Failed++
	r.Failures = append(r.Failures, ItemFailure{ItemID: it.ID, Title: it.Title, Reason: reason})
}

// Writer reconciles library directories.
type Writer struct {
	paths   *PathMapper
	posters PosterSource
	now     func() time.Time
	logger  zerolog.Logger
}

// NewWriter creates a writer. A nil posters source disables poster files;
// the sidecar still carries the image URL.
func NewWriter(paths *PathMapper, posters PosterSource) *Writer {
	return &Writer{
		paths:   paths,
		posters: posters,
		now:     time.Now,
		logger:  logging.WithComponent("library-writer"),
	}
}

// existingEntry is an entry found on disk before the write.
type existingEntry struct {
	isDir bool
	files []string
}

// Write makes dir hold exactly items. Items are written in slice order;
// per-item failures are recorded and skipped. Cancellation is checked
// between items, and a canceled write deletes nothing.
func (w *Writer) Write(ctx context.Context, dir string, items []Item) (*Result, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	existing, err := scanEntries(dir)
	if err != nil {
		return nil, err
	}

	log := w.logger.With().Str("dir", dir).Logger()
	result := &Result{}
	desired := make(map[string]bool, len(items))
	now := w.now()

	for i := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		it := &items[i]

		if err := validation.ValidateStruct(it); err != nil {
			log.Warn().Str("item_id", it.ID).Err(err).Msg("Skipping invalid library item")
			result.fail(it, err.Error())
			continue
		}

		name := it.EntryName()
		if desired[name] {
			result.fail(it, "duplicate entry "+name)
			continue
		}
		desired[name] = true

		prev, existed := existing[name]
		changed, err := w.writeEntry(ctx, dir, name, it, prev, now)
		if err != nil {
			log.Warn().Str("item_id", it.ID).Str("entry", name).Err(err).Msg("Failed to write library item")
			result.fail(it, err.Error())
			continue
		}

		if existed {
			result.Unchanged++
		} else {
			result.Added++
		}
		if changed {
			result.Written++
		}
	}

	for _, name := range sortedKeys(existing) {
		if desired[name] {
			continue
		}
		if err := removeEntry(dir, existing[name]); err != nil {
			log.Warn().Str("entry", name).Err(err).Msg("Failed to delete stale library entry")
			continue
		}
		result.Deleted++
	}

	metrics.RecordLibraryWrite(filepath.Base(dir), result.Added, result.Unchanged, result.Deleted, result.Failed)
	log.Debug().
		Int("added", result.Added).
		Int("unchanged", result.Unchanged).
		Int("deleted", result.Deleted).
		Int("failed", result.Failed).
		Int("written", result.Written).
		Msg("Library reconciled")

	return result, nil
}

func (w *Writer) writeEntry(ctx context.Context, dir, name string, it *Item, prev *existingEntry, now time.Time) (bool, error) {
	if it.Kind == models.KindSeries {
		if prev != nil && !prev.isDir {
			if err := removeEntry(dir, prev); err != nil {
				return false, err
			}
		}
		return w.writeSeries(ctx, filepath.Join(dir, name), it, now)
	}

	if prev != nil && prev.isDir {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return false, fmt.Errorf("replace folder entry: %w", err)
		}
	}
	if strings.TrimSpace(it.Path) == "" {
		return false, errors.New("missing media path")
	}

	nfo, err := renderNFO(it, now)
	if err != nil {
		return false, err
	}

	base := filepath.Join(dir, name)
	changed, err := writeFileIfChanged(base+strmExt, w.pointer(it.Path))
	if err != nil {
		return false, err
	}
	nfoChanged, err := writeFileIfChanged(base+nfoExt, nfo)
	if err != nil {
		return changed, err
	}
	posterChanged := w.writePoster(ctx, base+posterSuffix, it)

	return changed || nfoChanged || posterChanged, nil
}

func (w *Writer) writeSeries(ctx context.Context, folder string, it *Item, now time.Time) (bool, error) {
	type pointer struct {
		file string
		data []byte
	}

	pointers := make([]pointer, 0, len(it.Episodes))
	seen := make(map[string]bool, len(it.Episodes))
	for i := range it.Episodes {
		ep := &it.Episodes[i]
		if strings.TrimSpace(ep.Path) == "" {
			continue
		}
		file := ep.EpisodeName(it.Title) + strmExt
		if seen[file] {
			continue
		}
		seen[file] = true
		pointers = append(pointers, pointer{file: file, data: w.pointer(ep.Path)})
	}
	if len(pointers) == 0 {
		return false, errors.New("no playable episodes")
	}

	if err := os.MkdirAll(folder, dirPerm); err != nil {
		return false, fmt.Errorf("create series folder: %w", err)
	}

	nfo, err := renderNFO(it, now)
	if err != nil {
		return false, err
	}
	changed, err := writeFileIfChanged(filepath.Join(folder, seriesNFO), nfo)
	if err != nil {
		return false, err
	}

	for _, p := range pointers {
		c, err := writeFileIfChanged(filepath.Join(folder, p.file), p.data)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return changed, fmt.Errorf("read series folder: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != strmExt || seen[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(folder, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return changed, fmt.Errorf("remove stale episode: %w", err)
		}
		changed = true
	}

	if w.writePoster(ctx, filepath.Join(folder, seriesPoster), it) {
		changed = true
	}
	return changed, nil
}

// writePoster is best effort: a failed download keeps any poster already on
// disk and does not fail the item.
func (w *Writer) writePoster(ctx context.Context, path string, it *Item) bool {
	if w.posters == nil || it.ImageURL == "" {
		return false
	}
	data, err := w.posters.Fetch(ctx, it.ImageURL)
	if err != nil {
		w.logger.Debug().Str("item_id", it.ID).Err(err).Msg("Poster unavailable")
		return false
	}
	changed, err := writeFileIfChanged(path, data)
	if err != nil {
		w.logger.Warn().Str("item_id", it.ID).Err(err).Msg("Failed to write poster")
		return false
	}
	return changed
}

func (w *Writer) pointer(path string) []byte {
	return []byte(w.paths.Map(path) + "\n")
}

// scanEntries groups the directory contents by entry name. Files that are
// not part of an entry are ignored.
func scanEntries(dir string) (map[string]*existingEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read library directory: %w", err)
	}

	entries := make(map[string]*existingEntry)
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if de.IsDir() {
			entries[name] = &existingEntry{isDir: true, files: []string{name}}
			continue
		}

		base, ok := entryBase(name)
		if !ok {
			continue
		}
		e := entries[base]
		if e == nil {
			e = &existingEntry{}
			entries[base] = e
		}
		e.files = append(e.files, name)
	}
	return entries, nil
}

func entryBase(file string) (string, bool) {
	for _, suffix := range []string{posterSuffix, strmExt, nfoExt} {
		if strings.HasSuffix(file, suffix) && len(file) > len(suffix) {
			return strings.TrimSuffix(file, suffix), true
		}
	}
	return "", false
}

func removeEntry(dir string, e *existingEntry) error {
	for _, f := range e.files {
		path := filepath.Join(dir, f)
		var err error
		if e.isDir {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", f, err)
		}
	}
	return nil
}

// writeFileIfChanged replaces path with data through a temp file and rename
// unless the current content is identical.
func writeFileIfChanged(path string, data []byte) (bool, error) {
	current, err := os.ReadFile(path)
	if err == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".marquee-*")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return false, fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func sortedKeys(m map[string]*existingEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
