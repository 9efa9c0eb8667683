// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
database_schema.go - Database Schema Management

Tables:
  - movies, series, episodes: catalog metadata mirrored from the media server
  - watch_history: per-user engagement per item (movies, series, episodes)
  - movie_embeddings, series_embeddings, episode_embeddings: one vector per
    (item, model) with the canonical text it was generated from
  - user_taste_profiles: one vector per (user, media kind)
  - continue_watching: deduplicated resume items, replaced each sync
  - recommendation_runs, recommendation_candidates: run headers and every
    scored candidate, finalists flagged as selected
  - virtual_libraries: generated libraries and their provider ids
  - user_excluded_libraries: per-user library opt-outs

Every write path is an INSERT ... ON CONFLICT DO UPDATE keyed by the unique
constraints declared here, so re-running any sync is idempotent.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/models"
)

// embeddingTables maps a media kind to its embedding table.
var embeddingTables = map[models.MediaKind]string{
	models.KindMovie:   "movie_embeddings",
	models.KindSeries:  "series_embeddings",
	models.KindEpisode: "episode_embeddings",
}

// catalogTables maps a media kind to its catalog table.
var catalogTables = map[models.MediaKind]string{
	models.KindMovie:   "movies",
	models.KindSeries:  "series",
	models.KindEpisode: "episodes",
}

func embeddingTable(kind models.MediaKind) (string, error) {
	t, ok := embeddingTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return t, nil
}

func catalogTable(kind models.MediaKind) (string, error) {
	t, ok := catalogTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return t, nil
}

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func catalogColumns() string {
	return `
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			year INTEGER,
			genres TEXT,
			overview TEXT,
			community_rating DOUBLE,
			imdb_id TEXT,
			tmdb_id TEXT,
			tvdb_id TEXT,
			path TEXT,
			library_id TEXT,
			runtime_ticks BIGINT,
			image_url TEXT,
			updated_at TIMESTAMP NOT NULL`
}

func embeddingColumns() string {
	return `
			item_id TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding FLOAT[] NOT NULL,
			canonical_text TEXT,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (item_id, model)`
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS movies (` + catalogColumns() + `
		)`,
		`CREATE TABLE IF NOT EXISTS series (` + catalogColumns() + `
		)`,
		`CREATE TABLE IF NOT EXISTS episodes (` + catalogColumns() + `,
			series_id TEXT,
			series_name TEXT,
			season_number INTEGER,
			episode_number INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS watch_history (
			user_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			item_kind TEXT NOT NULL,
			play_count INTEGER NOT NULL DEFAULT 0,
			played BOOLEAN NOT NULL DEFAULT false,
			is_favorite BOOLEAN NOT NULL DEFAULT false,
			user_rating DOUBLE,
			last_played_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, item_id)
		)`,

		`CREATE TABLE IF NOT EXISTS movie_embeddings (` + embeddingColumns() + `
		)`,
		`CREATE TABLE IF NOT EXISTS series_embeddings (` + embeddingColumns() + `
		)`,
		`CREATE TABLE IF NOT EXISTS episode_embeddings (` + embeddingColumns() + `
		)`,

		`CREATE TABLE IF NOT EXISTS user_taste_profiles (
			user_id TEXT NOT NULL,
			media_type TEXT NOT NULL,
			embedding FLOAT[],
			model TEXT,
			auto_updated_at TIMESTAMP,
			user_modified_at TIMESTAMP,
			is_locked BOOLEAN NOT NULL DEFAULT false,
			refresh_interval_days INTEGER NOT NULL DEFAULT 7,
			UNIQUE (user_id, media_type)
		)`,

		`CREATE TABLE IF NOT EXISTS continue_watching (
			user_id TEXT NOT NULL,
			provider_item_id TEXT NOT NULL,
			identity_key TEXT NOT NULL,
			item_kind TEXT NOT NULL,
			title TEXT NOT NULL,
			year INTEGER,
			overview TEXT,
			imdb_id TEXT,
			tmdb_id TEXT,
			tvdb_id TEXT,
			progress_percent DOUBLE NOT NULL DEFAULT 0,
			position_ticks BIGINT NOT NULL DEFAULT 0,
			runtime_ticks BIGINT NOT NULL DEFAULT 0,
			last_played_at TIMESTAMP,
			library_id TEXT,
			library_name TEXT,
			path TEXT,
			image_url TEXT,
			series_id TEXT,
			series_name TEXT,
			season_number INTEGER,
			episode_number INTEGER,
			synced_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, provider_item_id)
		)`,

		`CREATE TABLE IF NOT EXISTS recommendation_runs (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			media_type TEXT NOT NULL,
			model TEXT,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			candidate_count INTEGER NOT NULL DEFAULT 0,
			selected_count INTEGER NOT NULL DEFAULT 0,
			added INTEGER NOT NULL DEFAULT 0,
			unchanged INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS recommendation_candidates (
			run_id UUID NOT NULL,
			item_id TEXT NOT NULL,
			rank INTEGER NOT NULL,
			selected BOOLEAN NOT NULL,
			similarity DOUBLE,
			novelty DOUBLE NOT NULL,
			rating_score DOUBLE NOT NULL,
			final_score DOUBLE NOT NULL,
			UNIQUE (run_id, item_id)
		)`,

		`CREATE TABLE IF NOT EXISTS virtual_libraries (
			user_id TEXT NOT NULL,
			media_type TEXT NOT NULL,
			purpose TEXT NOT NULL,
			provider_library_id TEXT,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, media_type, purpose)
		)`,

		`CREATE TABLE IF NOT EXISTS user_excluded_libraries (
			user_id TEXT NOT NULL,
			library_id TEXT NOT NULL,
			UNIQUE (user_id, library_id)
		)`,
	}
}

// createIndexes creates secondary indexes for the hot query paths.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_watch_history_user_kind ON watch_history(user_id, item_kind)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_series ON episodes(series_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user_started ON recommendation_runs(user_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_run ON recommendation_candidates(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_continue_watching_user ON continue_watching(user_id)`,
	}

	for _, idx := range indexes {
		if _, err := db.conn.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", idx, err)
		}
	}
	return nil
}
