// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/database/query"
	"github.com/tomtom215/marquee/internal/models"
)

// ReplaceContinueWatching makes the user's stored rows equal items: rows for
// items no longer present are deleted and the rest are upserted, all in one
// transaction.
func (db *DB) ReplaceContinueWatching(ctx context.Context, userID string, items []models.ResumeItem) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	wb := query.NewWhereBuilder()
	wb.AddClause("user_id = ?", userID)
	wb.AddNotIn("provider_item_id", ids)
	where, args := wb.Build()
	if _, err := tx.ExecContext(ctx, `DELETE FROM continue_watching WHERE `+where, args...); err != nil {
		return fmt.Errorf("failed to delete stale continue watching rows: %w", err)
	}

	if len(items) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO continue_watching (
				user_id, provider_item_id, identity_key, item_kind, title, year, overview,
				imdb_id, tmdb_id, tvdb_id, progress_percent, position_ticks, runtime_ticks,
				last_played_at, library_id, library_name, path, image_url,
				series_id, series_name, season_number, episode_number, synced_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, provider_item_id) DO UPDATE SET
				identity_key = EXCLUDED.identity_key,
				item_kind = EXCLUDED.item_kind,
				title = EXCLUDED.title,
				year = EXCLUDED.year,
				overview = EXCLUDED.overview,
				imdb_id = EXCLUDED.imdb_id,
				tmdb_id = EXCLUDED.tmdb_id,
				tvdb_id = EXCLUDED.tvdb_id,
				progress_percent = EXCLUDED.progress_percent,
				position_ticks = EXCLUDED.position_ticks,
				runtime_ticks = EXCLUDED.runtime_ticks,
				last_played_at = EXCLUDED.last_played_at,
				library_id = EXCLUDED.library_id,
				library_name = EXCLUDED.library_name,
				path = EXCLUDED.path,
				image_url = EXCLUDED.image_url,
				series_id = EXCLUDED.series_id,
				series_name = EXCLUDED.series_name,
				season_number = EXCLUDED.season_number,
				episode_number = EXCLUDED.episode_number,
				synced_at = EXCLUDED.synced_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare continue watching upsert: %w", err)
		}
		defer closeWithLog(stmt, "continue watching statement")

		now := time.Now().UTC()
		for i := range items {
			it := &items[i]
			var lastPlayed sql.NullTime
			if !it.LastPlayedAt.IsZero() {
				lastPlayed = sql.NullTime{Time: it.LastPlayedAt, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				userID, it.ID, it.IdentityKey(), string(it.Kind), it.Title, it.Year, nullString(it.Overview),
				nullString(it.ProviderIDs.IMDb), nullString(it.ProviderIDs.TMDb), nullString(it.ProviderIDs.TVDb),
				it.ProgressPercent, it.PositionTicks, it.RuntimeTicks,
				lastPlayed, nullString(it.LibraryID), nullString(it.LibraryName), nullString(it.Path), nullString(it.ImageURL),
				nullString(it.SeriesID), nullString(it.SeriesName), it.SeasonNumber, it.EpisodeNumber, now,
			); err != nil {
				return fmt.Errorf("failed to upsert continue watching %s: %w", it.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit continue watching: %w", err)
	}
	return nil
}

// ListContinueWatching returns the user's stored rows, most recent first.
func (db *DB) ListContinueWatching(ctx context.Context, userID string) ([]models.ContinueWatchingEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	entries, err := queryAndScan(ctx, db.conn, `
		SELECT provider_item_id, identity_key, item_kind, title, COALESCE(year, 0), COALESCE(overview, ''),
			COALESCE(imdb_id, ''), COALESCE(tmdb_id, ''), COALESCE(tvdb_id, ''),
			progress_percent, position_ticks, runtime_ticks, last_played_at,
			COALESCE(library_id, ''), COALESCE(library_name, ''), COALESCE(path, ''), COALESCE(image_url, ''),
			COALESCE(series_id, ''), COALESCE(series_name, ''), COALESCE(season_number, 0), COALESCE(episode_number, 0),
			synced_at
		FROM continue_watching
		WHERE user_id = ?
		ORDER BY last_played_at DESC NULLS LAST, provider_item_id`,
		[]interface{}{userID},
		func(rows *sql.Rows) (models.ContinueWatchingEntry, error) {
			var (
				e          models.ContinueWatchingEntry
				kind       string
				lastPlayed sql.NullTime
			)
			it := &e.Item
			if err := rows.Scan(&it.ID, &e.IdentityKey, &kind, &it.Title, &it.Year, &it.Overview,
				&it.ProviderIDs.IMDb, &it.ProviderIDs.TMDb, &it.ProviderIDs.TVDb,
				&it.ProgressPercent, &it.PositionTicks, &it.RuntimeTicks, &lastPlayed,
				&it.LibraryID, &it.LibraryName, &it.Path, &it.ImageURL,
				&it.SeriesID, &it.SeriesName, &it.SeasonNumber, &it.EpisodeNumber,
				&e.SyncedAt); err != nil {
				return e, err
			}
			e.UserID = userID
			it.Kind = models.MediaKind(kind)
			if lastPlayed.Valid {
				it.LastPlayedAt = lastPlayed.Time.UTC()
			}
			return e, nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list continue watching: %w", err)
	}
	return entries, nil
}
