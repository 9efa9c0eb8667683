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

// UpsertWatchHistory writes a batch of engagement rows in one transaction.
// item_kind is part of the row identity and is not rewritten on conflict.
func (db *DB) UpsertWatchHistory(ctx context.Context, entries []models.WatchHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO watch_history (
			user_id, item_id, item_kind, play_count, played, is_favorite,
			user_rating, last_played_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE SET
			play_count = EXCLUDED.play_count,
			played = EXCLUDED.played,
			is_favorite = EXCLUDED.is_favorite,
			user_rating = EXCLUDED.user_rating,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare watch history upsert: %w", err)
	}
	defer closeWithLog(stmt, "watch history statement")

	now := time.Now().UTC()
	for i := range entries {
		e := &entries[i]
		if _, err := stmt.ExecContext(ctx,
			e.UserID, e.ItemID, string(e.Kind), e.PlayCount, e.Played, e.IsFavorite,
			nullFloat(e.UserRating), nullTime(e.LastPlayedAt), now,
		); err != nil {
			return fmt.Errorf("failed to upsert watch history %s/%s: %w", e.UserID, e.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit watch history: %w", err)
	}
	return nil
}

// WatchedFilter narrows WatchedItems.
type WatchedFilter struct {
	UserID             string
	Kind               models.MediaKind
	ExcludedLibraryIDs []string
}

// WatchedItems derives the user's engaged movies, or series aggregated from
// their episode rows, excluding items from the given libraries. Results are
// ordered by item id so callers see a deterministic sequence.
func (db *DB) WatchedItems(ctx context.Context, filter WatchedFilter) ([]models.WatchedItem, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	switch filter.Kind {
	case models.KindMovie:
		return db.watchedMovies(ctx, filter)
	case models.KindSeries:
		return db.watchedSeries(ctx, filter)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, filter.Kind)
	}
}

func (db *DB) watchedMovies(ctx context.Context, filter WatchedFilter) ([]models.WatchedItem, error) {
	wb := query.NewWhereBuilder()
	wb.AddEquals("wh.user_id", filter.UserID)
	wb.AddEquals("wh.item_kind", string(models.KindMovie))
	wb.AddNotIn("m.library_id", filter.ExcludedLibraryIDs)
	wb.AddClause("(wh.played OR wh.play_count > 0 OR wh.is_favorite)")
	where, args := wb.Build()

	q := `
		SELECT m.id, m.title, COALESCE(m.genres, ''), COALESCE(m.library_id, ''),
			wh.play_count, wh.is_favorite, wh.user_rating, wh.last_played_at
		FROM watch_history wh
		JOIN movies m ON m.id = wh.item_id
		WHERE ` + where + `
		ORDER BY m.id`

	items, err := queryAndScan(ctx, db.conn, q, args, func(rows *sql.Rows) (models.WatchedItem, error) {
		var (
			it      models.WatchedItem
			genres  string
			rating  sql.NullFloat64
			lastPly sql.NullTime
		)
		if err := rows.Scan(&it.ItemID, &it.Title, &genres, &it.LibraryID,
			&it.PlayCount, &it.IsFavorite, &rating, &lastPly); err != nil {
			return it, err
		}
		it.Kind = models.KindMovie
		it.Genres = splitList(genres)
		it.UserRating = floatPtr(rating)
		it.LastPlayedAt = timePtr(lastPly)
		return it, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query watched movies: %w", err)
	}
	return items, nil
}

// watchedSeries aggregates episode engagement per series. Favorite and rating
// come from the series-level row; the most recent play of any episode wins
// over the series row's own timestamp.
func (db *DB) watchedSeries(ctx context.Context, filter WatchedFilter) ([]models.WatchedItem, error) {
	wb := query.NewWhereBuilder()
	wb.AddClause("(ep.series_id IS NOT NULL OR fav.item_id IS NOT NULL)")
	wb.AddNotIn("s.library_id", filter.ExcludedLibraryIDs)
	where, whereArgs := wb.Build()

	q := `
		WITH ep AS (
			SELECT e.series_id,
				COUNT(*) AS episode_count,
				CAST(SUM(wh.play_count) AS BIGINT) AS plays,
				MAX(wh.last_played_at) AS last_played
			FROM watch_history wh
			JOIN episodes e ON e.id = wh.item_id
			WHERE wh.user_id = ? AND wh.item_kind = 'episode'
			  AND (wh.played OR wh.play_count > 0)
			  AND e.series_id IS NOT NULL
			GROUP BY e.series_id
		), fav AS (
			SELECT item_id, is_favorite, user_rating, last_played_at
			FROM watch_history
			WHERE user_id = ? AND item_kind = 'series'
			  AND (is_favorite OR user_rating IS NOT NULL OR played)
		), totals AS (
			SELECT series_id, COUNT(*) AS total FROM episodes
			WHERE series_id IS NOT NULL GROUP BY series_id
		)
		SELECT s.id, s.title, COALESCE(s.genres, ''), COALESCE(s.library_id, ''),
			COALESCE(ep.plays, 0), COALESCE(ep.episode_count, 0), COALESCE(totals.total, 0),
			COALESCE(fav.is_favorite, false), fav.user_rating,
			COALESCE(ep.last_played, fav.last_played_at)
		FROM series s
		LEFT JOIN ep ON ep.series_id = s.id
		LEFT JOIN fav ON fav.item_id = s.id
		LEFT JOIN totals ON totals.series_id = s.id
		WHERE ` + where + `
		ORDER BY s.id`

	args := make([]interface{}, 0, len(whereArgs)+2)
	args = append(args, filter.UserID, filter.UserID)
	args = append(args, whereArgs...)

	items, err := queryAndScan(ctx, db.conn, q, args, func(rows *sql.Rows) (models.WatchedItem, error) {
		var (
			it      models.WatchedItem
			genres  string
			plays   int64
			rating  sql.NullFloat64
			lastPly sql.NullTime
		)
		if err := rows.Scan(&it.ItemID, &it.Title, &genres, &it.LibraryID,
			&plays, &it.EpisodeCount, &it.TotalEpisodes, &it.IsFavorite, &rating, &lastPly); err != nil {
			return it, err
		}
		it.Kind = models.KindSeries
		it.PlayCount = int(plays)
		it.Genres = splitList(genres)
		it.UserRating = floatPtr(rating)
		it.LastPlayedAt = timePtr(lastPly)
		return it, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query watched series: %w", err)
	}
	return items, nil
}

// ExcludedLibraries returns the libraries a user opted out of.
func (db *DB) ExcludedLibraries(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	ids, err := queryAndScan(ctx, db.conn,
		`SELECT library_id FROM user_excluded_libraries WHERE user_id = ? ORDER BY library_id`,
		[]interface{}{userID},
		func(rows *sql.Rows) (string, error) {
			var id string
			err := rows.Scan(&id)
			return id, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to query excluded libraries: %w", err)
	}
	return ids, nil
}

// SetExcludedLibraries replaces a user's opt-out list.
func (db *DB) SetExcludedLibraries(ctx context.Context, userID string, libraryIDs []string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_excluded_libraries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear excluded libraries: %w", err)
	}
	for _, id := range libraryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_excluded_libraries (user_id, library_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			userID, id); err != nil {
			return fmt.Errorf("failed to insert excluded library %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit excluded libraries: %w", err)
	}
	return nil
}
