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

// catalogSelect lists the scan columns of a catalog table, qualified with
// alias when one is given ("c." for example).
func catalogSelect(kind models.MediaKind, alias string) string {
	cols := fmt.Sprintf(`
	%[1]sid, %[1]stitle, COALESCE(%[1]syear, 0), COALESCE(%[1]sgenres, ''), COALESCE(%[1]soverview, ''),
	%[1]scommunity_rating, COALESCE(%[1]simdb_id, ''), COALESCE(%[1]stmdb_id, ''), COALESCE(%[1]stvdb_id, ''),
	COALESCE(%[1]spath, ''), COALESCE(%[1]slibrary_id, ''), COALESCE(%[1]sruntime_ticks, 0),
	COALESCE(%[1]simage_url, ''), %[1]supdated_at`, alias)
	if kind == models.KindEpisode {
		cols += fmt.Sprintf(`,
	COALESCE(%[1]sseries_id, ''), COALESCE(%[1]sseries_name, ''), COALESCE(%[1]sseason_number, 0), COALESCE(%[1]sepisode_number, 0)`, alias)
	}
	return cols
}

// UpsertCatalogItems inserts or updates a batch of catalog items of one kind
// in a single transaction.
func (db *DB) UpsertCatalogItems(ctx context.Context, kind models.MediaKind, items []models.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, catalogUpsertQuery(table, kind == models.KindEpisode))
	if err != nil {
		return fmt.Errorf("failed to prepare %s upsert: %w", table, err)
	}
	defer closeWithLog(stmt, "catalog upsert statement")

	now := time.Now().UTC()
	for i := range items {
		it := &items[i]
		updatedAt := it.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		args := []interface{}{
			it.ID, it.Title, it.Year, joinList(it.Genres), nullString(it.Overview),
			nullFloat(it.CommunityRating), nullString(it.ProviderIDs.IMDb), nullString(it.ProviderIDs.TMDb),
			nullString(it.ProviderIDs.TVDb), nullString(it.Path), nullString(it.LibraryID),
			it.RuntimeTicks, nullString(it.ImageURL), updatedAt,
		}
		if kind == models.KindEpisode {
			args = append(args, nullString(it.SeriesID), nullString(it.SeriesName), it.SeasonNumber, it.EpisodeNumber)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", kind, it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s upsert: %w", table, err)
	}
	return nil
}

func catalogUpsertQuery(table string, episode bool) string {
	cols := `id, title, year, genres, overview, community_rating, imdb_id, tmdb_id, tvdb_id,
		path, library_id, runtime_ticks, image_url, updated_at`
	values := `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`
	update := `
			title = EXCLUDED.title,
			year = EXCLUDED.year,
			genres = EXCLUDED.genres,
			overview = EXCLUDED.overview,
			community_rating = EXCLUDED.community_rating,
			imdb_id = EXCLUDED.imdb_id,
			tmdb_id = EXCLUDED.tmdb_id,
			tvdb_id = EXCLUDED.tvdb_id,
			path = EXCLUDED.path,
			library_id = EXCLUDED.library_id,
			runtime_ticks = EXCLUDED.runtime_ticks,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at`
	if episode {
		cols += `, series_id, series_name, season_number, episode_number`
		values += `, ?, ?, ?, ?`
		// series_id is indexed and never changes for an episode.
		update += `,
			series_name = EXCLUDED.series_name,
			season_number = EXCLUDED.season_number,
			episode_number = EXCLUDED.episode_number`
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`, table, cols, values, update)
}

func scanCatalogItem(kind models.MediaKind, extra ...interface{}) scanFunc[models.CatalogItem] {
	return func(rows *sql.Rows) (models.CatalogItem, error) {
		var (
			it     models.CatalogItem
			genres string
			rating sql.NullFloat64
		)
		dest := []interface{}{
			&it.ID, &it.Title, &it.Year, &genres, &it.Overview,
			&rating, &it.ProviderIDs.IMDb, &it.ProviderIDs.TMDb, &it.ProviderIDs.TVDb,
			&it.Path, &it.LibraryID, &it.RuntimeTicks, &it.ImageURL, &it.UpdatedAt,
		}
		if kind == models.KindEpisode {
			dest = append(dest, &it.SeriesID, &it.SeriesName, &it.SeasonNumber, &it.EpisodeNumber)
		}
		dest = append(dest, extra...)
		if err := rows.Scan(dest...); err != nil {
			return it, err
		}
		it.Kind = kind
		it.Genres = splitList(genres)
		it.CommunityRating = floatPtr(rating)
		return it, nil
	}
}

// GetCatalogItems returns the catalog rows for ids, keyed by id. Unknown ids
// are absent from the map.
func (db *DB) GetCatalogItems(ctx context.Context, kind models.MediaKind, ids []string) (map[string]models.CatalogItem, error) {
	result := make(map[string]models.CatalogItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	wb := query.NewWhereBuilder().AddIn("id", ids)
	where, args := wb.Build()
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, catalogSelect(kind, ""), table, where)

	items, err := queryAndScan(ctx, db.conn, q, args, scanCatalogItem(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	for _, it := range items {
		result[it.ID] = it
	}
	return result, nil
}

// ListEpisodes returns a series' episodes in season/episode order.
func (db *DB) ListEpisodes(ctx context.Context, seriesID string) ([]models.CatalogItem, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	q := fmt.Sprintf(`SELECT %s FROM episodes WHERE series_id = ?
		ORDER BY COALESCE(season_number, 0), COALESCE(episode_number, 0), id`, catalogSelect(models.KindEpisode, ""))

	items, err := queryAndScan(ctx, db.conn, q, []interface{}{seriesID}, scanCatalogItem(models.KindEpisode))
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes for series %s: %w", seriesID, err)
	}
	return items, nil
}

// ListItemsMissingEmbedding returns up to limit catalog items that have no
// vector for model, in id order starting after afterID. Paging by cursor
// keeps items that failed to embed from being returned forever.
func (db *DB) ListItemsMissingEmbedding(ctx context.Context, kind models.MediaKind, model, afterID string, limit int) ([]models.CatalogItem, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	embTable, err := embeddingTable(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	q := fmt.Sprintf(`SELECT %s FROM %s c
		WHERE c.id > ?
		  AND NOT EXISTS (SELECT 1 FROM %s e WHERE e.item_id = c.id AND e.model = ?)
		ORDER BY c.id
		LIMIT ?`, catalogSelect(kind, "c."), table, embTable)

	items, err := queryAndScan(ctx, db.conn, q, []interface{}{afterID, model, limit}, scanCatalogItem(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s missing embeddings: %w", kind, err)
	}
	return items, nil
}

// CountItemsMissingEmbedding is the total ListItemsMissingEmbedding would
// page through; it seeds job progress totals.
func (db *DB) CountItemsMissingEmbedding(ctx context.Context, kind models.MediaKind, model string) (int, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return 0, err
	}
	embTable, err := embeddingTable(kind)
	if err != nil {
		return 0, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s c
		WHERE NOT EXISTS (SELECT 1 FROM %s e WHERE e.item_id = c.id AND e.model = ?)`, table, embTable)
	if err := db.conn.QueryRowContext(ctx, q, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s missing embeddings: %w", kind, err)
	}
	return n, nil
}

// CandidateFilter selects unwatched catalog items for scoring.
type CandidateFilter struct {
	UserID             string
	Kind               models.MediaKind
	Model              string
	Profile            []float32
	ExcludedLibraryIDs []string
	Limit              int
}

// ListCandidates returns catalog items of filter.Kind the user has not
// engaged with, with cosine similarity to filter.Profile computed in the
// database. Items without an embedding for the model carry a nil similarity
// and sort after those with one.
func (db *DB) ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.CandidateItem, error) {
	if filter.Kind == models.KindEpisode {
		return nil, fmt.Errorf("%w: episodes are not recommended directly", ErrUnsupportedKind)
	}
	table, err := catalogTable(filter.Kind)
	if err != nil {
		return nil, err
	}
	embTable, err := embeddingTable(filter.Kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	wb := query.NewWhereBuilder()
	wb.AddNotIn("c.library_id", filter.ExcludedLibraryIDs)
	wb.AddClause(watchedExclusion(filter.Kind), filter.UserID)
	where, whereArgs := wb.Build()

	// Without a profile there is nothing to compare against; the pool is
	// taken by community rating and similarity stays NULL.
	simExpr := `CAST(NULL AS DOUBLE)`
	order := `c.community_rating DESC NULLS LAST, c.id`
	args := make([]interface{}, 0, len(whereArgs)+3)
	if len(filter.Profile) > 0 {
		profile, err := encodeVector(filter.Profile)
		if err != nil {
			return nil, err
		}
		simExpr = `list_cosine_similarity(e.embedding, CAST(? AS FLOAT[]))`
		order = `similarity DESC NULLS LAST, c.id`
		args = append(args, profile)
	}
	args = append(args, filter.Model)
	args = append(args, whereArgs...)
	args = append(args, filter.Limit)

	q := fmt.Sprintf(`SELECT %s,
			%s AS similarity
		FROM %s c
		LEFT JOIN %s e ON e.item_id = c.id AND e.model = ?
		WHERE %s
		ORDER BY %s
		LIMIT ?`, catalogSelect(filter.Kind, "c."), simExpr, table, embTable, where, order)

	var similarity sql.NullFloat64
	scan := scanCatalogItem(filter.Kind, &similarity)
	items, err := queryAndScan(ctx, db.conn, q, args, func(rows *sql.Rows) (models.CandidateItem, error) {
		it, err := scan(rows)
		if err != nil {
			return models.CandidateItem{}, err
		}
		return models.CandidateItem{CatalogItem: it, Similarity: floatPtr(similarity)}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s candidates: %w", filter.Kind, err)
	}
	return items, nil
}

// watchedExclusion drops anything the user has engaged with. For series an
// engagement with any episode counts.
func watchedExclusion(kind models.MediaKind) string {
	if kind == models.KindSeries {
		return `NOT EXISTS (
			SELECT 1 FROM watch_history wh
			LEFT JOIN episodes ep ON ep.id = wh.item_id AND wh.item_kind = 'episode'
			WHERE wh.user_id = ?
			  AND (wh.played OR wh.play_count > 0 OR wh.is_favorite)
			  AND (wh.item_id = c.id OR ep.series_id = c.id))`
	}
	return `NOT EXISTS (
			SELECT 1 FROM watch_history wh
			WHERE wh.user_id = ? AND wh.item_id = c.id
			  AND (wh.played OR wh.play_count > 0))`
}
