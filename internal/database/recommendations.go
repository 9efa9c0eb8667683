// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/marquee/internal/models"
)

// CreateRun inserts a run header in the running state.
func (db *DB) CreateRun(ctx context.Context, run *models.RecommendationRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO recommendation_runs (id, user_id, media_type, model, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, string(run.Kind), nullString(run.Model), run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the terminal status, counts and error of a run.
func (db *DB) FinishRun(ctx context.Context, run *models.RecommendationRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		UPDATE recommendation_runs SET
			status = ?, finished_at = ?, candidate_count = ?, selected_count = ?,
			added = ?, unchanged = ?, deleted = ?, failed = ?, error = ?
		WHERE id = ?`,
		run.Status, nullTime(run.FinishedAt), run.CandidateCount, run.SelectedCount,
		run.Added, run.Unchanged, run.Deleted, run.Failed, nullString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	return nil
}

// SaveCandidates persists every scored candidate of a run.
func (db *DB) SaveCandidates(ctx context.Context, runID string, candidates []models.RecommendationCandidate) error {
	if len(candidates) == 0 {
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
		INSERT INTO recommendation_candidates (
			run_id, item_id, rank, selected, similarity, novelty, rating_score, final_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, item_id) DO UPDATE SET
			rank = EXCLUDED.rank,
			selected = EXCLUDED.selected,
			similarity = EXCLUDED.similarity,
			novelty = EXCLUDED.novelty,
			rating_score = EXCLUDED.rating_score,
			final_score = EXCLUDED.final_score`)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer closeWithLog(stmt, "candidate statement")

	for i := range candidates {
		c := &candidates[i]
		if _, err := stmt.ExecContext(ctx, runID, c.ItemID, c.Rank, c.Selected,
			nullFloat(c.Similarity), c.Novelty, c.RatingScore, c.FinalScore); err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidates: %w", err)
	}
	return nil
}

const runColumns = `CAST(id AS VARCHAR), user_id, media_type, COALESCE(model, ''), status, started_at, finished_at,
	candidate_count, selected_count, added, unchanged, deleted, failed, COALESCE(error, '')`

func scanRun(rows interface{ Scan(...interface{}) error }) (models.RecommendationRun, error) {
	var (
		r        models.RecommendationRun
		kind     string
		finished sql.NullTime
	)
	err := rows.Scan(&r.ID, &r.UserID, &kind, &r.Model, &r.Status, &r.StartedAt, &finished,
		&r.CandidateCount, &r.SelectedCount, &r.Added, &r.Unchanged, &r.Deleted, &r.Failed, &r.Error)
	r.Kind = models.MediaKind(kind)
	r.FinishedAt = timePtr(finished)
	return r, err
}

// GetRun returns a run header by id.
func (db *DB) GetRun(ctx context.Context, runID string) (*models.RecommendationRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM recommendation_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return &r, nil
}

// ListRuns returns a user's most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, userID string, limit int) ([]models.RecommendationRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	runs, err := queryAndScan(ctx, db.conn,
		`SELECT `+runColumns+` FROM recommendation_runs WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`,
		[]interface{}{userID, limit},
		func(rows *sql.Rows) (models.RecommendationRun, error) { return scanRun(rows) })
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListRunCandidates returns a run's candidates in rank order.
func (db *DB) ListRunCandidates(ctx context.Context, runID string, selectedOnly bool) ([]models.RecommendationCandidate, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	q := `SELECT CAST(run_id AS VARCHAR), item_id, rank, selected, similarity, novelty, rating_score, final_score
		FROM recommendation_candidates WHERE run_id = ?`
	if selectedOnly {
		q += ` AND selected`
	}
	q += ` ORDER BY rank`

	cands, err := queryAndScan(ctx, db.conn, q, []interface{}{runID},
		func(rows *sql.Rows) (models.RecommendationCandidate, error) {
			var (
				c   models.RecommendationCandidate
				sim sql.NullFloat64
			)
			err := rows.Scan(&c.RunID, &c.ItemID, &c.Rank, &c.Selected, &sim, &c.Novelty, &c.RatingScore, &c.FinalScore)
			c.Similarity = floatPtr(sim)
			return c, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return cands, nil
}
