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

// EmbeddingRecord is one generated vector and the text it came from.
type EmbeddingRecord struct {
	ItemID        string
	Vector        []float32
	CanonicalText string
}

// UpsertEmbeddings stores one batch of vectors for kind and model. The batch
// commits atomically so a later failure never loses it.
func (db *DB) UpsertEmbeddings(ctx context.Context, kind models.MediaKind, model string, records []EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	table, err := embeddingTable(kind)
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

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (item_id, model, embedding, canonical_text, created_at)
		VALUES (?, ?, CAST(? AS FLOAT[]), ?, ?)
		ON CONFLICT (item_id, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			canonical_text = EXCLUDED.canonical_text,
			created_at = EXCLUDED.created_at`, table))
	if err != nil {
		return fmt.Errorf("failed to prepare %s upsert: %w", table, err)
	}
	defer closeWithLog(stmt, "embedding statement")

	now := time.Now().UTC()
	for i := range records {
		r := &records[i]
		vec, err := encodeVector(r.Vector)
		if err != nil {
			return fmt.Errorf("item %s: %w", r.ItemID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ItemID, model, vec, r.CanonicalText, now); err != nil {
			return fmt.Errorf("failed to upsert embedding %s: %w", r.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return nil
}

// GetEmbeddings returns the vectors for ids under model, keyed by item id.
// Items without a vector are absent from the map.
func (db *DB) GetEmbeddings(ctx context.Context, kind models.MediaKind, model string, ids []string) (map[string][]float32, error) {
	result := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	table, err := embeddingTable(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	wb := query.NewWhereBuilder()
	wb.AddEquals("model", model)
	wb.AddIn("item_id", ids)
	where, args := wb.Build()

	type row struct {
		id  string
		vec []float32
	}
	rows, err := queryAndScan(ctx, db.conn,
		fmt.Sprintf(`SELECT item_id, CAST(embedding AS VARCHAR) FROM %s WHERE %s`, table, where),
		args,
		func(rows *sql.Rows) (row, error) {
			var (
				r   row
				raw string
			)
			if err := rows.Scan(&r.id, &raw); err != nil {
				return r, err
			}
			vec, err := decodeVector(raw)
			r.vec = vec
			return r, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	for _, r := range rows {
		result[r.id] = r.vec
	}
	return result, nil
}

// CountEmbeddings returns how many vectors exist for kind and model.
func (db *DB) CountEmbeddings(ctx context.Context, kind models.MediaKind, model string) (int, error) {
	table, err := embeddingTable(kind)
	if err != nil {
		return 0, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	if err := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE model = ?`, table), model).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
