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

// GetTasteProfile returns the stored profile, or nil if none exists.
func (db *DB) GetTasteProfile(ctx context.Context, userID string, kind models.MediaKind) (*models.TasteProfile, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var (
		p        models.TasteProfile
		raw      sql.NullString
		model    sql.NullString
		autoAt   sql.NullTime
		modified sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT CAST(embedding AS VARCHAR), model, auto_updated_at, user_modified_at,
			is_locked, refresh_interval_days
		FROM user_taste_profiles
		WHERE user_id = ? AND media_type = ?`, userID, string(kind),
	).Scan(&raw, &model, &autoAt, &modified, &p.IsLocked, &p.RefreshIntervalDays)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query taste profile: %w", err)
	}

	vec, err := decodeVector(raw.String)
	if err != nil {
		return nil, err
	}
	p.UserID = userID
	p.Kind = kind
	p.Embedding = vec
	p.Model = model.String
	p.AutoUpdatedAt = timePtr(autoAt)
	p.UserModifiedAt = timePtr(modified)
	return &p, nil
}

// UpsertTasteProfile writes a profile. A nil embedding is stored as NULL so
// the profile row can carry lock and interval settings before any build.
func (db *DB) UpsertTasteProfile(ctx context.Context, p *models.TasteProfile) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var vec sql.NullString
	if len(p.Embedding) > 0 {
		s, err := encodeVector(p.Embedding)
		if err != nil {
			return err
		}
		vec = sql.NullString{String: s, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_taste_profiles (
			user_id, media_type, embedding, model, auto_updated_at, user_modified_at,
			is_locked, refresh_interval_days
		) VALUES (?, ?, CAST(? AS FLOAT[]), ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, media_type) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			auto_updated_at = EXCLUDED.auto_updated_at,
			user_modified_at = EXCLUDED.user_modified_at,
			is_locked = EXCLUDED.is_locked,
			refresh_interval_days = EXCLUDED.refresh_interval_days`,
		p.UserID, string(p.Kind), vec, nullString(p.Model), nullTime(p.AutoUpdatedAt),
		nullTime(p.UserModifiedAt), p.IsLocked, p.RefreshIntervalDays,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert taste profile: %w", err)
	}
	return nil
}
