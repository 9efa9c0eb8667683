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
	"time"

	"github.com/tomtom215/marquee/internal/models"
)

const virtualLibraryColumns = `user_id, media_type, purpose, COALESCE(provider_library_id, ''), name, path, created_at, updated_at`

func scanVirtualLibrary(rows interface{ Scan(...interface{}) error }) (models.VirtualLibrary, error) {
	var (
		v    models.VirtualLibrary
		kind string
	)
	err := rows.Scan(&v.UserID, &kind, &v.Purpose, &v.ProviderLibraryID, &v.Name, &v.Path, &v.CreatedAt, &v.UpdatedAt)
	v.Kind = models.MediaKind(kind)
	return v, err
}

// GetVirtualLibrary returns the generated library for (user, kind, purpose),
// or nil if none was recorded.
func (db *DB) GetVirtualLibrary(ctx context.Context, userID string, kind models.MediaKind, purpose string) (*models.VirtualLibrary, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+virtualLibraryColumns+` FROM virtual_libraries WHERE user_id = ? AND media_type = ? AND purpose = ?`,
		userID, string(kind), purpose)
	v, err := scanVirtualLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get virtual library: %w", err)
	}
	return &v, nil
}

// UpsertVirtualLibrary records a generated library. CreatedAt is kept from
// the first insert.
func (db *DB) UpsertVirtualLibrary(ctx context.Context, v *models.VirtualLibrary) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO virtual_libraries (
			user_id, media_type, purpose, provider_library_id, name, path, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, media_type, purpose) DO UPDATE SET
			provider_library_id = EXCLUDED.provider_library_id,
			name = EXCLUDED.name,
			path = EXCLUDED.path,
			updated_at = EXCLUDED.updated_at`,
		v.UserID, string(v.Kind), v.Purpose, nullString(v.ProviderLibraryID), v.Name, v.Path, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert virtual library: %w", err)
	}
	return nil
}

// ListVirtualLibraries returns every generated library across all users.
func (db *DB) ListVirtualLibraries(ctx context.Context) ([]models.VirtualLibrary, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	libs, err := queryAndScan(ctx, db.conn,
		`SELECT `+virtualLibraryColumns+` FROM virtual_libraries ORDER BY user_id, media_type, purpose`,
		nil,
		func(rows *sql.Rows) (models.VirtualLibrary, error) { return scanVirtualLibrary(rows) })
	if err != nil {
		return nil, fmt.Errorf("failed to list virtual libraries: %w", err)
	}
	return libs, nil
}
