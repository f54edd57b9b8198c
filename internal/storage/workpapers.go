package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NeoOne601/Ventro/internal/model"
)

// SaveWorkpaper persists the composed workpaper for a session.
func (db *DB) SaveWorkpaper(ctx context.Context, wp *model.Workpaper) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO workpapers (id, session_id, title, sections, line_item_table, citations, html, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO UPDATE
		   SET title = EXCLUDED.title, sections = EXCLUDED.sections,
		       line_item_table = EXCLUDED.line_item_table, citations = EXCLUDED.citations,
		       html = EXCLUDED.html, created_at = EXCLUDED.created_at`,
		wp.ID, wp.SessionID, wp.Title, wp.Sections, wp.Matches, wp.Citations, wp.HTML, wp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: save workpaper: %w", err)
	}
	return nil
}

// GetWorkpaper retrieves the workpaper for a session.
func (db *DB) GetWorkpaper(ctx context.Context, sessionID uuid.UUID) (*model.Workpaper, error) {
	wp := &model.Workpaper{}
	err := db.pool.QueryRow(ctx,
		`SELECT id, session_id, title, sections, line_item_table, citations, html, created_at
		 FROM workpapers WHERE session_id = $1`, sessionID,
	).Scan(&wp.ID, &wp.SessionID, &wp.Title, &wp.Sections, &wp.Matches, &wp.Citations, &wp.HTML, &wp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: workpaper for session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get workpaper: %w", err)
	}
	return wp, nil
}
