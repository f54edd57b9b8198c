package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NeoOne601/Ventro/internal/model"
)

// SaveParsedDocument stores a parsed document. The ingestion service calls
// this after OCR and bounding-box extraction; the pipeline only reads.
func (db *DB) SaveParsedDocument(ctx context.Context, doc *model.Document) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO parsed_documents (id, kind, payload, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, payload = EXCLUDED.payload`,
		doc.ID, string(doc.Kind), doc, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: save parsed document: %w", err)
	}
	return nil
}

// FetchParsed loads a parsed document by id. Satisfies the pipeline's
// DocumentStore.
func (db *DB) FetchParsed(ctx context.Context, documentID string) (*model.Document, error) {
	doc := &model.Document{}
	err := db.pool.QueryRow(ctx,
		`SELECT payload FROM parsed_documents WHERE id = $1`, documentID,
	).Scan(doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: document %s: %w", documentID, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: fetch parsed document: %w", err)
	}
	return doc, nil
}
