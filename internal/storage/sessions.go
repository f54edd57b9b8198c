package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NeoOne601/Ventro/internal/model"
)

// CreateSession inserts a PENDING session for the document triple.
func (db *DB) CreateSession(ctx context.Context, id, tenantID uuid.UUID, poID, grnID, invoiceID string) (model.Session, error) {
	session := model.Session{
		ID:        id,
		TenantID:  tenantID,
		POID:      poID,
		GRNID:     grnID,
		InvoiceID: invoiceID,
		Status:    model.SessionPending,
		StartedAt: time.Now().UTC(),
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO sessions (id, tenant_id, po_id, grn_id, invoice_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.TenantID, session.POID, session.GRNID, session.InvoiceID,
		string(session.Status), session.StartedAt,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: create session: %w", err)
	}
	return session, nil
}

// MarkSessionProcessing flips a PENDING session to PROCESSING. The pipeline
// state record is created at this transition.
func (db *DB) MarkSessionProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE sessions SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(model.SessionProcessing), string(model.SessionPending),
	)
	if err != nil {
		return fmt.Errorf("storage: mark session processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: session %s not pending: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteSession freezes a finished session: terminal status, verdict,
// trace and errors, plus the invoice number for the duplicate-check probe.
func (db *DB) CompleteSession(ctx context.Context, id uuid.UUID, status model.SessionStatus,
	verdict *model.Verdict, trace []model.TraceEntry, stageErrors []model.StageError, invoiceNumber string) error {

	if trace == nil {
		trace = []model.TraceEntry{}
	}
	if stageErrors == nil {
		stageErrors = []model.StageError{}
	}

	completedAt := time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $2, verdict = $3, agent_trace = $4, errors = $5,
		     invoice_number = NULLIF($6, ''), completed_at = $7
		 WHERE id = $1`,
		id, string(status), verdict, trace, stageErrors, invoiceNumber, completedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: complete session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id, scoped to its tenant.
func (db *DB) GetSession(ctx context.Context, tenantID, id uuid.UUID) (model.Session, error) {
	var s model.Session
	var status string
	err := db.pool.QueryRow(ctx,
		`SELECT id, tenant_id, po_id, grn_id, invoice_id, status, verdict, agent_trace, errors, started_at, completed_at
		 FROM sessions WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&s.ID, &s.TenantID, &s.POID, &s.GRNID, &s.InvoiceID, &status,
		&s.Verdict, &s.Trace, &s.Errors, &s.StartedAt, &s.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, fmt.Errorf("storage: session %s: %w", id, ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("storage: get session: %w", err)
	}
	s.Status = model.SessionStatus(status)
	return s, nil
}

// RecentInvoiceNumbers returns invoice numbers of completed sessions for a
// tenant, newest first. The compliance stage feeds these to the
// duplicate-invoice rule.
func (db *DB) RecentInvoiceNumbers(ctx context.Context, tenantID uuid.UUID, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT invoice_number FROM sessions
		 WHERE tenant_id = $1 AND invoice_number IS NOT NULL
		 ORDER BY completed_at DESC NULLS LAST
		 LIMIT $2`, tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: recent invoice numbers: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("storage: scan invoice number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}
