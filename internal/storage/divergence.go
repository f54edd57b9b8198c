package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/NeoOne601/Ventro/internal/model"
)

// SaveDivergenceRecord persists the full audit trail of one divergence
// check, both reasoning vectors included, so past alerts can be replayed
// against new thresholds.
func (db *DB) SaveDivergenceRecord(ctx context.Context, rec model.DivergenceRecord) error {
	var primaryVec, shadowVec any
	if len(rec.PrimaryVector) > 0 {
		primaryVec = pgvector.NewVector(rec.PrimaryVector)
	}
	if len(rec.ShadowVector) > 0 {
		shadowVec = pgvector.NewVector(rec.ShadowVector)
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO divergence_records
		   (session_id, tenant_id, primary_summary, shadow_summary, similarity,
		    threshold_used, alert_triggered, degraded, perturbation_summary,
		    primary_vector, shadow_vector, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.SessionID, rec.TenantID, rec.PrimarySummary, rec.ShadowSummary, rec.Similarity,
		rec.ThresholdUsed, rec.AlertTriggered, rec.Degraded, rec.Perturbations,
		primaryVec, shadowVec, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: save divergence record: %w", err)
	}
	return nil
}

// InsertFeedback records one analyst judgment and returns it with the
// similarity joined from the session's divergence record.
func (db *DB) InsertFeedback(ctx context.Context, sessionID, tenantID uuid.UUID,
	wasAlert bool, outcome model.FeedbackOutcome) (model.Feedback, error) {

	fb := model.Feedback{
		SessionID: sessionID,
		TenantID:  tenantID,
		WasAlert:  wasAlert,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO divergence_feedback (session_id, tenant_id, was_alert, outcome, similarity, created_at)
		 SELECT $1, $2, $3, $4, COALESCE(
		   (SELECT similarity FROM divergence_records WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1), 0),
		   $5
		 RETURNING similarity`,
		sessionID, tenantID, wasAlert, string(outcome), fb.CreatedAt,
	).Scan(&fb.Similarity)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("storage: insert feedback: %w", err)
	}
	return fb, nil
}

// Recent returns a tenant's feedback rows, newest first, capped at
// windowSize. Satisfies the threshold store's FeedbackStore.
func (db *DB) Recent(ctx context.Context, tenantID uuid.UUID, windowSize int) ([]model.Feedback, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT session_id, tenant_id, was_alert, outcome, similarity, created_at
		 FROM divergence_feedback
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, tenantID, windowSize,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: recent feedback: %w", err)
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		var outcome string
		if err := rows.Scan(&fb.SessionID, &fb.TenantID, &fb.WasAlert, &outcome, &fb.Similarity, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan feedback: %w", err)
		}
		fb.Outcome = model.FeedbackOutcome(outcome)
		out = append(out, fb)
	}
	return out, rows.Err()
}

// FeedbackAnalytics returns per-outcome counts over the last 90 days for a
// tenant's analytics panel.
func (db *DB) FeedbackAnalytics(ctx context.Context, tenantID uuid.UUID) (map[model.FeedbackOutcome]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT outcome, COUNT(*) FROM divergence_feedback
		 WHERE tenant_id = $1 AND created_at > now() - INTERVAL '90 days'
		 GROUP BY outcome`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: feedback analytics: %w", err)
	}
	defer rows.Close()

	out := make(map[model.FeedbackOutcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("storage: scan analytics: %w", err)
		}
		out[model.FeedbackOutcome(outcome)] = count
	}
	return out, rows.Err()
}
