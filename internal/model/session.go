package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is the persisted record of one reconciliation run.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    uuid.UUID     `json:"tenant_id"`
	POID        string        `json:"po_id"`
	GRNID       string        `json:"grn_id"`
	InvoiceID   string        `json:"invoice_id"`
	Status      SessionStatus `json:"status"`
	Verdict     *Verdict      `json:"verdict,omitempty"`
	Trace       []TraceEntry  `json:"agent_trace"`
	Errors      []StageError  `json:"errors"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// DivergenceRecord is the persisted audit trail of one divergence check.
type DivergenceRecord struct {
	SessionID      uuid.UUID `json:"session_id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	PrimarySummary string    `json:"primary_summary"`
	ShadowSummary  string    `json:"shadow_summary"`
	Similarity     float64   `json:"similarity"`
	ThresholdUsed  float64   `json:"threshold_used"`
	AlertTriggered bool      `json:"alert_triggered"`
	Degraded       bool      `json:"degraded"`
	Perturbations  []string  `json:"perturbation_summary"`
	PrimaryVector  []float32 `json:"-"`
	ShadowVector   []float32 `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackOutcome classifies analyst feedback on a divergence alert.
type FeedbackOutcome string

const (
	FeedbackCorrect       FeedbackOutcome = "correct"
	FeedbackFalsePositive FeedbackOutcome = "false_positive"
	FeedbackFalseNegative FeedbackOutcome = "false_negative"
)

// Feedback is one analyst judgment on a past divergence decision.
// Similarity is the recorded score of the judged session, used to simulate
// candidate thresholds when adapting τ.
type Feedback struct {
	SessionID  uuid.UUID       `json:"session_id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	WasAlert   bool            `json:"was_alert"`
	Outcome    FeedbackOutcome `json:"outcome"`
	Similarity float64         `json:"similarity"`
	CreatedAt  time.Time       `json:"created_at"`
}
