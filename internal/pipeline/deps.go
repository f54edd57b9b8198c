// Package pipeline drives a three-way reconciliation session: one
// supervisor, six agents, a single shared state record. Stages run
// strictly in order; only the document extractions inside the first stage
// fan out. Everything the pipeline needs from the outside world enters
// through the interfaces in this file.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
)

// DocumentStore serves already-parsed documents. Parsing, OCR and
// bounding-box extraction happen upstream.
type DocumentStore interface {
	FetchParsed(ctx context.Context, documentID string) (*model.Document, error)
}

// InvoiceHistory provides the duplicate-invoice probe for the compliance
// stage: recent invoice numbers previously reconciled for a tenant.
type InvoiceHistory interface {
	RecentInvoiceNumbers(ctx context.Context, tenantID uuid.UUID, limit int) ([]string, error)
}

// Reasoner is the routed LLM surface the agents call. *llm.Router
// satisfies it; tests substitute scripted fakes.
type Reasoner interface {
	Complete(ctx context.Context, req llm.Request) (llm.CompletionResult, error)
	ReasoningVector(ctx context.Context, prompt string) (llm.VectorResult, error)
}

// ThresholdSource resolves the per-tenant divergence cutoff.
type ThresholdSource interface {
	Threshold(ctx context.Context, tenantID uuid.UUID) float64
}

// Publisher receives progress events. *progress.Bus satisfies it.
type Publisher interface {
	Publish(event model.Event)
}

// Config tunes supervisor behaviour.
type Config struct {
	// StageTimeout is the soft deadline per stage (default 60s).
	StageTimeout time.Duration
	// DivergenceTimeout is the divergence guard's deadline; it makes two
	// reasoning calls (default 120s).
	DivergenceTimeout time.Duration
	// SuppressDegradedAlerts drops divergence alerts whose vectors came
	// from the deterministic fallback. Policy knob; default off, the
	// degraded flag is recorded either way.
	SuppressDegradedAlerts bool
	// HistoryProbeSize caps the duplicate-invoice history fed to the
	// compliance prompt.
	HistoryProbeSize int
}

func (c Config) withDefaults() Config {
	if c.StageTimeout <= 0 {
		c.StageTimeout = 60 * time.Second
	}
	if c.DivergenceTimeout <= 0 {
		c.DivergenceTimeout = 120 * time.Second
	}
	if c.HistoryProbeSize <= 0 {
		c.HistoryProbeSize = 50
	}
	return c
}
