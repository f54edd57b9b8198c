// Package llm routes reasoning calls through an ordered provider chain.
//
// Providers are tried in configuration order; transport failures, 5xx,
// exhausted 429 retries, timeouts and malformed payloads fail a provider
// for the current call only — the router keeps no cross-call state. The
// chain terminates in the deterministic provider, which always answers, so
// the pipeline completes even during a full upstream outage.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Schema hints tell the deterministic provider which neutral shape to emit
// when every reasoning provider is down.
const (
	SchemaExtraction     = "extraction"
	SchemaAnalysis       = "analysis"
	SchemaCompliance     = "compliance"
	SchemaReconciliation = "reconciliation"
	SchemaNarrative      = "narrative"
)

// Request is one completion call.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	// Schema is the neutral-shape hint for the deterministic fallback.
	Schema string
}

// Provider is one backend in the chain.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
	// ReasoningVector embeds the model's view of a prompt into a
	// fixed-length vector. Providers without an embedding surface return
	// ErrUnsupported.
	ReasoningVector(ctx context.Context, prompt string) ([]float32, error)
}

// ErrUnsupported marks an operation a provider cannot serve; the router
// moves on without counting it as an outage.
var ErrUnsupported = errors.New("llm: operation not supported by provider")

// StatusError carries an HTTP status from a provider so the router can
// distinguish retryable throttling from hard failures.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: %s returned status %d", e.Provider, e.Code)
}

// Retryable reports whether the call may succeed on a retry against the
// same provider (throttling only; 5xx fails over immediately).
func (e *StatusError) Retryable() bool { return e.Code == 429 }

// CompletionResult is a routed completion. Degraded is set when every
// non-terminal provider failed and the deterministic fallback answered.
type CompletionResult struct {
	Text     string
	Provider string
	Degraded bool
}

// VectorResult is a routed reasoning vector.
type VectorResult struct {
	Vector   []float32
	Provider string
	Degraded bool
}
