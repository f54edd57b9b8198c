package model

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies a pipeline stage. The supervisor runs stages strictly in
// the order of Stages.
type Stage string

const (
	StageExtraction     Stage = "extraction"
	StageQuantitative   Stage = "quantitative"
	StageCompliance     Stage = "compliance"
	StageDivergence     Stage = "divergence_guard"
	StageReconciliation Stage = "reconciliation"
	StageDrafting       Stage = "drafting"
	StageEnd            Stage = "end"
)

// Stages is the canonical stage order, excluding the terminal end marker.
var Stages = []Stage{
	StageExtraction,
	StageQuantitative,
	StageCompliance,
	StageDivergence,
	StageReconciliation,
	StageDrafting,
}

// StageOutcome records how a stage finished in the agent trace.
type StageOutcome string

const (
	OutcomeOK        StageOutcome = "OK"
	OutcomeError     StageOutcome = "ERROR"
	OutcomeTimeout   StageOutcome = "TIMEOUT"
	OutcomeCancelled StageOutcome = "CANCELLED"
	OutcomeSkipped   StageOutcome = "SKIPPED"
)

// TraceEntry is one append-only record in the agent trace. Entries are
// ordered by StartedAt and never reordered or truncated.
type TraceEntry struct {
	Stage      Stage        `json:"stage"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Outcome    StageOutcome `json:"outcome"`
	DurationMs int64        `json:"duration_ms"`
}

// ErrorKind classifies a stage error.
type ErrorKind string

const (
	ErrParse               ErrorKind = "PARSE_ERROR"
	ErrUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	ErrTimeout             ErrorKind = "TIMEOUT"
	ErrContractViolation   ErrorKind = "CONTRACT_VIOLATION"
	ErrCancelled           ErrorKind = "CANCELLED"
	ErrVectorDegenerate    ErrorKind = "VECTOR_DEGENERATE"
	ErrUnresolvedCitation  ErrorKind = "UNRESOLVED_CITATION"
	ErrUnavailableInput    ErrorKind = "UNAVAILABLE_INPUT"
)

// StageError is a collected, non-panicking pipeline error. Fatal errors
// terminate the session with status FAILED; non-fatal errors are carried
// forward and surfaced on the verdict.
type StageError struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Fatal   bool      `json:"fatal"`
}

// PipelineState is the shared record all agents operate on. It is owned by
// exactly one session and mutated only by the currently active stage; the
// supervisor's strict stage serialisation is the synchronisation.
type PipelineState struct {
	SessionID uuid.UUID
	TenantID  uuid.UUID

	// Input document handles, fetched before the first stage runs.
	Documents map[DocumentKind]*Document

	// Per-stage output slots. A slot is written once by its stage and
	// read-only afterwards.
	Extracted     map[DocumentKind]*Document
	Citations     []Citation
	QuantReport   *QuantitativeReport
	Compliance    *ComplianceReport
	Divergence    *DivergenceMetrics
	Verdict       *Verdict
	Workpaper     *Workpaper

	Trace  []TraceEntry
	Errors []StageError

	CurrentStage Stage
	NextAction   Stage
}

// NewPipelineState creates an empty state for a session.
func NewPipelineState(sessionID, tenantID uuid.UUID) *PipelineState {
	return &PipelineState{
		SessionID:    sessionID,
		TenantID:     tenantID,
		Documents:    make(map[DocumentKind]*Document),
		Extracted:    make(map[DocumentKind]*Document),
		CurrentStage: StageExtraction,
		NextAction:   StageExtraction,
	}
}

// AddError appends a stage error.
func (s *PipelineState) AddError(stage Stage, kind ErrorKind, msg string, fatal bool) {
	s.Errors = append(s.Errors, StageError{Stage: stage, Kind: kind, Message: msg, Fatal: fatal})
}

// HasFatalError reports whether any collected error is fatal.
func (s *PipelineState) HasFatalError() bool {
	for _, e := range s.Errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// ErrorsFor returns the collected errors for one stage.
func (s *PipelineState) ErrorsFor(stage Stage) []StageError {
	var out []StageError
	for _, e := range s.Errors {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}
