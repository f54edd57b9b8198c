package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/search"
)

// Result is the outcome of one supervised run.
type Result struct {
	State  *model.PipelineState
	Status model.SessionStatus
}

// Pipeline is the supervisor plus its six agents. One Pipeline serves many
// concurrent sessions; each Run owns its own PipelineState.
type Pipeline struct {
	docs       DocumentStore
	chunks     search.ChunkStore
	router     Reasoner
	bus        Publisher
	thresholds ThresholdSource
	history    InvoiceHistory
	logger     *slog.Logger
	tracer     oteltrace.Tracer
	cfg        Config
}

// New wires a pipeline. history may be nil (the duplicate-invoice probe is
// then skipped); everything else is required.
func New(docs DocumentStore, chunks search.ChunkStore, router Reasoner, bus Publisher,
	thresholds ThresholdSource, history InvoiceHistory, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		docs:       docs,
		chunks:     chunks,
		router:     router,
		bus:        bus,
		thresholds: thresholds,
		history:    history,
		logger:     logger,
		tracer:     otel.Tracer("ventro/pipeline"),
		cfg:        cfg.withDefaults(),
	}
}

// stageFunc is one agent entry point. Errors returned here are stage
// errors; fatality is decided by the supervisor.
type stageFunc func(ctx context.Context, state *model.PipelineState) error

// Run drives a session from document fetch to terminal status. The
// returned error is non-nil only for fatal terminations (FAILED) and
// cancellation; discrepancies and divergence alerts are regular results.
func (p *Pipeline) Run(ctx context.Context, sessionID, tenantID uuid.UUID, poID, grnID, invoiceID string) (Result, error) {
	state := model.NewPipelineState(sessionID, tenantID)
	log := p.logger.With("session_id", sessionID)

	ctx, span := p.tracer.Start(ctx, "pipeline.run", oteltrace.WithAttributes(
		attribute.String("session_id", sessionID.String()),
		attribute.String("tenant_id", tenantID.String()),
	))
	defer span.End()

	p.fetchDocuments(ctx, state, poID, grnID, invoiceID)

	p.bus.Publish(model.Event{
		Type:      model.EventWorkflowStarted,
		SessionID: sessionID,
		Payload:   map[string]any{"total_stages": len(model.Stages)},
	})

	agents := map[model.Stage]stageFunc{
		model.StageExtraction:     p.runExtraction,
		model.StageQuantitative:   p.runQuantitative,
		model.StageCompliance:     p.runCompliance,
		model.StageDivergence:     p.runDivergence,
		model.StageReconciliation: p.runReconciliation,
		model.StageDrafting:       p.runDrafting,
	}

	for state.NextAction != model.StageEnd {
		stage := state.NextAction
		state.CurrentStage = stage

		outcome := p.runStage(ctx, state, stage, agents[stage])

		if outcome == model.OutcomeCancelled {
			status := p.finishCancelled(state)
			return Result{State: state, Status: status}, context.Canceled
		}
		if state.HasFatalError() {
			status := p.finishFailed(state, stage)
			return Result{State: state, Status: status}, fmt.Errorf("pipeline: stage %s failed fatally", stage)
		}

		state.NextAction = p.route(state, stage)
		log.Info("pipeline: stage complete", "stage", stage, "outcome", outcome, "next", state.NextAction)
	}

	return p.finish(state)
}

// runStage executes one agent under its deadline, appends the trace entry
// and classifies the outcome. Timeouts are non-fatal; cancellation is
// terminal.
func (p *Pipeline) runStage(ctx context.Context, state *model.PipelineState, stage model.Stage, fn stageFunc) model.StageOutcome {
	timeout := p.cfg.StageTimeout
	if stage == model.StageDivergence {
		timeout = p.cfg.DivergenceTimeout
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sctx, span := p.tracer.Start(sctx, "pipeline.stage."+string(stage))
	defer span.End()

	p.bus.Publish(model.Event{
		Type:      model.EventAgentStarted,
		SessionID: state.SessionID,
		Stage:     stage,
		Payload:   map[string]any{"message": startMessage(stage)},
	})

	started := time.Now().UTC()
	err := fn(sctx, state)
	finished := time.Now().UTC()

	outcome := model.OutcomeOK
	switch {
	case ctx.Err() != nil:
		outcome = model.OutcomeCancelled
		state.AddError(stage, model.ErrCancelled, "session cancelled", false)
	case errors.Is(err, context.DeadlineExceeded) || (err != nil && sctx.Err() != nil):
		outcome = model.OutcomeTimeout
		state.AddError(stage, model.ErrTimeout, fmt.Sprintf("stage exceeded %s deadline", timeout), false)
	case err != nil:
		outcome = model.OutcomeError
		var cv *model.ContractViolation
		if errors.As(err, &cv) {
			state.AddError(stage, model.ErrContractViolation, cv.Msg, true)
		} else {
			p.recordStageError(state, stage, err)
		}
	}

	state.Trace = append(state.Trace, model.TraceEntry{
		Stage:      stage,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome,
		DurationMs: finished.Sub(started).Milliseconds(),
	})

	p.bus.Publish(model.Event{
		Type:      model.EventAgentCompleted,
		SessionID: state.SessionID,
		Stage:     stage,
		Payload:   map[string]any{"duration_ms": finished.Sub(started).Milliseconds(), "outcome": string(outcome)},
	})

	return outcome
}

// route decides the next stage after one finished, applying the
// supervisor's error policy.
func (p *Pipeline) route(state *model.PipelineState, finished model.Stage) model.Stage {
	switch finished {
	case model.StageExtraction:
		extracted := len(state.Extracted)
		if extracted < len(model.Kinds) && extracted > 0 {
			state.AddError(model.StageExtraction, model.ErrUnavailableInput,
				fmt.Sprintf("only %d of %d documents extracted", extracted, len(model.Kinds)), false)
		}
		return model.StageQuantitative

	case model.StageQuantitative:
		if state.QuantReport == nil {
			// Quantitative failed: skip compliance, still run the guard
			// and the drafter with error notes.
			return model.StageDivergence
		}
		return model.StageCompliance

	case model.StageCompliance:
		return model.StageDivergence

	case model.StageDivergence:
		return model.StageReconciliation

	case model.StageReconciliation:
		return model.StageDrafting

	default:
		return model.StageEnd
	}
}

// fetchDocuments loads the three parsed documents. Individual failures are
// recorded; the extraction stage decides fatality.
func (p *Pipeline) fetchDocuments(ctx context.Context, state *model.PipelineState, poID, grnID, invoiceID string) {
	ids := map[model.DocumentKind]string{
		model.KindPurchaseOrder: poID,
		model.KindGoodsReceipt:  grnID,
		model.KindInvoice:       invoiceID,
	}
	for _, kind := range model.Kinds {
		doc, err := p.docs.FetchParsed(ctx, ids[kind])
		if err != nil {
			state.AddError(model.StageExtraction, model.ErrUnavailableInput,
				fmt.Sprintf("fetch %s document %s: %v", kind, ids[kind], err), false)
			continue
		}
		doc.Kind = kind
		state.Documents[kind] = doc
	}
}

// finish freezes the state, maps the verdict to a terminal status and
// publishes the terminal event.
func (p *Pipeline) finish(state *model.PipelineState) (Result, error) {
	state.CurrentStage = model.StageEnd

	status := model.SessionException
	summary := "no verdict produced"
	if state.Verdict != nil {
		if err := state.Verdict.Validate(); err != nil {
			state.AddError(model.StageEnd, model.ErrContractViolation, err.Error(), true)
			return Result{State: state, Status: model.SessionFailed},
				fmt.Errorf("pipeline: %w", err)
		}
		status = model.SessionStatusFor(state.Verdict.OverallStatus)
		summary = string(state.Verdict.OverallStatus)
	}

	p.bus.Publish(model.Event{
		Type:      model.EventWorkflowComplete,
		SessionID: state.SessionID,
		Payload:   map[string]any{"status": string(status), "verdict_summary": summary},
	})
	return Result{State: state, Status: status}, nil
}

func (p *Pipeline) finishFailed(state *model.PipelineState, stage model.Stage) model.SessionStatus {
	state.CurrentStage = model.StageEnd
	state.NextAction = model.StageEnd

	msg := "fatal stage error"
	for _, e := range state.Errors {
		if e.Fatal {
			msg = e.Message
			break
		}
	}
	p.bus.Publish(model.Event{
		Type:      model.EventWorkflowError,
		SessionID: state.SessionID,
		Stage:     stage,
		Payload:   map[string]any{"stage": string(stage), "message": msg},
	})
	p.bus.Publish(model.Event{
		Type:      model.EventWorkflowComplete,
		SessionID: state.SessionID,
		Payload:   map[string]any{"status": string(model.SessionFailed), "verdict_summary": "failed"},
	})
	return model.SessionFailed
}

func (p *Pipeline) finishCancelled(state *model.PipelineState) model.SessionStatus {
	state.CurrentStage = model.StageEnd
	state.NextAction = model.StageEnd
	p.bus.Publish(model.Event{
		Type:      model.EventWorkflowComplete,
		SessionID: state.SessionID,
		Payload:   map[string]any{"status": string(model.SessionCancelled), "verdict_summary": "cancelled"},
	})
	return model.SessionCancelled
}

// recordStageError classifies an agent error: fatal wrapper aborts the
// session, anything else is collected as an upstream failure. Parse errors
// are recorded at their source with the document that failed.
func (p *Pipeline) recordStageError(state *model.PipelineState, stage model.Stage, err error) {
	var fe *fatalError
	state.AddError(stage, model.ErrUpstreamUnavailable, err.Error(), errors.As(err, &fe))
}

// fatalError marks an agent error the supervisor must not recover from.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func startMessage(stage model.Stage) string {
	switch stage {
	case model.StageExtraction:
		return "Extracting line items and citations from all documents"
	case model.StageQuantitative:
		return "Verifying arithmetic within and across documents"
	case model.StageCompliance:
		return "Evaluating policy and compliance rules"
	case model.StageDivergence:
		return "Running dual-stream divergence check"
	case model.StageReconciliation:
		return "Matching line items across the three documents"
	case model.StageDrafting:
		return "Composing the audit workpaper"
	default:
		return string(stage)
	}
}
