// Package workpaper composes the final audit artifact. The composer is a
// pure function of the pipeline state plus the generated narrative:
// identical inputs produce identical sections, tables and citations, so a
// workpaper can be regenerated from a persisted session at any time.
package workpaper

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NeoOne601/Ventro/internal/model"
)

// Compose builds the workpaper from the frozen stage outputs. narrative is
// the drafting agent's generated prose; everything else is copied from
// earlier stages.
func Compose(state *model.PipelineState, narrative string) (*model.Workpaper, error) {
	if state == nil {
		return nil, fmt.Errorf("workpaper: nil state")
	}

	wp := &model.Workpaper{
		ID:        uuid.New(),
		SessionID: state.SessionID,
		Title:     "Three-Way Match Audit Workpaper",
		CreatedAt: time.Now().UTC(),
		Citations: state.Citations,
	}
	if state.Verdict != nil {
		wp.Matches = state.Verdict.LineItemMatches
	}

	wp.Sections = []model.WorkpaperSection{
		{Title: "Objective", Content: objective(state)},
		{Title: "Procedure", Content: narrative},
		{Title: "Findings", Content: findings(state)},
		{Title: "Materiality", Content: materiality(state)},
		{Title: "Conclusion", Content: conclusion(state)},
	}

	html, err := renderHTML(state, wp, narrative)
	if err != nil {
		return nil, fmt.Errorf("workpaper: render html: %w", err)
	}
	wp.HTML = html

	return wp, nil
}

func objective(state *model.PipelineState) string {
	var refs []string
	for _, kind := range model.Kinds {
		if doc, ok := state.Extracted[kind]; ok && doc.DocumentNumber != "" {
			refs = append(refs, fmt.Sprintf("%s %s", kind, doc.DocumentNumber))
		}
	}
	scope := "the submitted documents"
	if len(refs) > 0 {
		scope = strings.Join(refs, ", ")
	}
	return fmt.Sprintf(
		"Verify quantity, price and description agreement across %s before payment authorisation.", scope)
}

func findings(state *model.PipelineState) string {
	var lines []string

	if state.QuantReport != nil {
		for _, f := range state.QuantReport.Flags {
			lines = append(lines, fmt.Sprintf("[%s] %s", f.Kind, f.Detail))
		}
		if state.QuantReport.MathVerified {
			lines = append(lines, "All line-level and document-level arithmetic verified exactly.")
		}
	}
	if state.Compliance != nil {
		for _, f := range state.Compliance.Flags {
			if f.Status != "pass" {
				lines = append(lines, fmt.Sprintf("[compliance:%s] %s: %s", f.Status, f.Rule, f.Detail))
			}
		}
		for _, v := range state.Compliance.PolicyViolations {
			lines = append(lines, "[policy] "+v)
		}
	}
	if d := state.Divergence; d != nil {
		if d.AlertTriggered {
			lines = append(lines, fmt.Sprintf(
				"[divergence] Reasoning similarity %.4f fell below threshold %.2f; conclusions require human review.",
				d.Similarity, d.Threshold))
		} else {
			lines = append(lines, fmt.Sprintf("[divergence] Reasoning verified, similarity %.4f.", d.Similarity))
		}
	}
	for _, e := range state.Errors {
		if e.Kind == model.ErrUnresolvedCitation || e.Kind == model.ErrUnavailableInput {
			lines = append(lines, fmt.Sprintf("[warning:%s] %s", e.Kind, e.Message))
		}
	}

	if len(lines) == 0 {
		return "No findings."
	}
	return strings.Join(lines, "\n")
}

func materiality(state *model.PipelineState) string {
	base := "Monetary agreement was tested to a tolerance of 0.01 currency units; " +
		"unit prices to a relative tolerance of 0.1%; quantities to exact agreement."
	if state.QuantReport != nil && !state.QuantReport.MathVerified {
		return base + fmt.Sprintf(" %d finding(s) exceeded these tolerances.", len(state.QuantReport.Flags))
	}
	return base + " No finding exceeded these tolerances."
}

func conclusion(state *model.PipelineState) string {
	if state.Verdict == nil {
		return "No verdict was reached; the session terminated before reconciliation completed."
	}
	v := state.Verdict
	return fmt.Sprintf("Overall status %s at %.0f%% confidence. Recommendation: %s.",
		v.OverallStatus, v.Confidence*100, v.Recommendation)
}
