package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/workpaper"
)

const workpaperNarrativePrompt = `You are a Senior Audit Partner drafting a formal audit workpaper.

Verdict: %s
Confidence: %.0f%%
Recommendation: %s
Quantitative findings: %d
Compliance risk score: %s
Divergence check: %s
Key findings:
%s

Write the substantive testing narrative for the workpaper. Cover the
procedure performed, the findings, and the basis for the conclusion.
Use auditor-style language, reference the Purchase Order, Goods Receipt
Note and Invoice by name, and keep it under 600 words. Do not state any
amount that is not listed in the findings above.`

// runDrafting composes the final workpaper. The narrative is the only
// generated text; every number, match row and citation is copied verbatim
// from earlier stage outputs.
func (p *Pipeline) runDrafting(ctx context.Context, state *model.PipelineState) error {
	if state.Verdict == nil {
		state.AddError(model.StageDrafting, model.ErrUnavailableInput, "no verdict to draft from", false)
	}

	narrative := p.workpaperNarrative(ctx, state)

	wp, err := workpaper.Compose(state, narrative)
	if err != nil {
		return fmt.Errorf("drafting: compose workpaper: %w", err)
	}
	state.Workpaper = wp
	return nil
}

func (p *Pipeline) workpaperNarrative(ctx context.Context, state *model.PipelineState) string {
	verdict := state.Verdict
	if verdict == nil {
		return "No verdict was produced; the reconciliation terminated before completion. Manual review of the session errors is required."
	}

	risk := "unavailable"
	if state.Compliance != nil {
		risk = fmt.Sprintf("%.1f/10", state.Compliance.RiskScore)
	}
	divergence := "not performed"
	if d := state.Divergence; d != nil {
		divergence = fmt.Sprintf("similarity %.4f against threshold %.2f", d.Similarity, d.Threshold)
		if d.AlertTriggered {
			divergence += " (ALERT)"
		}
	}
	findings := "none"
	if len(verdict.DiscrepancySummary) > 0 {
		findings = "- " + strings.Join(verdict.DiscrepancySummary, "\n- ")
	}

	flagCount := 0
	if state.QuantReport != nil {
		flagCount = len(state.QuantReport.Flags)
	}

	res, err := p.router.Complete(ctx, llm.Request{
		Prompt: fmt.Sprintf(workpaperNarrativePrompt,
			verdict.OverallStatus, verdict.Confidence*100, verdict.Recommendation,
			flagCount, risk, divergence, findings),
		Temperature: 0.2,
		MaxTokens:   2048,
		Schema:      llm.SchemaNarrative,
	})
	if err != nil {
		state.AddError(model.StageDrafting, model.ErrUpstreamUnavailable,
			fmt.Sprintf("workpaper narrative failed: %v", err), false)
		return "Automated narrative generation failed; the structured findings in this workpaper remain authoritative."
	}
	if res.Degraded {
		state.AddError(model.StageDrafting, model.ErrUpstreamUnavailable,
			"workpaper narrative served by deterministic fallback", false)
	}
	return res.Text
}
