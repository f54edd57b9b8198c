package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/NeoOne601/Ventro/internal/fuzzy"
	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
)

const narrativePromptTemplate = `You are a Senior Audit Partner summarising a three-way match.

Verdict: %s
Confidence: %.0f%%
Findings:
%s

Write a short professional audit narrative (under 200 words) describing
the reconciliation outcome. Do not invent numbers; refer only to the
findings above.`

// runReconciliation builds the cross-document match table, derives the
// verdict deterministically and asks the model for narrative prose only.
// The numbers in the verdict never come from the model.
func (p *Pipeline) runReconciliation(ctx context.Context, state *model.PipelineState) error {
	if len(state.Extracted) == 0 {
		state.AddError(model.StageReconciliation, model.ErrUnavailableInput, "no extracted documents", false)
		return fmt.Errorf("reconciliation: no extracted documents")
	}

	verdict := &model.Verdict{
		LineItemMatches: p.buildMatchTable(state),
	}

	p.deriveVerdict(state, verdict)
	verdict.Confidence = p.confidence(state, verdict)
	verdict.DiscrepancySummary = discrepancySummary(state, verdict)
	verdict.Narrative = p.narrative(ctx, state, verdict)

	state.Verdict = verdict
	return nil
}

// buildMatchTable resolves every PO line against its best GRN and Invoice
// counterparts and computes the per-triple deltas via exact arithmetic.
func (p *Pipeline) buildMatchTable(state *model.PipelineState) []model.LineItemMatch {
	po := state.Extracted[model.KindPurchaseOrder]
	grn := state.Extracted[model.KindGoodsReceipt]
	inv := state.Extracted[model.KindInvoice]

	var poItems, grnItems, invItems []model.LineItem
	if po != nil {
		poItems = po.LineItems
	}
	if grn != nil {
		grnItems = grn.LineItems
	}
	if inv != nil {
		invItems = inv.LineItems
	}

	grnMatches := matchItems(poItems, grnItems)
	invMatches := matchItems(poItems, invItems)

	matches := make([]model.LineItemMatch, 0, len(poItems))
	for i := range poItems {
		poIdx := i
		m := model.LineItemMatch{
			POIndex:       &poIdx,
			QuantityDelta: money.Zero(),
			PriceDelta:    money.Zero(),
		}

		descScore := 0
		qtyOut := false
		priceOut := false
		matchedSides := 0

		if g := grnMatches[i]; g.BIndex >= 0 {
			idx := g.BIndex
			m.GRNIndex = &idx
			matchedSides++
			descScore = g.Score
			grnQty := grnItems[idx].Quantity
			delta := grnQty.Sub(poItems[i].Quantity)
			if !delta.IsZero() {
				qtyOut = true
				m.QuantityDelta = delta
			}
		}
		if v := invMatches[i]; v.BIndex >= 0 {
			idx := v.BIndex
			m.InvoiceIndex = &idx
			matchedSides++
			if descScore == 0 || v.Score < descScore {
				descScore = v.Score
			}
			invQty := invItems[idx].Quantity
			if delta := invQty.Sub(poItems[i].Quantity); !delta.IsZero() {
				qtyOut = true
				if m.QuantityDelta.IsZero() {
					m.QuantityDelta = delta
				}
			}
			invPrice := invItems[idx].UnitPrice
			m.PriceDelta = invPrice.Sub(poItems[i].UnitPrice)
			if !poItems[i].UnitPrice.WithinRelative(invPrice, money.PriceRelTolerance) {
				priceOut = true
			}
		}

		m.DescriptionScore = descScore
		m.Status = tripleStatus(descScore, matchedSides, qtyOut, priceOut)
		matches = append(matches, m)
	}

	// Counterparty items no PO line claimed are mismatches in their own
	// right: goods received or billed that were never ordered.
	usedGRN := make(map[int]bool, len(grnMatches))
	for _, g := range grnMatches {
		if g.BIndex >= 0 {
			usedGRN[g.BIndex] = true
		}
	}
	usedInv := make(map[int]bool, len(invMatches))
	for _, v := range invMatches {
		if v.BIndex >= 0 {
			usedInv[v.BIndex] = true
		}
	}
	for j := range grnItems {
		if !usedGRN[j] {
			idx := j
			matches = append(matches, model.LineItemMatch{
				GRNIndex:      &idx,
				QuantityDelta: money.Zero(),
				PriceDelta:    money.Zero(),
				Status:        model.MatchNone,
			})
		}
	}
	for k := range invItems {
		if !usedInv[k] {
			idx := k
			matches = append(matches, model.LineItemMatch{
				InvoiceIndex:  &idx,
				QuantityDelta: money.Zero(),
				PriceDelta:    money.Zero(),
				Status:        model.MatchNone,
			})
		}
	}
	return matches
}

// tripleStatus classifies one match triple: full needs both counterparts,
// a strong description and no deltas out of tolerance; partial allows one
// delta out; anything weaker is a mismatch.
func tripleStatus(descScore, matchedSides int, qtyOut, priceOut bool) model.MatchStatus {
	if matchedSides < 2 {
		return model.MatchNone
	}
	deltasOut := 0
	if qtyOut {
		deltasOut++
	}
	if priceOut {
		deltasOut++
	}
	switch {
	case descScore >= fuzzy.FullMatchThreshold && deltasOut == 0:
		return model.MatchFull
	case descScore >= fuzzy.MatchThreshold && deltasOut <= 1:
		return model.MatchPartial
	default:
		return model.MatchNone
	}
}

// deriveVerdict applies the deterministic status ladder: divergence alert
// first, then severe findings, then soft arithmetic findings, then clean.
func (p *Pipeline) deriveVerdict(state *model.PipelineState, verdict *model.Verdict) {
	if state.Divergence != nil && state.Divergence.AlertTriggered {
		verdict.OverallStatus = model.StatusDivergenceAlert
		verdict.Recommendation = model.RecommendEscalate
		return
	}

	anyMismatch := false
	allFull := len(verdict.LineItemMatches) > 0
	for _, m := range verdict.LineItemMatches {
		if m.Status == model.MatchNone {
			anyMismatch = true
		}
		if m.Status != model.MatchFull {
			allFull = false
		}
	}

	quant := state.QuantReport
	switch {
	case anyMismatch || (quant != nil && quant.HasSevereFlag()):
		verdict.OverallStatus = model.StatusMismatch
		verdict.Recommendation = model.RecommendHold
		if state.Compliance != nil && state.Compliance.RiskScore >= 7 {
			verdict.Recommendation = model.RecommendReject
		}
	case quant != nil && len(quant.Flags) > 0:
		verdict.OverallStatus = model.StatusPartialMatch
		verdict.Recommendation = model.RecommendHold
	case allFull && quant != nil && quant.MathVerified:
		verdict.OverallStatus = model.StatusFullMatch
		verdict.Recommendation = model.RecommendApprove
	default:
		// Missing inputs somewhere upstream: surface as an exception
		// rather than pretending a clean match.
		verdict.OverallStatus = model.StatusException
		verdict.Recommendation = model.RecommendEscalate
	}
}

// confidence is the weighted mean of description agreement (0.5),
// divergence similarity (0.3) and inverse compliance risk (0.2), clamped
// to [0,1].
func (p *Pipeline) confidence(state *model.PipelineState, verdict *model.Verdict) float64 {
	desc := 0.0
	if n := len(verdict.LineItemMatches); n > 0 {
		sum := 0
		for _, m := range verdict.LineItemMatches {
			sum += m.DescriptionScore
		}
		desc = float64(sum) / float64(n) / 100
	}

	similarity := 0.0
	if state.Divergence != nil {
		similarity = state.Divergence.Similarity
	}

	inverseRisk := 0.5
	if state.Compliance != nil {
		inverseRisk = 1 - state.Compliance.RiskScore/10
	}

	c := 0.5*desc + 0.3*similarity + 0.2*inverseRisk
	return math.Min(1, math.Max(0, c))
}

// discrepancySummary assembles at most five human-readable findings.
func discrepancySummary(state *model.PipelineState, verdict *model.Verdict) []string {
	const maxFindings = 5
	var out []string

	if state.Divergence != nil && state.Divergence.AlertTriggered {
		out = append(out, fmt.Sprintf("Reasoning divergence alert: similarity %.4f below threshold %.2f",
			state.Divergence.Similarity, state.Divergence.Threshold))
	}
	if state.QuantReport != nil {
		for _, f := range state.QuantReport.Flags {
			if len(out) >= maxFindings {
				return out
			}
			out = append(out, f.Detail)
		}
	}
	for i, m := range verdict.LineItemMatches {
		if len(out) >= maxFindings {
			return out
		}
		if m.Status == model.MatchNone {
			out = append(out, fmt.Sprintf("PO line %d has no consistent counterpart across GRN and Invoice", i))
		}
	}
	for _, e := range state.Errors {
		if len(out) >= maxFindings {
			return out
		}
		if e.Kind == model.ErrUnresolvedCitation {
			out = append(out, "Some extracted values lack spatial evidence: "+e.Message)
			break
		}
	}
	return out
}

// narrative asks the model for summary prose. Failures degrade to a fixed
// sentence; the verdict itself is already final.
func (p *Pipeline) narrative(ctx context.Context, state *model.PipelineState, verdict *model.Verdict) string {
	findings := "none"
	if len(verdict.DiscrepancySummary) > 0 {
		findings = ""
		for _, f := range verdict.DiscrepancySummary {
			findings += "- " + f + "\n"
		}
	}

	res, err := p.router.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(narrativePromptTemplate, verdict.OverallStatus, verdict.Confidence*100, findings),
		Temperature: 0.2,
		MaxTokens:   1024,
		Schema:      llm.SchemaNarrative,
	})
	if err != nil {
		state.AddError(model.StageReconciliation, model.ErrUpstreamUnavailable,
			fmt.Sprintf("narrative generation failed: %v", err), false)
		return "Automated narrative unavailable; see the structured findings."
	}
	if res.Degraded {
		state.AddError(model.StageReconciliation, model.ErrUpstreamUnavailable,
			"narrative served by deterministic fallback", false)
	}
	return res.Text
}
