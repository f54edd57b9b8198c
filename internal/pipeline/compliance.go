package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
)

const compliancePromptTemplate = `You are a senior financial compliance auditor evaluating a transaction.

Transaction Data:
%s

Previously processed invoice numbers for this tenant:
%s

Arithmetic findings already verified deterministically: %s

Evaluate the following criteria:
1. DUPLICATE INVOICE: is the invoice number absent from the processed history?
2. VENDOR VERIFICATION: does the vendor on the Invoice match the PO?
3. AUTHORIZATION: is the PO amount within standard procurement limits?
4. PAYMENT TERMS: do terms comply with corporate policy (max Net-90)?
5. TAX COMPLIANCE: is the tax applied plausibly for the jurisdiction?
6. LINE COUNT PARITY: do the three documents carry comparable line counts?
7. BENFORD SIGNAL: do leading digits of amounts look natural?
8. ROUND NUMBER / SPLIT TRANSACTION: any suspiciously round or split amounts?

Respond with valid JSON:
{
  "risk_score": 0.0,
  "flags": [{"rule": "", "status": "pass|fail|warning", "detail": ""}],
  "policy_violations": []
}`

// compliancePayload is the model's rule evaluation.
type compliancePayload struct {
	RiskScore        float64                `json:"risk_score"`
	Flags            []model.ComplianceFlag `json:"flags"`
	PolicyViolations []string               `json:"policy_violations"`
}

// runCompliance asks the model to evaluate the rule set over the extracted
// documents plus the tenant's invoice history. The model's numbers are
// advisory: every arithmetic claim is cross-checked against the
// quantitative report before the flag is accepted as a failure.
func (p *Pipeline) runCompliance(ctx context.Context, state *model.PipelineState) error {
	if len(state.Extracted) == 0 {
		state.AddError(model.StageCompliance, model.ErrUnavailableInput, "no extracted documents", false)
		return fmt.Errorf("compliance: no extracted documents")
	}

	history := p.invoiceHistory(ctx, state)

	res, err := p.router.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(compliancePromptTemplate, complianceContext(state), history, quantSummary(state)),
		Temperature: 0.1,
		MaxTokens:   2048,
		JSONMode:    true,
		Schema:      llm.SchemaCompliance,
	})
	if err != nil {
		state.AddError(model.StageCompliance, model.ErrUpstreamUnavailable, err.Error(), false)
		return fmt.Errorf("compliance: %w", err)
	}
	if res.Degraded {
		state.AddError(model.StageCompliance, model.ErrUpstreamUnavailable,
			"compliance evaluation served by deterministic fallback", false)
	}

	var payload compliancePayload
	if err := json.Unmarshal([]byte(res.Text), &payload); err != nil {
		state.AddError(model.StageCompliance, model.ErrUpstreamUnavailable,
			fmt.Sprintf("compliance payload malformed: %v", err), false)
		return fmt.Errorf("compliance: decode payload: %w", err)
	}

	report := &model.ComplianceReport{
		RiskScore:        clampRisk(payload.RiskScore),
		Flags:            crossCheckFlags(payload.Flags, state.QuantReport),
		PolicyViolations: payload.PolicyViolations,
	}
	state.Compliance = report
	return nil
}

// crossCheckFlags downgrades model-claimed arithmetic failures that the
// deterministic pass did not confirm. The model never outranks the
// decimal kernel on a numeric question.
func crossCheckFlags(flags []model.ComplianceFlag, quant *model.QuantitativeReport) []model.ComplianceFlag {
	out := make([]model.ComplianceFlag, 0, len(flags))
	for _, f := range flags {
		if f.Status == "fail" && isArithmeticRule(f.Rule) && quant != nil && quant.MathVerified {
			f.Status = "warning"
			f.Detail = strings.TrimSpace(f.Detail + " (not confirmed by deterministic arithmetic check)")
		}
		out = append(out, f)
	}
	return out
}

func isArithmeticRule(rule string) bool {
	r := strings.ToLower(rule)
	return strings.Contains(r, "tax") || strings.Contains(r, "total") || strings.Contains(r, "arithmetic")
}

func clampRisk(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// complianceContext renders the metadata the rule prompt needs.
func complianceContext(state *model.PipelineState) string {
	ctx := map[string]any{}
	if po := state.Extracted[model.KindPurchaseOrder]; po != nil {
		ctx["po_number"] = po.DocumentNumber
		ctx["po_date"] = po.DocumentDate
		ctx["po_total"] = po.Totals.GrandTotal.StringFixed()
		ctx["vendor_on_po"] = po.VendorName
		ctx["po_line_count"] = len(po.LineItems)
	}
	if grn := state.Extracted[model.KindGoodsReceipt]; grn != nil {
		ctx["grn_number"] = grn.DocumentNumber
		ctx["grn_line_count"] = len(grn.LineItems)
	}
	if inv := state.Extracted[model.KindInvoice]; inv != nil {
		ctx["invoice_number"] = inv.DocumentNumber
		ctx["invoice_date"] = inv.DocumentDate
		ctx["invoice_total"] = inv.Totals.GrandTotal.StringFixed()
		ctx["vendor_on_invoice"] = inv.VendorName
		ctx["payment_terms"] = inv.PaymentTerms
		ctx["tax"] = inv.Totals.Tax.StringFixed()
		ctx["invoice_line_count"] = len(inv.LineItems)
	}

	out, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

func (p *Pipeline) invoiceHistory(ctx context.Context, state *model.PipelineState) string {
	if p.history == nil {
		return "(history unavailable)"
	}
	numbers, err := p.history.RecentInvoiceNumbers(ctx, state.TenantID, p.cfg.HistoryProbeSize)
	if err != nil {
		state.AddError(model.StageCompliance, model.ErrUpstreamUnavailable,
			fmt.Sprintf("invoice history unavailable: %v", err), false)
		return "(history unavailable)"
	}
	if len(numbers) == 0 {
		return "(none)"
	}
	return strings.Join(numbers, ", ")
}

func quantSummary(state *model.PipelineState) string {
	if state.QuantReport == nil {
		return "unavailable"
	}
	if state.QuantReport.MathVerified {
		return "all arithmetic verified, no findings"
	}
	kinds := make([]string, 0, len(state.QuantReport.Flags))
	for _, f := range state.QuantReport.Flags {
		kinds = append(kinds, string(f.Kind))
	}
	return strings.Join(kinds, ", ")
}
