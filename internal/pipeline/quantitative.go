package pipeline

import (
	"context"
	"fmt"

	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
)

// runQuantitative performs all deterministic arithmetic validation. No
// model is consulted: math is a correctness gate, not a judgment call.
func (p *Pipeline) runQuantitative(_ context.Context, state *model.PipelineState) error {
	if len(state.Extracted) == 0 {
		state.AddError(model.StageQuantitative, model.ErrUnavailableInput, "no extracted documents", false)
		return fmt.Errorf("quantitative: no extracted documents")
	}

	report := &model.QuantitativeReport{}

	for _, kind := range model.Kinds {
		doc, ok := state.Extracted[kind]
		if !ok {
			continue
		}
		report.Flags = append(report.Flags, validateDocument(doc)...)
	}

	report.Flags = append(report.Flags, p.crossDocumentChecks(state)...)
	report.MathVerified = len(report.Flags) == 0
	state.QuantReport = report
	return nil
}

// withinCent tolerates only sub-cent differences: a discrepancy of one
// full cent is a finding. Sub-cent residue appears when a six-place
// quantity multiplies a two-place price; a whole cent never does.
func withinCent(a, b money.Value) bool {
	return a.Sub(b).Abs().Cmp(money.MoneyTolerance) < 0
}

// validateDocument checks arithmetic inside a single document: per-line
// quantity × unit price, the line-total sum, and the subtotal + tax
// composition.
func validateDocument(doc *model.Document) []model.QuantFlag {
	var flags []model.QuantFlag

	lineSum := money.Zero()
	for i, li := range doc.LineItems {
		lineSum = lineSum.Add(li.ClaimedTotal)

		computed := li.Quantity.Mul(li.UnitPrice)
		if !withinCent(computed, li.ClaimedTotal) {
			flags = append(flags, model.QuantFlag{
				Kind:      model.FlagLineArithmetic,
				Document:  doc.Kind,
				LineIndex: i,
				Detail: fmt.Sprintf("%s line %d: %s × %s = %s, document claims %s",
					doc.Kind, i, li.Quantity, li.UnitPrice, computed.StringFixed(), li.ClaimedTotal.StringFixed()),
				Citation: li.Citation,
			})
		}
	}

	if len(doc.LineItems) > 0 {
		// The line-total sum is checked against the subtotal when one is
		// stated, else directly against the grand total (untaxed layouts
		// often omit the subtotal line).
		reference := doc.Totals.Subtotal
		refCit := doc.Totals.SubtotalCitation
		if reference.IsZero() {
			reference = doc.Totals.GrandTotal
			refCit = doc.Totals.GrandTotalCitation
		}
		if !withinCent(lineSum, reference) {
			flags = append(flags, model.QuantFlag{
				Kind:      model.FlagDocTotalArithmetic,
				Document:  doc.Kind,
				LineIndex: -1,
				Detail: fmt.Sprintf("%s: line totals sum to %s, document claims %s",
					doc.Kind, lineSum.StringFixed(), reference.StringFixed()),
				Citation: refCit,
			})
		}
	}

	if !doc.Totals.Subtotal.IsZero() || !doc.Totals.Tax.IsZero() {
		composed := doc.Totals.Subtotal.Add(doc.Totals.Tax)
		if !withinCent(composed, doc.Totals.GrandTotal) {
			flags = append(flags, model.QuantFlag{
				Kind:      model.FlagTaxComposition,
				Document:  doc.Kind,
				LineIndex: -1,
				Detail: fmt.Sprintf("%s: subtotal %s + tax %s = %s, grand total claims %s",
					doc.Kind, doc.Totals.Subtotal.StringFixed(), doc.Totals.Tax.StringFixed(),
					composed.StringFixed(), doc.Totals.GrandTotal.StringFixed()),
				Citation: doc.Totals.GrandTotalCitation,
			})
		}
	}

	return flags
}

// crossDocumentChecks compares matched line items pairwise across the
// three documents: short deliveries (GRN under PO), overbilling (Invoice
// over GRN) and unit-price deviation (Invoice vs PO beyond 0.1%).
func (p *Pipeline) crossDocumentChecks(state *model.PipelineState) []model.QuantFlag {
	var flags []model.QuantFlag

	po := state.Extracted[model.KindPurchaseOrder]
	grn := state.Extracted[model.KindGoodsReceipt]
	inv := state.Extracted[model.KindInvoice]

	if po != nil && grn != nil {
		for _, m := range matchItems(po.LineItems, grn.LineItems) {
			if m.BIndex < 0 {
				continue
			}
			poQty := po.LineItems[m.AIndex].Quantity
			grnQty := grn.LineItems[m.BIndex].Quantity
			if grnQty.Cmp(poQty) < 0 {
				flags = append(flags, model.QuantFlag{
					Kind:      model.FlagShortDelivery,
					Document:  model.KindGoodsReceipt,
					LineIndex: m.BIndex,
					Detail: fmt.Sprintf("%q: ordered %s, received %s",
						po.LineItems[m.AIndex].Description, poQty, grnQty),
					Citation: grn.LineItems[m.BIndex].Citation,
				})
			}
		}
	}

	if grn != nil && inv != nil {
		for _, m := range matchItems(grn.LineItems, inv.LineItems) {
			if m.BIndex < 0 {
				continue
			}
			grnQty := grn.LineItems[m.AIndex].Quantity
			invQty := inv.LineItems[m.BIndex].Quantity
			if invQty.Cmp(grnQty) > 0 {
				flags = append(flags, model.QuantFlag{
					Kind:      model.FlagOverbilling,
					Document:  model.KindInvoice,
					LineIndex: m.BIndex,
					Detail: fmt.Sprintf("%q: received %s, billed %s",
						grn.LineItems[m.AIndex].Description, grnQty, invQty),
					Citation: inv.LineItems[m.BIndex].Citation,
				})
			}
		}
	}

	if po != nil && inv != nil {
		for _, m := range matchItems(po.LineItems, inv.LineItems) {
			if m.BIndex < 0 {
				continue
			}
			poPrice := po.LineItems[m.AIndex].UnitPrice
			invPrice := inv.LineItems[m.BIndex].UnitPrice
			if !poPrice.WithinRelative(invPrice, money.PriceRelTolerance) {
				flags = append(flags, model.QuantFlag{
					Kind:      model.FlagPriceDeviation,
					Document:  model.KindInvoice,
					LineIndex: m.BIndex,
					Detail: fmt.Sprintf("%q: agreed unit price %s, invoiced %s",
						po.LineItems[m.AIndex].Description, poPrice.StringFixed(), invPrice.StringFixed()),
					Citation: inv.LineItems[m.BIndex].Citation,
				})
			}
		}
	}

	return flags
}
