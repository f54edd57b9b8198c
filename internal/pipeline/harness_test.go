package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
)

// fakeDocStore serves parsed documents from memory.
type fakeDocStore struct {
	docs map[string]*model.Document
}

func (f *fakeDocStore) FetchParsed(_ context.Context, documentID string) (*model.Document, error) {
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s not found", documentID)
	}
	clone := *doc
	return &clone, nil
}

// fakeChunkStore returns no chunks, driving extraction through the parsed
// document fallback path so tests need no vector store.
type fakeChunkStore struct{}

func (fakeChunkStore) RetrieveChunks(context.Context, string, string, int) ([]model.Chunk, error) {
	return nil, nil
}

// fakeThresholds serves a fixed τ.
type fakeThresholds struct{ tau float64 }

func (f fakeThresholds) Threshold(context.Context, uuid.UUID) float64 { return f.tau }

// recordingBus captures published events in order.
type recordingBus struct {
	mu     sync.Mutex
	events []model.Event
}

func (b *recordingBus) Publish(event model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) all() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Event(nil), b.events...)
}

func (b *recordingBus) types() []model.EventType {
	var out []model.EventType
	for _, e := range b.all() {
		out = append(out, e.Type)
	}
	return out
}

func (b *recordingBus) has(t model.EventType) bool {
	for _, e := range b.all() {
		if e.Type == t {
			return true
		}
	}
	return false
}

// stubReasoner scripts the LLM surface. Extraction prompts are answered by
// matching a document number found in the prompt; everything else is
// driven by the schema hint.
type stubReasoner struct {
	mu sync.Mutex
	// extraction payloads keyed by a substring of the prompt (the
	// document number rendered into the fallback chunk text).
	extractions map[string]string
	riskScore   float64
	// vectors returns the reasoning vector for the nth vector call
	// (0-based). Defaults to a constant vector, i.e. similarity 1.
	vectors     func(call int, prompt string) []float32
	vectorCalls int
}

func (s *stubReasoner) Complete(_ context.Context, req llm.Request) (llm.CompletionResult, error) {
	switch req.Schema {
	case llm.SchemaExtraction:
		for key, payload := range s.extractions {
			if strings.Contains(req.Prompt, key) {
				return llm.CompletionResult{Text: payload, Provider: "stub"}, nil
			}
		}
		return llm.CompletionResult{}, fmt.Errorf("stub: no extraction scripted for prompt")
	case llm.SchemaCompliance:
		out, _ := json.Marshal(map[string]any{
			"risk_score":        s.riskScore,
			"flags":             []any{},
			"policy_violations": []any{},
		})
		return llm.CompletionResult{Text: string(out), Provider: "stub"}, nil
	default:
		return llm.CompletionResult{Text: "Stub narrative.", Provider: "stub"}, nil
	}
}

func (s *stubReasoner) ReasoningVector(_ context.Context, prompt string) (llm.VectorResult, error) {
	s.mu.Lock()
	call := s.vectorCalls
	s.vectorCalls++
	s.mu.Unlock()

	if s.vectors != nil {
		return llm.VectorResult{Vector: s.vectors(call, prompt), Provider: "stub"}, nil
	}
	return llm.VectorResult{Vector: []float32{1, 0, 0, 1}, Provider: "stub"}, nil
}

// docSpec describes one test document compactly.
type docSpec struct {
	id       string
	number   string
	vendor   string
	terms    string
	lines    []lineSpec
	subtotal string
	tax      string
	grand    string
}

type lineSpec struct {
	desc  string
	part  string
	qty   string
	price string
	total string
}

func buildDoc(kind model.DocumentKind, spec docSpec) *model.Document {
	doc := &model.Document{
		ID:             spec.id,
		Kind:           kind,
		Currency:       "USD",
		VendorName:     spec.vendor,
		DocumentNumber: spec.number,
		DocumentDate:   "2026-07-01",
		PaymentTerms:   spec.terms,
		PageCount:      2,
	}
	for i, l := range spec.lines {
		doc.LineItems = append(doc.LineItems, model.LineItem{
			Description:  l.desc,
			PartNumber:   l.part,
			Quantity:     money.MustParse(l.qty),
			UnitPrice:    money.MustParse(l.price),
			ClaimedTotal: money.MustParse(l.total),
			Citation: &model.Citation{
				DocumentID: spec.id, Page: i % 2,
				BBox: model.BBox{X0: 0.1, Y0: 0.1, X1: 0.9, Y1: 0.2},
			},
		})
	}
	doc.Totals = model.DocumentTotals{
		Subtotal:           money.MustParse(orZero(spec.subtotal)),
		Tax:                money.MustParse(orZero(spec.tax)),
		GrandTotal:         money.MustParse(orZero(spec.grand)),
		GrandTotalCitation: &model.Citation{DocumentID: spec.id, Page: 1, BBox: model.BBox{X0: 0.5, Y0: 0.8, X1: 0.9, Y1: 0.85}},
	}
	return doc
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// extractionJSON renders the canonical extraction payload for a document,
// what a faithful model would answer.
func extractionJSON(spec docSpec) string {
	items := make([]map[string]any, 0, len(spec.lines))
	for _, l := range spec.lines {
		items = append(items, map[string]any{
			"description": l.desc,
			"quantity":    l.qty,
			"unit_price":  l.price,
			"total":       l.total,
			"part_number": l.part,
		})
	}
	out, _ := json.Marshal(map[string]any{
		"vendor_name":     spec.vendor,
		"document_number": spec.number,
		"document_date":   "2026-07-01",
		"currency":        "USD",
		"payment_terms":   spec.terms,
		"line_items":      items,
		"subtotal":        orZero(spec.subtotal),
		"tax":             orZero(spec.tax),
		"grand_total":     orZero(spec.grand),
	})
	return string(out)
}

// harness wires a pipeline over fakes for one PO/GRN/Invoice triple.
type harness struct {
	pipeline *Pipeline
	bus      *recordingBus
	reasoner *stubReasoner
}

func newHarness(po, grn, inv docSpec, cfg Config) *harness {
	docs := &fakeDocStore{docs: map[string]*model.Document{
		po.id:  buildDoc(model.KindPurchaseOrder, po),
		grn.id: buildDoc(model.KindGoodsReceipt, grn),
		inv.id: buildDoc(model.KindInvoice, inv),
	}}
	reasoner := &stubReasoner{
		extractions: map[string]string{
			po.number:  extractionJSON(po),
			grn.number: extractionJSON(grn),
			inv.number: extractionJSON(inv),
		},
		riskScore: 1,
	}
	bus := &recordingBus{}
	p := New(docs, fakeChunkStore{}, reasoner, bus, fakeThresholds{tau: 0.85}, nil, cfg,
		slog.New(slog.DiscardHandler))
	return &harness{pipeline: p, bus: bus, reasoner: reasoner}
}

func (h *harness) run(ctx context.Context, sessionID uuid.UUID, po, grn, inv docSpec) (Result, error) {
	return h.pipeline.Run(ctx, sessionID, uuid.New(), po.id, grn.id, inv.id)
}

// perfectTriple is the baseline scenario: one identical line everywhere.
func perfectTriple() (docSpec, docSpec, docSpec) {
	line := lineSpec{desc: "Steel Bolt M8x40", part: "SB-M8-40", qty: "10", price: "50.00", total: "500.00"}
	po := docSpec{id: "po-1", number: "PO-1001", vendor: "Acme Supply", terms: "Net-30",
		lines: []lineSpec{line}, subtotal: "500.00", tax: "0.00", grand: "500.00"}
	grn := docSpec{id: "grn-1", number: "GRN-2001", vendor: "Acme Supply",
		lines: []lineSpec{line}, subtotal: "500.00", tax: "0.00", grand: "500.00"}
	inv := docSpec{id: "inv-1", number: "INV-3001", vendor: "Acme Supply", terms: "Net-30",
		lines: []lineSpec{line}, subtotal: "500.00", tax: "0.00", grand: "500.00"}
	return po, grn, inv
}
