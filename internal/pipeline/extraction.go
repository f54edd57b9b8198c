package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NeoOne601/Ventro/internal/citation"
	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
	"github.com/NeoOne601/Ventro/internal/search"
)

const extractionSystemPrompt = `You are a precise financial document extraction specialist.
Extract structured line items from the document text. Always respond with
valid JSON. Return every numeric value as a string exactly as found. Never
infer values that are not explicitly present in the text.`

const extractionPromptTemplate = `Extract all line items from the following %s document text.

Document Text:
%s

Return JSON with this exact schema:
{
  "vendor_name": "",
  "document_number": "",
  "document_date": "",
  "currency": "",
  "payment_terms": "",
  "line_items": [
    {"description": "", "quantity": "0", "unit_price": "0.00", "total": "0.00", "part_number": ""}
  ],
  "subtotal": "0.00",
  "tax": "0.00",
  "grand_total": "0.00"
}`

// extractionPayload is the canonical LLM response. All numerics arrive as
// strings to preserve precision.
type extractionPayload struct {
	VendorName     string `json:"vendor_name"`
	DocumentNumber string `json:"document_number"`
	DocumentDate   string `json:"document_date"`
	Currency       string `json:"currency"`
	PaymentTerms   string `json:"payment_terms"`
	LineItems      []struct {
		Description string  `json:"description"`
		Quantity    numeric `json:"quantity"`
		UnitPrice   numeric `json:"unit_price"`
		Total       numeric `json:"total"`
		PartNumber  string  `json:"part_number"`
	} `json:"line_items"`
	Subtotal   numeric `json:"subtotal"`
	Tax        numeric `json:"tax"`
	GrandTotal numeric `json:"grand_total"`
}

// numeric tolerates models that return numbers instead of the requested
// strings; the raw token is kept so no precision is lost either way.
type numeric string

func (n *numeric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = numeric(s)
		return nil
	}
	*n = numeric(strings.TrimSpace(string(data)))
	return nil
}

func (n numeric) orZero() string {
	if n == "" {
		return "0"
	}
	return string(n)
}

// runExtraction converts the three parsed documents into canonical form
// with citations, fanning out one extraction per document. The fan-out is
// bounded at three outbound calls; the router's process-wide semaphore
// caps the rest.
func (p *Pipeline) runExtraction(ctx context.Context, state *model.PipelineState) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, kind := range model.Kinds {
		doc, ok := state.Documents[kind]
		if !ok {
			continue
		}
		g.Go(func() error {
			extracted, errs := p.extractOne(gctx, kind, doc)
			mu.Lock()
			defer mu.Unlock()
			state.Errors = append(state.Errors, errs...)
			if extracted != nil {
				state.Extracted[kind] = extracted
				for _, li := range extracted.LineItems {
					if li.Citation != nil {
						state.Citations = append(state.Citations, *li.Citation)
					}
				}
			}
			// Per-document failures never abort the sibling extractions.
			return nil
		})
	}
	_ = g.Wait()

	if len(state.Extracted) == 0 {
		return &fatalError{err: fmt.Errorf("extraction produced no data for any document")}
	}

	p.bus.Publish(model.Event{
		Type:      model.EventAgentProgress,
		SessionID: state.SessionID,
		Stage:     model.StageExtraction,
		Payload:   map[string]any{"message": fmt.Sprintf("extracted %d of %d documents", len(state.Extracted), len(model.Kinds))},
	})
	return nil
}

// extractOne retrieves the document's most relevant chunks, prompts the
// model for the canonical schema, parses every numeric through the decimal
// kernel and binds citations.
func (p *Pipeline) extractOne(ctx context.Context, kind model.DocumentKind, doc *model.Document) (*model.Document, []model.StageError) {
	var errs []model.StageError
	warn := func(k model.ErrorKind, format string, args ...any) {
		errs = append(errs, model.StageError{
			Stage: model.StageExtraction, Kind: k,
			Message: fmt.Sprintf("%s: ", kind) + fmt.Sprintf(format, args...),
		})
	}

	probe := search.Probes[kind]
	chunks, err := p.chunks.RetrieveChunks(ctx, doc.ID, probe, search.RetrieveK)
	if err != nil {
		warn(model.ErrUpstreamUnavailable, "chunk retrieval failed: %v", err)
	}
	if len(chunks) == 0 {
		// No indexed chunks: extract from the parsed document's own
		// rendering so the pipeline still completes; citations bind against
		// the fallback chunks, one per line item plus a totals chunk, which
		// carry the parsed document's own citations where it has them.
		warn(model.ErrUnavailableInput, "no chunks found, using parsed document text")
		chunks = fallbackChunks(doc)
	} else {
		chunks = search.Rerank(probe, chunks, search.KeepK)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	res, err := p.router.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(extractionPromptTemplate, kind, strings.Join(texts, "\n\n")),
		System:      extractionSystemPrompt,
		Temperature: 0,
		MaxTokens:   2048,
		JSONMode:    true,
		Schema:      llm.SchemaExtraction,
	})
	if err != nil {
		warn(model.ErrUpstreamUnavailable, "extraction completion failed: %v", err)
		return nil, errs
	}
	if res.Degraded {
		warn(model.ErrUpstreamUnavailable, "extraction served by deterministic fallback")
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(res.Text), &payload); err != nil {
		warn(model.ErrUpstreamUnavailable, "extraction payload malformed: %v", err)
		return nil, errs
	}

	extracted, perr := p.buildDocument(kind, doc, payload, chunks, warn)
	if perr != nil {
		errs = append(errs, model.StageError{
			Stage: model.StageExtraction, Kind: model.ErrParse,
			Message: fmt.Sprintf("%s: %v", kind, perr),
		})
		return nil, errs
	}
	return extracted, errs
}

// buildDocument parses the payload numerics exactly and attaches spatial
// citations via the binder.
func (p *Pipeline) buildDocument(kind model.DocumentKind, src *model.Document, payload extractionPayload,
	chunks []model.Chunk, warn func(model.ErrorKind, string, ...any)) (*model.Document, error) {

	binder := citation.NewBinder(chunks)

	out := &model.Document{
		ID:             src.ID,
		Kind:           kind,
		Currency:       firstNonEmpty(payload.Currency, src.Currency),
		VendorName:     firstNonEmpty(payload.VendorName, src.VendorName),
		DocumentNumber: firstNonEmpty(payload.DocumentNumber, src.DocumentNumber),
		DocumentDate:   firstNonEmpty(payload.DocumentDate, src.DocumentDate),
		PaymentTerms:   firstNonEmpty(payload.PaymentTerms, src.PaymentTerms),
		PageCount:      src.PageCount,
	}

	for i, item := range payload.LineItems {
		qty, err := money.ParseQuantity(item.Quantity.orZero())
		if err != nil {
			return nil, fmt.Errorf("line %d quantity: %w", i, err)
		}
		price, err := money.ParseMoney(item.UnitPrice.orZero())
		if err != nil {
			return nil, fmt.Errorf("line %d unit price: %w", i, err)
		}
		total, err := money.ParseMoney(item.Total.orZero())
		if err != nil {
			return nil, fmt.Errorf("line %d total: %w", i, err)
		}

		li := model.LineItem{
			Description:  item.Description,
			Quantity:     qty,
			UnitPrice:    price,
			ClaimedTotal: total,
			PartNumber:   item.PartNumber,
		}
		if cit, ok := binder.Bind(item.Description); ok {
			li.Citation = cit
		} else if cit, ok := binder.BindAmount(total); ok {
			li.Citation = cit
		} else {
			warn(model.ErrUnresolvedCitation, "line %d (%s) has no spatial evidence", i, item.Description)
		}
		out.LineItems = append(out.LineItems, li)
	}

	var err error
	if out.Totals.Subtotal, err = money.ParseMoney(payload.Subtotal.orZero()); err != nil {
		return nil, fmt.Errorf("subtotal: %w", err)
	}
	if out.Totals.Tax, err = money.ParseMoney(payload.Tax.orZero()); err != nil {
		return nil, fmt.Errorf("tax: %w", err)
	}
	if out.Totals.GrandTotal, err = money.ParseMoney(payload.GrandTotal.orZero()); err != nil {
		return nil, fmt.Errorf("grand total: %w", err)
	}

	out.Totals.SubtotalCitation = bindTotal(binder, out.Totals.Subtotal, warn, "subtotal")
	out.Totals.TaxCitation = bindTotal(binder, out.Totals.Tax, warn, "tax")
	out.Totals.GrandTotalCitation = bindTotal(binder, out.Totals.GrandTotal, warn, "grand total")

	return out, nil
}

func bindTotal(binder *citation.Binder, v money.Value, warn func(model.ErrorKind, string, ...any), label string) *model.Citation {
	if v.IsZero() {
		return nil
	}
	if cit, ok := binder.BindAmount(v); ok {
		return cit
	}
	warn(model.ErrUnresolvedCitation, "%s %s has no spatial evidence", label, v.StringFixed())
	return nil
}

// fallbackChunks renders the parsed document as one chunk per line item
// plus a totals chunk, preserving the input citations where present.
func fallbackChunks(doc *model.Document) []model.Chunk {
	var chunks []model.Chunk
	for _, li := range doc.LineItems {
		text := fmt.Sprintf("%s  part %s  qty %s  unit %s  total %s",
			li.Description, li.PartNumber, li.Quantity.String(), li.UnitPrice.StringFixed(), li.ClaimedTotal.StringFixed())
		cit := model.Citation{DocumentID: doc.ID}
		if li.Citation != nil {
			cit = *li.Citation
		}
		chunks = append(chunks, model.Chunk{Text: text, Citation: cit})
	}

	totalsText := fmt.Sprintf("%s %s vendor %s date %s terms %s currency %s subtotal %s tax %s grand total %s",
		doc.Kind, doc.DocumentNumber, doc.VendorName, doc.DocumentDate, doc.PaymentTerms, doc.Currency,
		doc.Totals.Subtotal.StringFixed(), doc.Totals.Tax.StringFixed(), doc.Totals.GrandTotal.StringFixed())
	totalsCit := model.Citation{DocumentID: doc.ID}
	if doc.Totals.GrandTotalCitation != nil {
		totalsCit = *doc.Totals.GrandTotalCitation
	}
	return append(chunks, model.Chunk{Text: totalsText, Citation: totalsCit})
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
