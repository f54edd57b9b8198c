package ventro

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeoOne601/Ventro/internal/config"
	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
)

// memDocs is an in-memory document store for embedding-style tests.
type memDocs map[string]*model.Document

func (m memDocs) FetchParsed(_ context.Context, id string) (*model.Document, error) {
	doc, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	clone := *doc
	return &clone, nil
}

// scriptedProvider answers extraction prompts from a canned payload table
// and everything else with neutral values.
type scriptedProvider struct {
	payloads map[string]string
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	switch req.Schema {
	case llm.SchemaExtraction:
		for key, payload := range s.payloads {
			if strings.Contains(req.Prompt, key) {
				return payload, nil
			}
		}
		return "", fmt.Errorf("scripted: no payload for prompt")
	case llm.SchemaCompliance:
		return `{"risk_score": 1, "flags": [], "policy_violations": []}`, nil
	default:
		return "Scripted narrative.", nil
	}
}

func (s *scriptedProvider) ReasoningVector(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 1}, nil
}

func testDocument(id string, kind model.DocumentKind, number string) *model.Document {
	doc := &model.Document{
		ID: id, Kind: kind, Currency: "USD", VendorName: "Acme Supply",
		DocumentNumber: number, DocumentDate: "2026-07-01", PageCount: 1,
		LineItems: []model.LineItem{{
			Description:  "Steel Bolt M8x40",
			PartNumber:   "SB-M8-40",
			Quantity:     money.MustParse("10"),
			UnitPrice:    money.MustParse("50.00"),
			ClaimedTotal: money.MustParse("500.00"),
			Citation:     &model.Citation{DocumentID: id, Page: 0, BBox: model.BBox{X0: 0.1, Y0: 0.1, X1: 0.9, Y1: 0.2}},
		}},
	}
	doc.Totals.Subtotal = money.MustParse("500.00")
	doc.Totals.GrandTotal = money.MustParse("500.00")
	return doc
}

func extractionPayload(doc *model.Document) string {
	li := doc.LineItems[0]
	out, _ := json.Marshal(map[string]any{
		"vendor_name":     doc.VendorName,
		"document_number": doc.DocumentNumber,
		"document_date":   doc.DocumentDate,
		"currency":        doc.Currency,
		"line_items": []map[string]any{{
			"description": li.Description,
			"quantity":    li.Quantity.String(),
			"unit_price":  li.UnitPrice.StringFixed(),
			"total":       li.ClaimedTotal.StringFixed(),
			"part_number": li.PartNumber,
		}},
		"subtotal":    doc.Totals.Subtotal.StringFixed(),
		"tax":         "0.00",
		"grand_total": doc.Totals.GrandTotal.StringFixed(),
	})
	return string(out)
}

func TestAppRunWithoutPersistence(t *testing.T) {
	po := testDocument("po-1", model.KindPurchaseOrder, "PO-1001")
	grn := testDocument("grn-1", model.KindGoodsReceipt, "GRN-2001")
	inv := testDocument("inv-1", model.KindInvoice, "INV-3001")

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := New(
		WithConfig(cfg),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithoutPersistence(),
		WithDocumentStore(memDocs{"po-1": po, "grn-1": grn, "inv-1": inv}),
		WithProviders(&scriptedProvider{payloads: map[string]string{
			"PO-1001":  extractionPayload(po),
			"GRN-2001": extractionPayload(grn),
			"INV-3001": extractionPayload(inv),
		}}),
	)
	require.NoError(t, err)
	defer app.Close()

	sessionID := uuid.New()
	sub := app.Subscribe(sessionID)

	result, err := app.Run(context.Background(), RunRequest{
		SessionID: sessionID,
		TenantID:  uuid.New(),
		POID:      "po-1",
		GRNID:     "grn-1",
		InvoiceID: "inv-1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.SessionMatched, result.Status)
	require.NotNil(t, result.Verdict)
	assert.Equal(t, model.StatusFullMatch, result.Verdict.OverallStatus)
	require.NotNil(t, result.Workpaper)
	assert.NotEmpty(t, result.Workpaper.HTML)

	// The subscription saw the terminal event and was closed server-side.
	sawComplete := false
	for event := range sub.Events() {
		if event.Type == model.EventWorkflowComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)
}

func TestAppWithoutPersistenceRequiresDocumentStore(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = New(WithConfig(cfg), WithoutPersistence(), WithLogger(slog.New(slog.DiscardHandler)))
	assert.Error(t, err)
}
