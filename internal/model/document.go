// Package model defines the core types shared across the reconciliation
// pipeline: documents, the pipeline state record, reports, verdicts,
// progress events and session bookkeeping. It has no dependencies beyond
// the decimal kernel and uuid so every other package can import it.
package model

import "github.com/NeoOne601/Ventro/internal/money"

// DocumentKind identifies one of the three documents in a three-way match.
type DocumentKind string

const (
	KindPurchaseOrder DocumentKind = "PO"
	KindGoodsReceipt  DocumentKind = "GRN"
	KindInvoice       DocumentKind = "INVOICE"
)

// Kinds lists the three document kinds in canonical order.
var Kinds = []DocumentKind{KindPurchaseOrder, KindGoodsReceipt, KindInvoice}

// BBox is a normalised bounding box; all coordinates are in [0,1] relative
// to the page.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Citation locates a value inside its source document. Page is 0-based.
type Citation struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	BBox       BBox   `json:"bbox"`
}

// LineItem is one row of a financial document. Quantity, UnitPrice and
// ClaimedTotal are exact decimals; Citation is nil when the row could not
// be located in the source (an UNRESOLVED_CITATION warning is recorded).
type LineItem struct {
	Description  string      `json:"description"`
	Quantity     money.Value `json:"quantity"`
	UnitPrice    money.Value `json:"unit_price"`
	ClaimedTotal money.Value `json:"claimed_total"`
	PartNumber   string      `json:"part_number,omitempty"`
	Citation     *Citation   `json:"citation,omitempty"`
}

// DocumentTotals carries the document-level amounts with their citations.
type DocumentTotals struct {
	Subtotal   money.Value `json:"subtotal"`
	Tax        money.Value `json:"tax"`
	GrandTotal money.Value `json:"grand_total"`

	SubtotalCitation   *Citation `json:"subtotal_citation,omitempty"`
	TaxCitation        *Citation `json:"tax_citation,omitempty"`
	GrandTotalCitation *Citation `json:"grand_total_citation,omitempty"`
}

// Document is the canonical structured form of a parsed document. The same
// type serves as the pipeline input (from the document store) and as the
// extraction agent's canonical output.
type Document struct {
	ID             string         `json:"id"`
	Kind           DocumentKind   `json:"kind"`
	Currency       string         `json:"currency"`
	VendorName     string         `json:"vendor_name"`
	DocumentNumber string         `json:"document_number"`
	DocumentDate   string         `json:"document_date"`
	PaymentTerms   string         `json:"payment_terms,omitempty"`
	PageCount      int            `json:"page_count"`
	LineItems      []LineItem     `json:"line_items"`
	Totals         DocumentTotals `json:"totals"`
}

// Chunk is a retrieved fragment of a document with its spatial origin.
type Chunk struct {
	Text     string   `json:"text"`
	Citation Citation `json:"citation"`
	Score    float32  `json:"score"`
}
