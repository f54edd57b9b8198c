package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NeoOne601/Ventro/internal/model"
)

func TestRerankKeepsMostRelevant(t *testing.T) {
	probe := Probes[model.KindInvoice]
	chunks := []model.Chunk{
		{Text: "terms and conditions boilerplate legal text", Score: 0.9},
		{Text: "invoice number INV-1001 total amount due 500.00 tax 50.00", Score: 0.5},
		{Text: "shipping address warehouse 7", Score: 0.8},
		{Text: "vendor Acme Supply invoice items", Score: 0.4},
	}

	out := Rerank(probe, chunks, 2)
	assert.Len(t, out, 2)
	assert.Contains(t, out[0].Text, "invoice")
}

func TestRerankTieBreaksOnVectorScore(t *testing.T) {
	chunks := []model.Chunk{
		{Text: "unrelated alpha", Score: 0.2},
		{Text: "unrelated alpha", Score: 0.7},
	}
	out := Rerank("probe words", chunks, 2)
	assert.Equal(t, float32(0.7), out[0].Score)
}

func TestRerankKeepBounds(t *testing.T) {
	chunks := []model.Chunk{{Text: "a"}, {Text: "b"}}
	out := Rerank("probe", chunks, KeepK)
	assert.Len(t, out, 2)

	assert.Empty(t, Rerank("probe", nil, KeepK))
}
