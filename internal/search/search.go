// Package search retrieves document chunks with spatial metadata for the
// extraction stage. Retrieval is semantic (vector store); a lexical
// re-ranking pass against the per-kind probe then narrows the candidates
// the LLM actually sees.
package search

import (
	"context"
	"sort"

	"github.com/NeoOne601/Ventro/internal/fuzzy"
	"github.com/NeoOne601/Ventro/internal/model"
)

// ChunkStore serves already-indexed document chunks. The indexing side
// (rasterization, OCR, embedding) lives upstream; the pipeline only reads.
type ChunkStore interface {
	// RetrieveChunks returns the topK most relevant chunks of one
	// document for a probe query, best first.
	RetrieveChunks(ctx context.Context, documentID, probe string, topK int) ([]model.Chunk, error)
}

// Embedder turns a probe query into a vector for the store. The LLM
// router satisfies this through a small adapter at wiring time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Probes are the per-kind retrieval queries used by the extraction stage.
var Probes = map[model.DocumentKind]string{
	model.KindPurchaseOrder: "line items purchase order quantity unit price total",
	model.KindGoodsReceipt:  "goods receipt quantity received units delivery",
	model.KindInvoice:       "vendor number items total invoice amount due tax",
}

const (
	// RetrieveK is how many candidates the store returns.
	RetrieveK = 10
	// KeepK is how many survive re-ranking and reach the prompt.
	KeepK = 5
)

// Rerank orders chunks by lexical relevance to the probe and keeps the
// best keep of them. The vector score breaks ties so the store's ranking
// is preserved among equally relevant chunks.
func Rerank(probe string, chunks []model.Chunk, keep int) []model.Chunk {
	type scored struct {
		chunk model.Chunk
		score int
	}

	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i] = scored{chunk: c, score: fuzzy.TokenSetRatio(probe, c.Text)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].chunk.Score > ranked[j].chunk.Score
	})

	if keep > len(ranked) {
		keep = len(ranked)
	}
	out := make([]model.Chunk, keep)
	for i := 0; i < keep; i++ {
		out[i] = ranked[i].chunk
	}
	return out
}
