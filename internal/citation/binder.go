// Package citation links extracted field values back to the spatial
// evidence they came from. Every scalar that reaches the verdict must
// carry exactly one citation or an explicit UNRESOLVED_CITATION warning —
// a number without evidence is treated as unverified.
package citation

import (
	"regexp"
	"strings"

	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Binder resolves literals against a document's retrieved chunks. Chunks
// are searched in relevance order, so the best-ranked occurrence wins.
type Binder struct {
	chunks     []model.Chunk
	normalized []string
}

// NewBinder prepares a binder over the given chunks.
func NewBinder(chunks []model.Chunk) *Binder {
	normalized := make([]string, len(chunks))
	for i, c := range chunks {
		normalized[i] = normalize(c.Text)
	}
	return &Binder{chunks: chunks, normalized: normalized}
}

// Bind locates the chunk containing the literal and returns its citation.
// Literals shorter than three characters are never bound — they match
// everywhere and would produce meaningless evidence.
func (b *Binder) Bind(literal string) (*model.Citation, bool) {
	needle := normalize(literal)
	if len(needle) < 3 {
		return nil, false
	}
	for i, hay := range b.normalized {
		if strings.Contains(hay, needle) {
			cit := b.chunks[i].Citation
			return &cit, true
		}
	}
	return nil, false
}

// BindAmount locates a monetary or quantity value, trying both its
// fixed-point and natural renderings ("500.00" and "500").
func (b *Binder) BindAmount(v money.Value) (*model.Citation, bool) {
	if cit, ok := b.Bind(v.StringFixed()); ok {
		return cit, true
	}
	return b.Bind(v.String())
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " ")))
}
