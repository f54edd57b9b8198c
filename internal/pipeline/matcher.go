package pipeline

import (
	"github.com/NeoOne601/Ventro/internal/fuzzy"
	"github.com/NeoOne601/Ventro/internal/model"
)

// pairMatch links one source line item to its best counterpart. BIndex is
// -1 when nothing scored at or above the match threshold.
type pairMatch struct {
	AIndex int
	BIndex int
	Score  int
}

// matchItems resolves each item of a against its best unused counterpart
// in b using the fuzzy matcher. Matching is stable: items are resolved in
// a-order, equal scores prefer the earlier counterpart index, and every
// counterpart is consumed at most once.
func matchItems(a, b []model.LineItem) []pairMatch {
	used := make([]bool, len(b))
	out := make([]pairMatch, len(a))

	for i, itemA := range a {
		best, bestIdx := 0, -1
		for j, itemB := range b {
			if used[j] {
				continue
			}
			score := fuzzy.Match(itemA.Description, itemB.Description, itemA.PartNumber, itemB.PartNumber)
			if score > best {
				best = score
				bestIdx = j
			}
		}
		if best >= fuzzy.MatchThreshold {
			used[bestIdx] = true
			out[i] = pairMatch{AIndex: i, BIndex: bestIdx, Score: best}
		} else {
			out[i] = pairMatch{AIndex: i, BIndex: -1}
		}
	}
	return out
}
