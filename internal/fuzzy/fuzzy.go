// Package fuzzy scores description similarity for cross-document line item
// resolution. Scores are token-set based so word order and duplicated words
// don't penalise otherwise identical descriptions ("Widget blue 10mm" vs
// "10mm Blue Widget").
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
)

// MatchThreshold is the minimum score at which two descriptions are
// considered to refer to the same item.
const MatchThreshold = 70

// FullMatchThreshold is the description score required for a full match.
const FullMatchThreshold = 85

// Match scores two descriptions on a 0..100 scale using token-set
// similarity. If both part numbers are non-empty and equal
// case-insensitively the score is 100 regardless of the descriptions.
func Match(aDesc, bDesc, aPart, bPart string) int {
	if aPart != "" && bPart != "" && strings.EqualFold(strings.TrimSpace(aPart), strings.TrimSpace(bPart)) {
		return 100
	}
	return TokenSetRatio(aDesc, bDesc)
}

// TokenSetRatio computes the token-set similarity of two strings: both are
// lower-cased, stripped of punctuation and split on whitespace; the
// multiset intersection and the two remainders are compared pairwise and
// the best ratio wins. Identical inputs always score 100.
func TokenSetRatio(a, b string) int {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter, restA, restB := intersect(ta, tb)

	base := strings.Join(inter, " ")
	joinedA := join(base, restA)
	joinedB := join(base, restB)

	best := ratio(base, joinedA)
	if r := ratio(base, joinedB); r > best {
		best = r
	}
	if r := ratio(joinedA, joinedB); r > best {
		best = r
	}
	return best
}

// tokenize lower-cases, strips punctuation and splits on whitespace,
// returning the sorted token multiset.
func tokenize(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return ' '
		}
	}, s)

	tokens := strings.Fields(cleaned)
	sort.Strings(tokens)
	return tokens
}

// intersect splits two sorted multisets into the common part and the two
// remainders, honouring multiplicity.
func intersect(a, b []string) (inter, restA, restB []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter = append(inter, a[i])
			i++
			j++
		case a[i] < b[j]:
			restA = append(restA, a[i])
			i++
		default:
			restB = append(restB, b[j])
			j++
		}
	}
	restA = append(restA, a[i:]...)
	restB = append(restB, b[j:]...)
	return inter, restA, restB
}

func join(base string, rest []string) string {
	if len(rest) == 0 {
		return base
	}
	tail := strings.Join(rest, " ")
	if base == "" {
		return tail
	}
	return base + " " + tail
}

// ratio is a SequenceMatcher-style similarity: 2·LCS / (len(a)+len(b)),
// scaled to 0..100. Both inputs are already normalised token strings.
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	// Longest common subsequence over bytes (inputs are lower-case ASCII
	// after tokenization; multi-byte runes are rare and degrade gracefully).
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[lb]
	return int(float64(2*lcs) / float64(la+lb) * 100.0)
}
