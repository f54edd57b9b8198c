package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchIdentity(t *testing.T) {
	descs := []string{
		"Widget, blue 10mm",
		"Industrial Grade Steel Bolt M8x40",
		"x",
		"",
	}
	for _, d := range descs {
		assert.Equal(t, 100, Match(d, d, "", ""), "identity must score 100: %q", d)
	}
}

func TestMatchPartNumberOverride(t *testing.T) {
	assert.Equal(t, 100, Match("completely different", "nothing alike", "PN-1234", "pn-1234"))
	assert.Equal(t, 100, Match("a", "b", " PN-1 ", "PN-1"))

	// Empty part numbers never override.
	assert.Less(t, Match("completely different", "nothing alike", "", ""), MatchThreshold)
	// One-sided part number never overrides.
	assert.Less(t, Match("completely different", "nothing alike", "PN-1", ""), MatchThreshold)
}

func TestTokenSetRatioReordering(t *testing.T) {
	assert.Equal(t, 100, TokenSetRatio("10mm Blue Widget", "widget blue 10MM"))
	assert.Equal(t, 100, TokenSetRatio("steel bolt, M8", "M8 steel bolt"))
}

func TestTokenSetRatioPartialOverlap(t *testing.T) {
	score := TokenSetRatio("industrial steel bolt m8", "steel bolt m8")
	assert.GreaterOrEqual(t, score, MatchThreshold)

	score = TokenSetRatio("office chair ergonomic", "steel bolt m8")
	assert.Less(t, score, MatchThreshold)
}

func TestTokenSetRatioEmpty(t *testing.T) {
	assert.Equal(t, 100, TokenSetRatio("", ""))
	assert.Equal(t, 100, TokenSetRatio("...", "!!!")) // punctuation-only both sides
	assert.Equal(t, 0, TokenSetRatio("widget", ""))
}

func TestScoreIsSymmetric(t *testing.T) {
	a, b := "HP LaserJet Toner Cartridge 26A", "Toner 26A HP LaserJet"
	assert.Equal(t, TokenSetRatio(a, b), TokenSetRatio(b, a))
}
