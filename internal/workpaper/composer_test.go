package workpaper

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
)

func testState() *model.PipelineState {
	state := model.NewPipelineState(uuid.New(), uuid.New())

	po := &model.Document{
		ID: "po-1", Kind: model.KindPurchaseOrder, DocumentNumber: "PO-1001", VendorName: "Acme",
		LineItems: []model.LineItem{{
			Description: "Steel Bolt M8", Quantity: money.MustParse("10"),
			UnitPrice: money.MustParse("50.00"), ClaimedTotal: money.MustParse("500.00"),
			Citation: &model.Citation{DocumentID: "po-1", Page: 0, BBox: model.BBox{X0: 0.1, Y0: 0.1, X1: 0.8, Y1: 0.2}},
		}},
	}
	state.Extracted[model.KindPurchaseOrder] = po
	state.Citations = []model.Citation{*po.LineItems[0].Citation}

	zero := 0
	state.Verdict = &model.Verdict{
		OverallStatus:  model.StatusFullMatch,
		Confidence:     0.95,
		Recommendation: model.RecommendApprove,
		LineItemMatches: []model.LineItemMatch{{
			POIndex: &zero, DescriptionScore: 100, Status: model.MatchFull,
			QuantityDelta: money.Zero(), PriceDelta: money.Zero(),
		}},
	}
	state.QuantReport = &model.QuantitativeReport{MathVerified: true}
	state.Divergence = &model.DivergenceMetrics{Similarity: 0.97, Threshold: 0.85}
	return state
}

func TestComposeSections(t *testing.T) {
	wp, err := Compose(testState(), "Narrative paragraph one.\n\nNarrative paragraph two.")
	require.NoError(t, err)

	require.Len(t, wp.Sections, 5)
	titles := make([]string, len(wp.Sections))
	for i, s := range wp.Sections {
		titles[i] = s.Title
	}
	assert.Equal(t, []string{"Objective", "Procedure", "Findings", "Materiality", "Conclusion"}, titles)

	assert.Contains(t, wp.Sections[0].Content, "PO PO-1001")
	assert.Equal(t, "Narrative paragraph one.\n\nNarrative paragraph two.", wp.Sections[1].Content)
	assert.Contains(t, wp.Sections[4].Content, "FULL_MATCH")
	assert.Contains(t, wp.Sections[4].Content, "APPROVE")
}

func TestComposeIsPureExcludingNarrative(t *testing.T) {
	state := testState()
	a, err := Compose(state, "same narrative")
	require.NoError(t, err)
	b, err := Compose(state, "same narrative")
	require.NoError(t, err)

	// Sections are byte-identical for identical inputs.
	assert.Equal(t, a.Sections, b.Sections)
	assert.Equal(t, a.Matches, b.Matches)
	assert.Equal(t, a.Citations, b.Citations)
}

func TestComposeHTMLCarriesCitations(t *testing.T) {
	wp, err := Compose(testState(), "narrative")
	require.NoError(t, err)

	assert.Contains(t, wp.HTML, `data-doc-id="po-1"`)
	assert.Contains(t, wp.HTML, `data-page="0"`)
	assert.Contains(t, wp.HTML, "CITATION_CLICK")
	assert.Contains(t, wp.HTML, "Steel Bolt M8")
	assert.Contains(t, wp.HTML, "FULL MATCH")
}

func TestComposeWithoutVerdict(t *testing.T) {
	state := model.NewPipelineState(uuid.New(), uuid.New())
	wp, err := Compose(state, "n")
	require.NoError(t, err)
	assert.Contains(t, wp.Sections[4].Content, "No verdict")
}

func TestComposeNilState(t *testing.T) {
	_, err := Compose(nil, "n")
	assert.Error(t, err)
}
