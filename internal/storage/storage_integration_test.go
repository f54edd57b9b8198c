//go:build integration

package storage_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/money"
	"github.com/NeoOne601/Ventro/internal/storage"
	"github.com/NeoOne601/Ventro/internal/testutil"
)

var testDB *storage.DB

func timeNow() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), slog.New(slog.DiscardHandler))
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	code := m.Run()
	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	tenantID := uuid.New()

	_, err := testDB.CreateSession(ctx, id, tenantID, "po-1", "grn-1", "inv-1")
	require.NoError(t, err)

	require.NoError(t, testDB.MarkSessionProcessing(ctx, id))
	// The transition is one-way: a second attempt finds no PENDING row.
	assert.Error(t, testDB.MarkSessionProcessing(ctx, id))

	verdict := &model.Verdict{
		OverallStatus:  model.StatusFullMatch,
		Confidence:     0.95,
		Recommendation: model.RecommendApprove,
	}
	trace := []model.TraceEntry{{Stage: model.StageExtraction, Outcome: model.OutcomeOK}}
	require.NoError(t, testDB.CompleteSession(ctx, id, model.SessionMatched, verdict, trace, nil, "INV-3001"))

	got, err := testDB.GetSession(ctx, tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionMatched, got.Status)
	require.NotNil(t, got.Verdict)
	assert.Equal(t, model.StatusFullMatch, got.Verdict.OverallStatus)
	require.Len(t, got.Trace, 1)
	assert.Equal(t, model.StageExtraction, got.Trace[0].Stage)

	numbers, err := testDB.RecentInvoiceNumbers(ctx, tenantID, 10)
	require.NoError(t, err)
	assert.Contains(t, numbers, "INV-3001")
}

func TestDivergenceRecordAndFeedback(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()
	tenantID := uuid.New()

	rec := model.DivergenceRecord{
		SessionID:      sessionID,
		TenantID:       tenantID,
		PrimarySummary: "primary",
		ShadowSummary:  "shadow",
		Similarity:     0.42,
		ThresholdUsed:  0.85,
		AlertTriggered: true,
		Perturbations:  []string{"50.00 -> 52.50"},
		PrimaryVector:  []float32{1, 0, 0},
		ShadowVector:   []float32{0, 1, 0},
		CreatedAt:      timeNow(),
	}
	require.NoError(t, testDB.SaveDivergenceRecord(ctx, rec))

	fb, err := testDB.InsertFeedback(ctx, sessionID, tenantID, true, model.FeedbackCorrect)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, fb.Similarity, 1e-9, "feedback joins the recorded similarity")

	recent, err := testDB.Recent(ctx, tenantID, 200)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.FeedbackCorrect, recent[0].Outcome)
	assert.True(t, recent[0].WasAlert)

	counts, err := testDB.FeedbackAnalytics(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.FeedbackCorrect])
}

func TestWorkpaperRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()

	wp := &model.Workpaper{
		ID:        uuid.New(),
		SessionID: sessionID,
		Title:     "Three-Way Match Audit Workpaper",
		Sections:  []model.WorkpaperSection{{Title: "Objective", Content: "verify"}},
		Matches:   []model.LineItemMatch{},
		Citations: []model.Citation{{DocumentID: "po-1", Page: 0}},
		HTML:      "<html></html>",
		CreatedAt: timeNow(),
	}
	require.NoError(t, testDB.SaveWorkpaper(ctx, wp))

	got, err := testDB.GetWorkpaper(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, wp.Title, got.Title)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "Objective", got.Sections[0].Title)

	_, err = testDB.GetWorkpaper(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestParsedDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()

	doc := &model.Document{
		ID:             "doc-rt-1",
		Kind:           model.KindInvoice,
		Currency:       "USD",
		DocumentNumber: "INV-9",
		PageCount:      3,
		LineItems: []model.LineItem{{
			Description:  "Steel Bolt",
			Quantity:     money.MustParse("10"),
			UnitPrice:    money.MustParse("50.00"),
			ClaimedTotal: money.MustParse("500.00"),
		}},
	}
	doc.Totals.GrandTotal = money.MustParse("500.00")

	require.NoError(t, testDB.SaveParsedDocument(ctx, doc))

	got, err := testDB.FetchParsed(ctx, "doc-rt-1")
	require.NoError(t, err)
	assert.Equal(t, model.KindInvoice, got.Kind)
	require.Len(t, got.LineItems, 1)
	// Exact decimal survives the JSONB round trip.
	assert.True(t, got.LineItems[0].UnitPrice.Equal(money.MustParse("50.00")))
	assert.True(t, got.Totals.GrandTotal.Equal(money.MustParse("500.00")))

	_, err = testDB.FetchParsed(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
