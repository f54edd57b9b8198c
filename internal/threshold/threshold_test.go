package threshold

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeoOne601/Ventro/internal/model"
)

type fakeFeedback struct {
	rows  []model.Feedback
	err   error
	calls int
}

func (f *fakeFeedback) Recent(_ context.Context, _ uuid.UUID, _ int) ([]model.Feedback, error) {
	f.calls++
	return f.rows, f.err
}

func fb(similarity float64, wasAlert bool, outcome model.FeedbackOutcome) model.Feedback {
	return model.Feedback{Similarity: similarity, WasAlert: wasAlert, Outcome: outcome}
}

// repeat builds n copies of a feedback row.
func repeat(n int, row model.Feedback) []model.Feedback {
	out := make([]model.Feedback, n)
	for i := range out {
		out[i] = row
	}
	return out
}

func TestOptimizePriorUnderMinSamples(t *testing.T) {
	rows := repeat(MinSamples-1, fb(0.5, true, model.FeedbackCorrect))
	assert.Equal(t, GlobalPrior, Optimize(rows))
	assert.Equal(t, GlobalPrior, Optimize(nil))
}

func TestOptimizeLowersThresholdOnFalsePositives(t *testing.T) {
	// Alerts at similarity 0.80 were all false positives: τ must drop to
	// at most 0.80 so those sessions stop alerting.
	rows := repeat(30, fb(0.80, true, model.FeedbackFalsePositive))
	tau := Optimize(rows)
	assert.LessOrEqual(t, tau, 0.80)
	assert.GreaterOrEqual(t, tau, 0.70)
}

func TestOptimizeRaisesThresholdOnFalseNegatives(t *testing.T) {
	// Sessions at similarity 0.88 should have alerted: τ must rise above
	// 0.88 to catch them.
	rows := repeat(30, fb(0.88, false, model.FeedbackFalseNegative))
	tau := Optimize(rows)
	assert.Greater(t, tau, 0.88)
	assert.LessOrEqual(t, tau, candidateHigh)
}

func TestOptimizeBalancesMixedFeedback(t *testing.T) {
	// True alerts below 0.75 and true clears at 0.92.
	rows := append(
		repeat(20, fb(0.75, true, model.FeedbackCorrect)),
		repeat(20, fb(0.92, false, model.FeedbackCorrect))...,
	)
	tau := Optimize(rows)
	// Any τ in (0.75, 0.92] is cost-free; the tie resolves toward the prior.
	assert.Greater(t, tau, 0.75)
	assert.LessOrEqual(t, tau, 0.92)
}

func TestStoreCachesAndInvalidates(t *testing.T) {
	src := &fakeFeedback{rows: repeat(30, fb(0.80, true, model.FeedbackFalsePositive))}
	store := New(src, slog.New(slog.DiscardHandler))
	tenantID := uuid.New()

	first := store.Threshold(context.Background(), tenantID)
	second := store.Threshold(context.Background(), tenantID)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls, "second read must hit the cache")

	store.Invalidate(tenantID)
	_ = store.Threshold(context.Background(), tenantID)
	assert.Equal(t, 2, src.calls, "invalidation must force a recompute")
}

func TestStoreFallsBackToPriorOnReadError(t *testing.T) {
	src := &fakeFeedback{err: errors.New("db down")}
	store := New(src, slog.New(slog.DiscardHandler))
	tenantID := uuid.New()

	require.Equal(t, GlobalPrior, store.Threshold(context.Background(), tenantID))

	// The failure must not be cached.
	src.err = nil
	src.rows = repeat(30, fb(0.80, true, model.FeedbackFalsePositive))
	tau := store.Threshold(context.Background(), tenantID)
	assert.NotEqual(t, GlobalPrior, tau)
}
