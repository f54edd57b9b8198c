// Package threshold maintains the per-tenant divergence cutoff τ. The
// value is learned from analyst feedback on past alerts: τ is the
// candidate that would have produced the cheapest mix of false alarms and
// misses over the tenant's recent history, with misses weighted double.
package threshold

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/NeoOne601/Ventro/internal/model"
)

const (
	// GlobalPrior is used until a tenant has enough feedback.
	GlobalPrior = 0.85
	// WindowSize is the rolling feedback window per tenant.
	WindowSize = 200
	// MinSamples gates adaptation; below it the prior applies.
	MinSamples = 20

	candidateLow  = 0.70
	candidateHigh = 0.95
	candidateStep = 0.01
)

// FeedbackStore reads recent analyst feedback for a tenant, newest first.
type FeedbackStore interface {
	Recent(ctx context.Context, tenantID uuid.UUID, windowSize int) ([]model.Feedback, error)
}

// Store caches one τ per tenant. Reads are O(1); feedback invalidates the
// tenant's entry and the next read recomputes.
type Store struct {
	feedback FeedbackStore
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]float64
}

// New creates a threshold store over a feedback source.
func New(feedback FeedbackStore, logger *slog.Logger) *Store {
	return &Store{
		feedback: feedback,
		logger:   logger,
		cache:    make(map[uuid.UUID]float64),
	}
}

// Threshold returns τ for a tenant, recomputing on a cache miss. Feedback
// source failures fall back to the global prior without caching, so a
// transient outage doesn't pin a tenant to the prior.
func (s *Store) Threshold(ctx context.Context, tenantID uuid.UUID) float64 {
	s.mu.RLock()
	tau, ok := s.cache[tenantID]
	s.mu.RUnlock()
	if ok {
		return tau
	}

	rows, err := s.feedback.Recent(ctx, tenantID, WindowSize)
	if err != nil {
		s.logger.Warn("threshold: feedback read failed, using prior", "tenant_id", tenantID, "error", err)
		return GlobalPrior
	}

	tau = Optimize(rows)

	s.mu.Lock()
	s.cache[tenantID] = tau
	s.mu.Unlock()
	return tau
}

// Invalidate drops a tenant's cached τ after new feedback arrives.
func (s *Store) Invalidate(tenantID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, tenantID)
	s.mu.Unlock()
}

// Optimize finds the τ in [0.70, 0.95] that minimises
// false_positives + 2×false_negatives over the feedback rows. Under
// MinSamples rows the global prior is returned. Ties resolve toward the
// candidate closest to the prior.
func Optimize(rows []model.Feedback) float64 {
	if len(rows) < MinSamples {
		return GlobalPrior
	}

	best := GlobalPrior
	bestCost := -1

	steps := int((candidateHigh-candidateLow)/candidateStep + 0.5)
	for i := 0; i <= steps; i++ {
		// Each candidate is rounded to two decimals so float error from the
		// step never moves it off the grid it is simulated and returned on.
		t := float64(int((candidateLow+float64(i)*candidateStep)*100+0.5)) / 100
		cost := simulate(rows, t)
		if bestCost < 0 || cost < bestCost || (cost == bestCost && closerToPrior(t, best)) {
			best = t
			bestCost = cost
		}
	}

	return best
}

// simulate replays the feedback under candidate τ: an alert would fire
// when similarity < t, and the analyst's label fixes the ground truth.
func simulate(rows []model.Feedback, t float64) int {
	fp, fn := 0, 0
	for _, row := range rows {
		predicted := row.Similarity < t
		should := shouldHaveAlerted(row)
		switch {
		case predicted && !should:
			fp++
		case !predicted && should:
			fn++
		}
	}
	return fp + 2*fn
}

func shouldHaveAlerted(row model.Feedback) bool {
	switch row.Outcome {
	case model.FeedbackCorrect:
		return row.WasAlert
	case model.FeedbackFalsePositive:
		return false
	case model.FeedbackFalseNegative:
		return true
	default:
		return row.WasAlert
	}
}

func closerToPrior(candidate, incumbent float64) bool {
	dc := candidate - GlobalPrior
	if dc < 0 {
		dc = -dc
	}
	di := incumbent - GlobalPrior
	if di < 0 {
		di = -di
	}
	return dc < di
}
