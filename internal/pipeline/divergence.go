package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/NeoOne601/Ventro/internal/model"
)

const divergenceAnalysisPrompt = `You are performing a financial reconciliation analysis.
Based on the following document data, determine whether the three documents agree.

Data:
%s

Provide your analysis in JSON:
{"verdict": "match|mismatch|partial_match", "confidence": 0.0, "rationale": "", "anomalies": []}`

const (
	// perturbProbability is the chance each monetary literal is shifted
	// in the shadow stream.
	perturbProbability = 0.15
	// ReasonVectorDegenerate marks an alert caused by an unusable vector
	// rather than measured divergence.
	ReasonVectorDegenerate = "VECTOR_DEGENERATE"
	reasonSuppressed       = "SUPPRESSED_DEGRADED"
)

var moneyLiteralRe = regexp.MustCompile(`\b\d+\.\d{2}\b`)

// perturbFactors are the admissible shifts for shadow-stream literals.
var perturbFactors = []float64{-0.05, 0.05, -0.10, 0.10}

// runDivergence is the confidence-assurance core: the same analysis prompt
// is embedded twice, once over the real data and once over a reproducibly
// perturbed shadow, and the cosine distance between the two reasoning
// vectors decides whether the model's reasoning can be trusted.
func (p *Pipeline) runDivergence(ctx context.Context, state *model.PipelineState) error {
	if len(state.Extracted) == 0 {
		state.AddError(model.StageDivergence, model.ErrUnavailableInput, "no extracted documents", false)
		return fmt.Errorf("divergence: no extracted documents")
	}

	primary := buildAnalysisContext(state)
	shadow, perturbations := perturbContext(primary, state.SessionID)
	tau := p.thresholds.Threshold(ctx, state.TenantID)

	metrics := &model.DivergenceMetrics{
		Threshold:      tau,
		Perturbations:  perturbations,
		PrimarySummary: summarize(primary),
		ShadowSummary:  summarize(shadow),
	}
	state.Divergence = metrics

	primaryRes, err := p.router.ReasoningVector(ctx, fmt.Sprintf(divergenceAnalysisPrompt, primary))
	if err != nil {
		return fmt.Errorf("divergence: primary vector: %w", err)
	}
	metrics.PrimaryVector = primaryRes.Vector
	metrics.Degraded = primaryRes.Degraded

	if shadow == primary {
		// Nothing was perturbed; the two streams are byte-identical and
		// divergence is definitionally zero.
		metrics.ShadowVector = primaryRes.Vector
		metrics.Similarity = 1.0
		p.publishDivergenceOutcome(state, metrics)
		return nil
	}

	shadowRes, err := p.router.ReasoningVector(ctx, fmt.Sprintf(divergenceAnalysisPrompt, shadow))
	if err != nil {
		return fmt.Errorf("divergence: shadow vector: %w", err)
	}
	metrics.ShadowVector = shadowRes.Vector
	metrics.Degraded = metrics.Degraded || shadowRes.Degraded
	if metrics.Degraded {
		state.AddError(model.StageDivergence, model.ErrUpstreamUnavailable,
			"reasoning vectors served by deterministic fallback", false)
	}

	sim, ok := cosine(primaryRes.Vector, shadowRes.Vector)
	if !ok {
		metrics.Similarity = 0
		metrics.AlertTriggered = true
		metrics.Reason = ReasonVectorDegenerate
		state.AddError(model.StageDivergence, model.ErrVectorDegenerate,
			"reasoning vector has zero norm or non-finite similarity", false)
		p.publishDivergenceOutcome(state, metrics)
		return nil
	}

	metrics.Similarity = sim
	metrics.AlertTriggered = sim < tau
	if metrics.AlertTriggered && metrics.Degraded && p.cfg.SuppressDegradedAlerts {
		metrics.AlertTriggered = false
		metrics.Reason = reasonSuppressed
	}

	p.publishDivergenceOutcome(state, metrics)
	return nil
}

func (p *Pipeline) publishDivergenceOutcome(state *model.PipelineState, m *model.DivergenceMetrics) {
	if m.AlertTriggered {
		p.bus.Publish(model.Event{
			Type:      model.EventDivergenceAlert,
			SessionID: state.SessionID,
			Stage:     model.StageDivergence,
			Payload: map[string]any{
				"similarity":           m.Similarity,
				"threshold":            m.Threshold,
				"perturbation_summary": strings.Join(m.Perturbations, "; "),
				"reason":               m.Reason,
			},
		})
		return
	}
	p.bus.Publish(model.Event{
		Type:      model.EventDivergenceClear,
		SessionID: state.SessionID,
		Stage:     model.StageDivergence,
		Payload:   map[string]any{"similarity": m.Similarity},
	})
}

// buildAnalysisContext renders the extracted data as a compact canonical
// text, stable across runs so the shadow perturbation is the only
// difference between the two streams.
func buildAnalysisContext(state *model.PipelineState) string {
	var b strings.Builder
	for _, kind := range model.Kinds {
		doc, ok := state.Extracted[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "=== %s %s (%s) ===\n", kind, doc.DocumentNumber, doc.VendorName)
		for _, li := range doc.LineItems {
			fmt.Fprintf(&b, "  Item: %s | Qty: %s | Price: %s | Total: %s\n",
				li.Description, li.Quantity, li.UnitPrice.StringFixed(), li.ClaimedTotal.StringFixed())
		}
		fmt.Fprintf(&b, "  Subtotal: %s | Tax: %s | Grand Total: %s\n",
			doc.Totals.Subtotal.StringFixed(), doc.Totals.Tax.StringFixed(), doc.Totals.GrandTotal.StringFixed())
	}
	return b.String()
}

// perturbContext shifts a random subset of the monetary literals by ±5–10%.
// The generator is seeded from the session id, so the same session always
// produces the same shadow stream and re-runs are comparable.
func perturbContext(context string, sessionID uuid.UUID) (string, []string) {
	rng := sessionRand(sessionID)
	var perturbations []string

	perturbed := moneyLiteralRe.ReplaceAllStringFunc(context, func(literal string) string {
		if rng.Float64() >= perturbProbability {
			return literal
		}
		// Binary float is acceptable here: the shift is deliberate noise,
		// not accounting arithmetic.
		val, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return literal
		}
		factor := perturbFactors[rng.IntN(len(perturbFactors))]
		shifted := math.Round(val*(1+factor)*100) / 100
		out := strconv.FormatFloat(shifted, 'f', 2, 64)
		perturbations = append(perturbations, fmt.Sprintf("%s -> %s", literal, out))
		return out
	})

	return perturbed, perturbations
}

// sessionRand derives a reproducible generator from the session id.
func sessionRand(sessionID uuid.UUID) *rand.Rand {
	sum := sha256.Sum256(sessionID[:])
	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))
}

// cosine returns the cosine similarity of two vectors. ok is false for
// mismatched lengths, zero norms or a non-finite result.
func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, false
	}
	return sim, true
}

func summarize(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max]
}
