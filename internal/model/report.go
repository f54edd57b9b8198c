package model

import (
	"time"

	"github.com/google/uuid"
)

// FlagKind classifies a quantitative finding.
type FlagKind string

const (
	FlagLineArithmetic     FlagKind = "LINE_ARITHMETIC"
	FlagDocTotalArithmetic FlagKind = "DOC_TOTAL_ARITHMETIC"
	FlagTaxComposition     FlagKind = "TAX_COMPOSITION"
	FlagShortDelivery      FlagKind = "SHORT_DELIVERY"
	FlagOverbilling        FlagKind = "OVERBILLING"
	FlagPriceDeviation     FlagKind = "PRICE_DEVIATION"
)

// severeFlags force a MISMATCH verdict; the remaining kinds only degrade
// to PARTIAL_MATCH.
var severeFlags = map[FlagKind]bool{
	FlagShortDelivery:      true,
	FlagOverbilling:        true,
	FlagPriceDeviation:     true,
	FlagDocTotalArithmetic: true,
}

// Severe reports whether the flag kind forces a mismatch verdict.
func (k FlagKind) Severe() bool { return severeFlags[k] }

// QuantFlag is one deterministic arithmetic finding. LineIndex is -1 for
// document-level flags.
type QuantFlag struct {
	Kind      FlagKind     `json:"kind"`
	Document  DocumentKind `json:"document,omitempty"`
	LineIndex int          `json:"line_index"`
	Detail    string       `json:"detail"`
	Citation  *Citation    `json:"citation,omitempty"`
}

// QuantitativeReport is the output of the quantitative agent.
type QuantitativeReport struct {
	Flags        []QuantFlag `json:"flags"`
	MathVerified bool        `json:"math_verified"`
}

// HasFlag reports whether any flag of the given kind was raised.
func (r *QuantitativeReport) HasFlag(kind FlagKind) bool {
	for _, f := range r.Flags {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// HasSevereFlag reports whether any mismatch-forcing flag was raised.
func (r *QuantitativeReport) HasSevereFlag() bool {
	for _, f := range r.Flags {
		if f.Kind.Severe() {
			return true
		}
	}
	return false
}

// ComplianceFlag is one rule evaluation from the compliance agent.
type ComplianceFlag struct {
	Rule   string `json:"rule"`
	Status string `json:"status"` // pass | fail | warning
	Detail string `json:"detail"`
}

// ComplianceReport is the output of the compliance agent. RiskScore is in
// [0,10]. Numeric claims inside flags are cross-checked against the
// quantitative report before the report is accepted.
type ComplianceReport struct {
	RiskScore        float64          `json:"risk_score"`
	Flags            []ComplianceFlag `json:"flags"`
	PolicyViolations []string         `json:"policy_violations"`
}

// DivergenceMetrics is the divergence guard's output. Both reasoning
// vectors are retained for the audit record; Degraded marks that the
// deterministic router fallback produced them.
type DivergenceMetrics struct {
	Similarity     float64   `json:"similarity"`
	Threshold      float64   `json:"threshold"`
	AlertTriggered bool      `json:"alert_triggered"`
	Reason         string    `json:"reason,omitempty"`
	Degraded       bool      `json:"degraded"`
	Perturbations  []string  `json:"perturbations"`
	PrimarySummary string    `json:"-"`
	ShadowSummary  string    `json:"-"`
	PrimaryVector  []float32 `json:"-"`
	ShadowVector   []float32 `json:"-"`
}

// WorkpaperSection is one narrative section of the audit workpaper.
type WorkpaperSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Workpaper is the final structured artifact. Numbers and citations are
// copied from earlier stage outputs; only the narrative is generated.
type Workpaper struct {
	ID        uuid.UUID          `json:"id"`
	SessionID uuid.UUID          `json:"session_id"`
	Title     string             `json:"title"`
	Sections  []WorkpaperSection `json:"sections"`
	Matches   []LineItemMatch    `json:"line_item_table"`
	Citations []Citation         `json:"citations"`
	HTML      string             `json:"html,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
