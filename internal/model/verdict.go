package model

import "github.com/NeoOne601/Ventro/internal/money"

// OverallStatus is the reconciliation outcome of a session.
type OverallStatus string

const (
	StatusFullMatch       OverallStatus = "FULL_MATCH"
	StatusPartialMatch    OverallStatus = "PARTIAL_MATCH"
	StatusMismatch        OverallStatus = "MISMATCH"
	StatusException       OverallStatus = "EXCEPTION"
	StatusDivergenceAlert OverallStatus = "DIVERGENCE_ALERT"
)

// Recommendation is the suggested accounts-payable action.
type Recommendation string

const (
	RecommendApprove  Recommendation = "APPROVE"
	RecommendHold     Recommendation = "HOLD"
	RecommendReject   Recommendation = "REJECT"
	RecommendEscalate Recommendation = "ESCALATE"
)

// MatchStatus classifies one cross-document line item triple.
type MatchStatus string

const (
	MatchFull    MatchStatus = "full_match"
	MatchPartial MatchStatus = "partial_match"
	MatchNone    MatchStatus = "mismatch"
)

// LineItemMatch links one PO line to its best GRN and Invoice counterparts.
// A nil index means no counterpart scored at or above the match threshold.
type LineItemMatch struct {
	POIndex      *int `json:"po_index,omitempty"`
	GRNIndex     *int `json:"grn_index,omitempty"`
	InvoiceIndex *int `json:"invoice_index,omitempty"`

	DescriptionScore int         `json:"description_score"`
	QuantityDelta    money.Value `json:"quantity_delta"`
	PriceDelta       money.Value `json:"price_delta"`
	Status           MatchStatus `json:"status"`
}

// Verdict is the final reconciliation result. DiscrepancySummary holds at
// most five findings; Narrative is LLM prose and carries no authoritative
// numbers.
type Verdict struct {
	OverallStatus      OverallStatus   `json:"overall_status"`
	Confidence         float64         `json:"confidence"`
	LineItemMatches    []LineItemMatch `json:"line_item_matches"`
	DiscrepancySummary []string        `json:"discrepancy_summary"`
	Recommendation     Recommendation  `json:"recommendation"`
	Narrative          string          `json:"narrative,omitempty"`
}

// SessionStatus is the externally visible lifecycle state of a session.
type SessionStatus string

const (
	SessionPending         SessionStatus = "PENDING"
	SessionProcessing      SessionStatus = "PROCESSING"
	SessionMatched         SessionStatus = "MATCHED"
	SessionDiscrepancy     SessionStatus = "DISCREPANCY_FOUND"
	SessionDivergenceAlert SessionStatus = "DIVERGENCE_ALERT"
	SessionException       SessionStatus = "EXCEPTION"
	SessionFailed          SessionStatus = "FAILED"
	SessionCancelled       SessionStatus = "CANCELLED"
)

// SessionStatusFor maps a verdict status to the terminal session status.
func SessionStatusFor(s OverallStatus) SessionStatus {
	switch s {
	case StatusFullMatch:
		return SessionMatched
	case StatusPartialMatch, StatusMismatch:
		return SessionDiscrepancy
	case StatusDivergenceAlert:
		return SessionDivergenceAlert
	default:
		return SessionException
	}
}

// Validate checks the verdict's internal consistency. A divergence alert
// must escalate; any violation here is a contract violation and aborts the
// session.
func (v *Verdict) Validate() error {
	if v.OverallStatus == StatusDivergenceAlert && v.Recommendation != RecommendEscalate {
		return &ContractViolation{Msg: "divergence alert verdict must recommend escalation"}
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return &ContractViolation{Msg: "confidence out of [0,1]"}
	}
	return nil
}

// ContractViolation signals a broken internal invariant. It is the only
// error class that terminates a session unconditionally.
type ContractViolation struct {
	Msg string
}

func (e *ContractViolation) Error() string { return "contract violation: " + e.Msg }
