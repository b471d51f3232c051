package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolutionAction is a remediation strategy.
type ResolutionAction string

const (
	ActionReassign   ResolutionAction = "reassign"
	ActionReschedule ResolutionAction = "reschedule"
	ActionSplit      ResolutionAction = "split_service"
	ActionCancel     ResolutionAction = "cancel"
)

// ResolutionStatus tracks a resolution through review and application.
type ResolutionStatus string

const (
	ResolutionProposed      ResolutionStatus = "proposed"
	ResolutionPendingReview ResolutionStatus = "pending_review"
	ResolutionApplied       ResolutionStatus = "applied"
	ResolutionRejected      ResolutionStatus = "rejected"
	ResolutionSuperseded    ResolutionStatus = "superseded"
)

// CompensationKind is the offer made when a booking is cancelled.
type CompensationKind string

const (
	CompensationDiscount  CompensationKind = "discount"
	CompensationFreeAddon CompensationKind = "free_addon"
	CompensationCredit    CompensationKind = "credit"
)

// Compensation sizes the offer proportionally to inconvenience.
type Compensation struct {
	Kind   CompensationKind `json:"kind"`
	Amount decimal.Decimal  `json:"amount"`
	Rate   float64          `json:"rate"`
}

// Impact estimates the business effect of applying a candidate.
type Impact struct {
	RevenueDelta      decimal.Decimal `json:"revenueDelta"`
	SatisfactionDelta float64         `json:"satisfactionDelta"`
	UtilizationDelta  float64         `json:"utilizationDelta"`
}

// Placement is one concrete assignment proposed by a candidate.
type Placement struct {
	ResourceID string `json:"resourceId"`
	Date       string `json:"date"`
	Interval
	Component string `json:"component,omitempty"`
}

// Candidate is one alternative assignment for the target booking.
type Candidate struct {
	Action       ResolutionAction `json:"action"`
	BookingID    string           `json:"bookingId"`
	Placements   []Placement      `json:"placements,omitempty"`
	Compensation *Compensation    `json:"compensation,omitempty"`
	Impact       Impact           `json:"impact"`
}

// Resolution is a proposed or applied remedy for a conflict.
type Resolution struct {
	ID         string           `json:"id"`
	ConflictID string           `json:"conflictId"`
	Action     ResolutionAction `json:"action"`
	Severity   Severity         `json:"severity"`
	Candidates []Candidate      `json:"candidates"`
	Chosen     *int             `json:"chosen,omitempty"`
	Status     ResolutionStatus `json:"status"`
	DecidedBy  *string          `json:"decidedBy,omitempty"`
	Note       string           `json:"note,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	AppliedAt  *time.Time       `json:"appliedAt,omitempty"`
}

// Pending reports whether the resolution still awaits a decision.
func (r *Resolution) Pending() bool {
	return r.Status == ResolutionProposed || r.Status == ResolutionPendingReview
}

// ChosenCandidate returns the applied candidate, if any.
func (r *Resolution) ChosenCandidate() (Candidate, bool) {
	if r.Chosen == nil || *r.Chosen < 0 || *r.Chosen >= len(r.Candidates) {
		return Candidate{}, false
	}
	return r.Candidates[*r.Chosen], true
}

// DecisionVerdict is the operator's answer for a candidate.
type DecisionVerdict string

const (
	VerdictAccept DecisionVerdict = "accept"
	VerdictReject DecisionVerdict = "reject"
)

// Decision is an operator response on the review surface.
type Decision struct {
	Verdict        DecisionVerdict `json:"verdict"`
	CandidateIndex int             `json:"candidateIndex"`
	OperatorID     string          `json:"operatorId"`
	Note           string          `json:"note,omitempty"`
}
