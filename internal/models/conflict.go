package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ConflictType classifies a calendar invariant or staff constraint violation.
type ConflictType string

const (
	ConflictDoubleBooking    ConflictType = "double_booking"
	ConflictStaffUnavailable ConflictType = "staff_unavailable"
	ConflictResource         ConflictType = "resource_conflict"
	ConflictTimeConstraint   ConflictType = "time_constraint"
)

// Severity is the ordinal impact of a conflict.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityOrder = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities from 0 (low) to 3 (critical).
func (s Severity) Rank() int {
	for i, v := range severityOrder {
		if v == s {
			return i
		}
	}
	return 0
}

// Escalate returns the next severity level, saturating at critical.
func (s Severity) Escalate() Severity {
	r := s.Rank() + 1
	if r >= len(severityOrder) {
		r = len(severityOrder) - 1
	}
	return severityOrder[r]
}

// RequiresApproval reports whether a human must confirm any remediation.
func (s Severity) RequiresApproval() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ConflictStatus is the record lifecycle: open -> resolved | ignored.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// ConflictRecord describes one maximal violation group on a resource-day.
type ConflictRecord struct {
	ID            string          `db:"id" json:"id"`
	Type          ConflictType    `db:"type" json:"type"`
	Severity      Severity        `db:"severity" json:"severity"`
	ResourceID    string          `db:"resource_id" json:"resourceId"`
	Date          string          `db:"conflict_date" json:"date"`
	BookingIDs    pq.StringArray  `db:"booking_ids" json:"bookingIds"`
	DisplacedIDs  pq.StringArray  `db:"displaced_ids" json:"displacedIds"`
	RevenueAtRisk decimal.Decimal `db:"revenue_at_risk" json:"revenueAtRisk"`
	Reason        string          `db:"reason" json:"reason"`
	Status        ConflictStatus  `db:"status" json:"status"`
	ResolutionID  *string         `db:"resolution_id" json:"resolutionId,omitempty"`
	DetectedAt    time.Time       `db:"detected_at" json:"detectedAt"`
	ClosedAt      *time.Time      `db:"closed_at" json:"closedAt,omitempty"`
}

// Open reports whether the record still awaits resolution.
func (c *ConflictRecord) Open() bool {
	return c.Status == ConflictOpen
}

// ConflictFilter narrows conflict listings.
type ConflictFilter struct {
	Status     ConflictStatus
	ResourceID string
	Date       string
	Page       int
	PageSize   int
}
