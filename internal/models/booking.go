package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus captures the booking lifecycle.
type BookingStatus string

const (
	BookingRequested   BookingStatus = "requested"
	BookingTentative   BookingStatus = "tentative"
	BookingConfirmed   BookingStatus = "confirmed"
	BookingConflicted  BookingStatus = "conflicted"
	BookingRescheduled BookingStatus = "rescheduled"
	BookingCancelled   BookingStatus = "cancelled"
	BookingCompleted   BookingStatus = "completed"
)

// Occupies reports whether a booking in this status holds its interval on the calendar.
func (s BookingStatus) Occupies() bool {
	return s == BookingTentative || s == BookingConfirmed
}

// Terminal reports whether no further transitions are allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingRescheduled || s == BookingCancelled || s == BookingCompleted
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingRequested:  {BookingTentative, BookingConfirmed, BookingCancelled},
	BookingTentative:  {BookingConfirmed, BookingConflicted, BookingRescheduled, BookingCancelled},
	BookingConfirmed:  {BookingConflicted, BookingRescheduled, BookingCancelled, BookingCompleted},
	BookingConflicted: {BookingTentative, BookingConfirmed, BookingRescheduled, BookingCancelled},
}

// CanTransition reports whether a booking may move from s to next.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Urgency ranks how soon the customer needs the appointment.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Rank orders urgencies; higher is more urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 0
	case UrgencyHigh:
		return 2
	case UrgencyUrgent:
		return 3
	default:
		return 1
	}
}

// Weight normalises the urgency to [0,1] for scoring.
func (u Urgency) Weight() float64 {
	return float64(u.Rank()+1) / 4
}

// CustomerTier is the loyalty tier reported by the intake collaborator.
type CustomerTier string

const (
	TierStandard CustomerTier = "standard"
	TierGold     CustomerTier = "gold"
	TierVIP      CustomerTier = "vip"
)

// Multiplier scales compensation and priority by tier.
func (t CustomerTier) Multiplier() float64 {
	switch t {
	case TierVIP:
		return 1.5
	case TierGold:
		return 1.25
	default:
		return 1
	}
}

// Flexibility describes how far a request may move from its preference.
type Flexibility struct {
	DateRangeDays        int     `db:"flex_date_range_days" json:"dateRangeDays" validate:"min=0,max=60"`
	TimeFlexibilityHours float64 `db:"flex_time_hours" json:"timeFlexibilityHours" validate:"min=0,max=24"`
	ResourceFlexible     bool    `db:"flex_resource" json:"resourceFlexible"`
}

// TimeToleranceMinutes converts the hour tolerance to minutes.
func (f Flexibility) TimeToleranceMinutes() int {
	return int(f.TimeFlexibilityHours * 60)
}

// Booking is an assignment of a customer's service to a resource interval on a date.
type Booking struct {
	ID         string `db:"id" json:"id"`
	ResourceID string `db:"resource_id" json:"resourceId"`
	ServiceID  string `db:"service_id" json:"serviceId"`
	CustomerID string `db:"customer_id" json:"customerId"`
	Date       string `db:"booking_date" json:"date"`
	Interval
	Status          BookingStatus   `db:"status" json:"status"`
	PriorStatus     BookingStatus   `db:"prior_status" json:"priorStatus,omitempty"`
	Priority        float64         `db:"priority" json:"priority"`
	Urgency         Urgency         `db:"urgency" json:"urgency"`
	CustomerTier    CustomerTier    `db:"customer_tier" json:"customerTier"`
	Paid            bool            `db:"paid" json:"paid"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Flexibility     `json:"flexibility"`
	Component       string     `db:"component" json:"component,omitempty"`
	ParentBookingID *string    `db:"parent_booking_id" json:"parentBookingId,omitempty"`
	RescheduledFrom *string    `db:"rescheduled_from" json:"rescheduledFrom,omitempty"`
	Source          string     `db:"source" json:"source"`
	CancelReason    *string    `db:"cancel_reason" json:"cancelReason,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// Booking sources.
const (
	SourceOptimizer = "optimizer"
	SourceDirect    = "direct"
	SourceWaitlist  = "waitlist"
	SourceResolver  = "resolver"
)

// CommitmentStatus returns the status the booking held before being marked conflicted.
func (b *Booking) CommitmentStatus() BookingStatus {
	if b.Status == BookingConflicted && b.PriorStatus != "" {
		return b.PriorStatus
	}
	return b.Status
}

// PriorityScore derives the confidence/priority score from urgency, tier and payment.
func PriorityScore(u Urgency, tier CustomerTier, paid bool) float64 {
	score := 0.5*u.Weight() + 0.3*(tier.Multiplier()-1)/0.5
	if paid {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// PlacementRequest is a normalised booking request handed to the optimizer and waitlist.
type PlacementRequest struct {
	RequestID           string       `json:"requestId"`
	CustomerID          string       `json:"customerId"`
	ServiceID           string       `json:"serviceId"`
	PreferredDate       string       `json:"preferredDate"`
	PreferredStart      *Minute      `json:"preferredTime,omitempty"`
	PreferredResourceID string       `json:"preferredResourceId,omitempty"`
	Flexibility         Flexibility  `json:"flexibility"`
	Urgency             Urgency      `json:"urgency"`
	CustomerTier        CustomerTier `json:"customerTier"`
	Paid                bool         `json:"paid"`
	ArrivedAt           time.Time    `json:"arrivedAt"`
	Source              string       `json:"source"`
}

// LastDate returns the final date the request tolerates.
func (r PlacementRequest) LastDate() (string, error) {
	return AddDays(r.PreferredDate, r.Flexibility.DateRangeDays)
}

// AcceptsDate reports whether date falls inside the request's date window.
func (r PlacementRequest) AcceptsDate(date string) bool {
	last, err := r.LastDate()
	if err != nil {
		return false
	}
	return date >= r.PreferredDate && date <= last
}

// AcceptsResource reports whether the request may be served by resourceID.
func (r PlacementRequest) AcceptsResource(resourceID string) bool {
	if r.Flexibility.ResourceFlexible || r.PreferredResourceID == "" {
		return true
	}
	return r.PreferredResourceID == resourceID
}
