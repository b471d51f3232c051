package models

import "time"

// WaitlistStatus is the lifecycle of a waitlisted request.
type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistOffered   WaitlistStatus = "offered"
	WaitlistBooked    WaitlistStatus = "booked"
	WaitlistCancelled WaitlistStatus = "cancelled"
	WaitlistExpired   WaitlistStatus = "expired"
)

// Terminal reports whether the entry left the queue for good.
func (s WaitlistStatus) Terminal() bool {
	return s == WaitlistBooked || s == WaitlistCancelled || s == WaitlistExpired
}

// WaitlistEntry is a durable request that could not be placed immediately.
// Position is derived on read from urgency and arrival order.
type WaitlistEntry struct {
	ID             string           `json:"id"`
	Request        PlacementRequest `json:"request"`
	Status         WaitlistStatus   `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	OfferBookingID *string          `json:"offerBookingId,omitempty"`
	OfferExpiresAt *time.Time       `json:"offerExpiresAt,omitempty"`
	ExpiresOn      string           `json:"expiresOn"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`

	Position int `json:"position,omitempty"`
	WaitDays int `json:"waitDays"`
}

// OfferExpired reports whether an outstanding offer lapsed at now.
func (e *WaitlistEntry) OfferExpired(now time.Time) bool {
	return e.Status == WaitlistOffered && e.OfferExpiresAt != nil && !now.Before(*e.OfferExpiresAt)
}

// WaitlistFilter narrows waitlist listings.
type WaitlistFilter struct {
	Statuses   []WaitlistStatus
	CustomerID string
}

// SweepReport summarises one waitlist pass.
type SweepReport struct {
	Offered  []string `json:"offered"`
	Expired  []string `json:"expired"`
	Released []string `json:"released"`
	Skipped  int      `json:"skipped"`
}
