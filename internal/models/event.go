package models

import "time"

// EventType names an outbound notification event.
type EventType string

const (
	EventBookingConfirmed  EventType = "booking_confirmed"
	EventBookingCancelled  EventType = "booking_cancelled"
	EventBookingReassigned EventType = "booking_reassigned"
	EventConflictDetected  EventType = "conflict_detected"
	EventResolutionPending EventType = "resolution_pending"
	EventResolutionApplied EventType = "resolution_applied"
	EventWaitlistOffer     EventType = "waitlist_offer"
	EventWaitlistExpired   EventType = "waitlist_expired"
)

// Event is the payload handed to the notification collaborator.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	CustomerID string         `json:"customerId,omitempty"`
	ResourceID string         `json:"resourceId,omitempty"`
	Date       string         `json:"date,omitempty"`
	Subject    string         `json:"subject"`
	Data       map[string]any `json:"data,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
