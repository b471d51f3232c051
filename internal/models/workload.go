package models

import "time"

// ResourceUtilization is booked/available minutes for one resource-day.
type ResourceUtilization struct {
	ResourceID       string  `json:"resourceId"`
	Date             string  `json:"date"`
	BookedMinutes    int     `json:"bookedMinutes"`
	AvailableMinutes int     `json:"availableMinutes"`
	Utilization      float64 `json:"utilization"`
	Target           float64 `json:"target"`
}

// BalanceMove records one booking reassignment applied by the balancer.
type BalanceMove struct {
	BookingID    string `json:"bookingId"`
	Date         string `json:"date"`
	FromResource string `json:"fromResourceId"`
	ToResource   string `json:"toResourceId"`
	Interval
}

// BalanceReport summarises a balancer run over a date range.
type BalanceReport struct {
	From        string                `json:"from"`
	To          string                `json:"to"`
	Utilization []ResourceUtilization `json:"utilization"`
	Moves       []BalanceMove         `json:"moves"`
	Discarded   int                   `json:"discarded"`
	StartedAt   time.Time             `json:"startedAt"`
	FinishedAt  time.Time             `json:"finishedAt"`
}

// UtilizationReport is the read-only per resource-day view.
type UtilizationReport struct {
	From  string                `json:"from"`
	To    string                `json:"to"`
	Days  []ResourceUtilization `json:"days"`
	Mean  float64               `json:"mean"`
	Moves []BalanceMove         `json:"recentMoves,omitempty"`
}
