package models

// BlockReason explains why part of a working window is unavailable.
type BlockReason string

const (
	BlockBooking BlockReason = "booking"
	BlockBreak   BlockReason = "break"
	BlockFatigue BlockReason = "fatigue"
)

// Block is a blocked span inside the working window.
type Block struct {
	Interval
	Reason    BlockReason `json:"reason"`
	BookingID string      `json:"bookingId,omitempty"`
}

// Slot is a free interval on a resource-day long enough for a requested duration.
type Slot struct {
	ResourceID string `json:"resourceId"`
	Date       string `json:"date"`
	Interval
}

// DayAvailability is the full picture of a resource-day.
type DayAvailability struct {
	ResourceID       string     `json:"resourceId"`
	Date             string     `json:"date"`
	Windows          []Interval `json:"windows"`
	Blocked          []Block    `json:"blocked"`
	Free             []Interval `json:"free"`
	BookedMinutes    int        `json:"bookedMinutes"`
	AvailableMinutes int        `json:"availableMinutes"`
	Utilization      float64    `json:"utilization"`
}
