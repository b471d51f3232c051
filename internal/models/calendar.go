package models

// DayKey identifies one resource-day, the unit of locking and persistence.
type DayKey struct {
	ResourceID string `json:"resourceId"`
	Date       string `json:"date"`
}

func (k DayKey) String() string {
	return k.ResourceID + "/" + k.Date
}

// Less orders keys by date, then resource id. Locks are always taken in this order.
func (k DayKey) Less(o DayKey) bool {
	if k.Date != o.Date {
		return k.Date < o.Date
	}
	return k.ResourceID < o.ResourceID
}

// DaySnapshot is a consistent copy of one resource-day.
type DaySnapshot struct {
	Key       DayKey           `json:"key"`
	Bookings  []Booking        `json:"bookings"`
	Conflicts []ConflictRecord `json:"conflicts"`
}

// Occupying returns the bookings holding their interval, in start order.
func (s DaySnapshot) Occupying() []Booking {
	out := make([]Booking, 0, len(s.Bookings))
	for _, b := range s.Bookings {
		if b.Status.Occupies() {
			out = append(out, b)
		}
	}
	return out
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	ResourceID string
	From       string
	To         string
	Statuses   []BookingStatus
}
