package dto

import (
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// DecisionRequest accepts or rejects one candidate of a pending resolution.
type DecisionRequest struct {
	Verdict        models.DecisionVerdict `json:"verdict" validate:"required,oneof=accept reject"`
	CandidateIndex int                    `json:"candidateIndex" validate:"min=0"`
	Note           string                 `json:"note" validate:"max=500"`
}

// ProposedBooking is one entry of a what-if detection batch.
type ProposedBooking struct {
	ID         string        `json:"id"`
	ResourceID string        `json:"resourceId" validate:"required"`
	ServiceID  string        `json:"serviceId"`
	Date       string        `json:"date" validate:"required,datetime=2006-01-02"`
	Start      *models.Minute `json:"start" validate:"required"`
	Duration   int           `json:"durationMinutes" validate:"required,min=1,max=1440"`
	Confirmed  bool          `json:"confirmed"`
	Paid       bool          `json:"paid"`
}

// DetectRequest runs the conflict detector on a proposed set without committing it.
type DetectRequest struct {
	Bookings []ProposedBooking `json:"bookings" validate:"required,min=1,max=500,dive"`
}

// Models converts the proposed set into bookings for the detector.
func (r DetectRequest) Models() []models.Booking {
	out := make([]models.Booking, 0, len(r.Bookings))
	for _, p := range r.Bookings {
		if p.Start == nil {
			continue
		}
		status := models.BookingTentative
		if p.Confirmed {
			status = models.BookingConfirmed
		}
		out = append(out, models.Booking{
			ID:         p.ID,
			ResourceID: p.ResourceID,
			ServiceID:  p.ServiceID,
			Date:       p.Date,
			Interval:   models.NewInterval(*p.Start, p.Duration),
			Status:     status,
			Paid:       p.Paid,
		})
	}
	return out
}

// DateRangeRequest selects an inclusive span of dates.
type DateRangeRequest struct {
	From string `json:"from" form:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" form:"to" validate:"required,datetime=2006-01-02"`
}
