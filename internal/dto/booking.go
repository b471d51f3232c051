package dto

import (
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// FlexibilityRequest bounds how far the engine may move a request.
type FlexibilityRequest struct {
	DateRangeDays        int     `json:"dateRangeDays" validate:"min=0,max=60"`
	TimeFlexibilityHours float64 `json:"timeFlexibilityHours" validate:"min=0,max=24"`
	ResourceFlexible     bool    `json:"resourceFlexible"`
}

func (f FlexibilityRequest) model() models.Flexibility {
	return models.Flexibility{
		DateRangeDays:        f.DateRangeDays,
		TimeFlexibilityHours: f.TimeFlexibilityHours,
		ResourceFlexible:     f.ResourceFlexible,
	}
}

// BookingRequest is the intake payload for POST /bookings.
type BookingRequest struct {
	RequestID           string              `json:"requestId"`
	CustomerID          string              `json:"customerId"`
	ServiceID           string              `json:"serviceId" validate:"required"`
	PreferredDate       string              `json:"preferredDate" validate:"required,datetime=2006-01-02"`
	PreferredTime       *models.Minute      `json:"preferredTime"`
	PreferredResourceID string              `json:"preferredResourceId"`
	Flexibility         FlexibilityRequest  `json:"flexibility"`
	Urgency             models.Urgency      `json:"urgency" validate:"omitempty,oneof=low normal high urgent"`
	CustomerTier        models.CustomerTier `json:"customerTier" validate:"omitempty,oneof=standard gold vip"`
	Paid                bool                `json:"paid"`
}

// ToPlacement converts the payload into an engine request. customerID fills an
// empty customerId from the request header.
func (r BookingRequest) ToPlacement(customerID string) models.PlacementRequest {
	if r.CustomerID != "" {
		customerID = r.CustomerID
	}
	return models.PlacementRequest{
		RequestID:           r.RequestID,
		CustomerID:          customerID,
		ServiceID:           r.ServiceID,
		PreferredDate:       r.PreferredDate,
		PreferredStart:      r.PreferredTime,
		PreferredResourceID: r.PreferredResourceID,
		Flexibility:         r.Flexibility.model(),
		Urgency:             r.Urgency,
		CustomerTier:        r.CustomerTier,
		Paid:                r.Paid,
	}
}

// BatchBookingRequest submits several requests that are placed in priority order.
type BatchBookingRequest struct {
	Requests []BookingRequest `json:"requests" validate:"required,min=1,max=200,dive"`
}

// BatchItem reports the outcome of one batch entry in input order.
type BatchItem struct {
	Index  int         `json:"index"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

// DirectBookingRequest records a front-desk booking at an explicit resource and time.
type DirectBookingRequest struct {
	CustomerID   string              `json:"customerId" validate:"required"`
	ServiceID    string              `json:"serviceId" validate:"required"`
	ResourceID   string              `json:"resourceId" validate:"required"`
	Date         string              `json:"date" validate:"required,datetime=2006-01-02"`
	Start        *models.Minute      `json:"start" validate:"required"`
	Confirmed    bool                `json:"confirmed"`
	Paid         bool                `json:"paid"`
	Urgency      models.Urgency      `json:"urgency" validate:"omitempty,oneof=low normal high urgent"`
	CustomerTier models.CustomerTier `json:"customerTier" validate:"omitempty,oneof=standard gold vip"`
	Flexibility  FlexibilityRequest  `json:"flexibility"`
}

// FlexibilityModel exposes the engine flexibility of a direct booking.
func (r DirectBookingRequest) FlexibilityModel() models.Flexibility {
	return r.Flexibility.model()
}

// CancelBookingRequest carries an optional cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}
