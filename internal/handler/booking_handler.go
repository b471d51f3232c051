package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/dto"
	"github.com/reconsumeralization/modernmen-sub011/internal/middleware"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/internal/service"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/logger"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type bookingService interface {
	Submit(ctx context.Context, req models.PlacementRequest) (*service.PlacementResult, error)
	SubmitBatch(ctx context.Context, reqs []models.PlacementRequest) ([]service.PlacementResult, []error)
	Direct(ctx context.Context, in service.DirectBooking) (*service.PlacementResult, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	Confirm(ctx context.Context, id string) (*models.Booking, error)
	Cancel(ctx context.Context, id, reason string) (*models.Booking, error)
	Complete(ctx context.Context, id string) (*models.Booking, error)
}

// BookingHandler exposes booking intake and lifecycle endpoints.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler builds a new handler.
func NewBookingHandler(service bookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

func writePlacement(c *gin.Context, result *service.PlacementResult) {
	middleware.SetMeta(c, "outcome", result.Outcome)
	if result.Outcome == service.ResultPlaced {
		response.JSON(c, http.StatusCreated, result, nil, middleware.ExtractMeta(c))
		return
	}
	response.Accepted(c, result, middleware.ExtractMeta(c))
}

// Submit godoc
// @Summary Place a booking request
// @Description Places the request at the best feasible slot or adds it to the waitlist.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param X-Customer-ID header string false "Customer identifier"
// @Param payload body dto.BookingRequest true "Booking request"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Submit(c *gin.Context) {
	var req dto.BookingRequest
	if !bindJSON(c, &req, "booking") {
		return
	}
	placement := req.ToPlacement(c.GetHeader(logger.CustomerHeader))
	if placement.CustomerID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "customerId is required"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), placement)
	if err != nil {
		response.Error(c, err)
		return
	}
	writePlacement(c, result)
}

// SubmitBatch godoc
// @Summary Place a batch of booking requests
// @Description Requests are placed by urgency then arrival; results keep input order.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.BatchBookingRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Router /bookings/batch [post]
func (h *BookingHandler) SubmitBatch(c *gin.Context) {
	var req dto.BatchBookingRequest
	if !bindJSON(c, &req, "batch") {
		return
	}
	customer := c.GetHeader(logger.CustomerHeader)
	placements := make([]models.PlacementRequest, len(req.Requests))
	for i, r := range req.Requests {
		placements[i] = r.ToPlacement(customer)
	}
	results, errs := h.service.SubmitBatch(c.Request.Context(), placements)

	items := make([]dto.BatchItem, len(results))
	failed := 0
	for i := range results {
		items[i] = dto.BatchItem{Index: i}
		if errs[i] != nil {
			failed++
			items[i].Error = appErrors.FromError(errs[i])
			continue
		}
		result := results[i]
		items[i].Result = &result
	}
	middleware.SetMeta(c, "failed", failed)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Direct godoc
// @Summary Record a front-desk booking
// @Description Records the booking as asked; an overlap is reported as a conflict instead of rejected.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.DirectBookingRequest true "Direct booking"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /bookings/direct [post]
func (h *BookingHandler) Direct(c *gin.Context) {
	var req dto.DirectBookingRequest
	if !bindJSON(c, &req, "direct booking") {
		return
	}
	result, err := h.service.Direct(c.Request.Context(), service.DirectBooking{
		CustomerID:   req.CustomerID,
		ServiceID:    req.ServiceID,
		ResourceID:   req.ResourceID,
		Date:         req.Date,
		Start:        *req.Start,
		Confirmed:    req.Confirmed,
		Paid:         req.Paid,
		Urgency:      req.Urgency,
		CustomerTier: req.CustomerTier,
		Flexibility:  req.FlexibilityModel(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	writePlacement(c, result)
}

// Get godoc
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Confirm godoc
// @Summary Confirm a tentative booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c *gin.Context) {
	booking, err := h.service.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req dto.CancelBookingRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "cancel") {
		return
	}
	booking, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Complete godoc
// @Summary Mark a booking completed
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/complete [post]
func (h *BookingHandler) Complete(c *gin.Context) {
	booking, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}
