package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type waitlistService interface {
	List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, error)
	Get(ctx context.Context, id string) (*models.WaitlistEntry, error)
	Sweep(ctx context.Context) (*models.SweepReport, error)
	Accept(ctx context.Context, id string) (*models.WaitlistEntry, *models.Booking, error)
	Decline(ctx context.Context, id string) (*models.WaitlistEntry, error)
}

// WaitlistHandler exposes the ranked waitlist and offer responses.
type WaitlistHandler struct {
	service waitlistService
}

// NewWaitlistHandler builds a new handler.
func NewWaitlistHandler(service waitlistService) *WaitlistHandler {
	return &WaitlistHandler{service: service}
}

// List godoc
// @Summary List waitlist entries in rank order
// @Tags Waitlist
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param customerId query string false "Customer filter"
// @Success 200 {object} response.Envelope
// @Router /waitlist [get]
func (h *WaitlistHandler) List(c *gin.Context) {
	filter := models.WaitlistFilter{CustomerID: c.Query("customerId")}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.WaitlistStatus(strings.TrimSpace(part))
			switch status {
			case models.WaitlistWaiting, models.WaitlistOffered, models.WaitlistBooked, models.WaitlistCancelled, models.WaitlistExpired:
				filter.Statuses = append(filter.Statuses, status)
			default:
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status filter"))
				return
			}
		}
	}
	entries, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Get godoc
// @Summary Get a waitlist entry
// @Tags Waitlist
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id} [get]
func (h *WaitlistHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Sweep godoc
// @Summary Run a waitlist pass now
// @Tags Waitlist
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /waitlist/sweep [post]
func (h *WaitlistHandler) Sweep(c *gin.Context) {
	report, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Accept godoc
// @Summary Accept an outstanding offer
// @Tags Waitlist
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/accept [post]
func (h *WaitlistHandler) Accept(c *gin.Context) {
	entry, booking, err := h.service.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"entry": entry, "booking": booking}, nil)
}

// Decline godoc
// @Summary Decline an outstanding offer
// @Tags Waitlist
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/decline [post]
func (h *WaitlistHandler) Decline(c *gin.Context) {
	entry, err := h.service.Decline(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
