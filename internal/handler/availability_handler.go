package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/middleware"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type availabilityService interface {
	FreeSlots(ctx context.Context, resourceID, date string, durationMinutes int) ([]models.Slot, error)
	FreeSlotsForService(ctx context.Context, resourceID, date, serviceID string) ([]models.Slot, error)
	Day(ctx context.Context, resourceID, date string) (*models.DayAvailability, error)
}

// AvailabilityHandler exposes free-slot queries.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds a new handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// FreeSlots godoc
// @Summary List free slots of a resource on a date
// @Tags Availability
// @Produce json
// @Param id path string true "Resource ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param serviceId query string false "Service whose duration is requested"
// @Param duration query int false "Duration in minutes when no serviceId is given"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/availability [get]
func (h *AvailabilityHandler) FreeSlots(c *gin.Context) {
	date, ok := requiredQuery(c, "date")
	if !ok {
		return
	}
	resourceID := c.Param("id")

	var (
		slots []models.Slot
		err   error
	)
	if serviceID := c.Query("serviceId"); serviceID != "" {
		slots, err = h.service.FreeSlotsForService(c.Request.Context(), resourceID, date, serviceID)
	} else {
		duration, convErr := strconv.Atoi(c.Query("duration"))
		if convErr != nil || duration <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "serviceId or a positive duration is required"))
			return
		}
		slots, err = h.service.FreeSlots(c.Request.Context(), resourceID, date, duration)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(slots))
	response.JSON(c, http.StatusOK, slots, nil, middleware.ExtractMeta(c))
}

// Day godoc
// @Summary Describe a resource-day
// @Description Windows, breaks, fatigue blocks, bookings and free slots of one resource-day.
// @Tags Availability
// @Produce json
// @Param id path string true "Resource ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/days/{date} [get]
func (h *AvailabilityHandler) Day(c *gin.Context) {
	day, err := h.service.Day(c.Request.Context(), c.Param("id"), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, day, nil)
}
