package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/dto"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type conflictService interface {
	List(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ConflictRecord, error)
	Ignore(ctx context.Context, id, operatorID string) (*models.ConflictRecord, error)
	DetectProposed(ctx context.Context, proposed []models.Booking) ([]models.ConflictRecord, error)
}

type conflictResolver interface {
	Resolve(ctx context.Context, conflictID string) (*models.Resolution, error)
}

// ConflictHandler exposes conflict listing, what-if detection and operator actions.
type ConflictHandler struct {
	service  conflictService
	resolver conflictResolver
}

// NewConflictHandler builds a new handler.
func NewConflictHandler(service conflictService, resolver conflictResolver) *ConflictHandler {
	return &ConflictHandler{service: service, resolver: resolver}
}

// List godoc
// @Summary List conflict records
// @Tags Conflicts
// @Produce json
// @Param status query string false "open, resolved or ignored"
// @Param resourceId query string false "Resource filter"
// @Param date query string false "Date filter (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /conflicts [get]
func (h *ConflictHandler) List(c *gin.Context) {
	filter := models.ConflictFilter{
		Status:     models.ConflictStatus(c.Query("status")),
		ResourceID: c.Query("resourceId"),
		Date:       c.Query("date"),
	}
	switch filter.Status {
	case "", models.ConflictOpen, models.ConflictResolved, models.ConflictIgnored:
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status filter"))
		return
	}
	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.PageSize, _ = strconv.Atoi(c.Query("pageSize"))

	records, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get a conflict record
// @Tags Conflicts
// @Produce json
// @Param id path string true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id} [get]
func (h *ConflictHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Detect godoc
// @Summary Detect conflicts in a proposed booking set
// @Description Runs the detector against the current calendar plus the proposals without committing anything.
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.DetectRequest true "Proposed bookings"
// @Success 200 {object} response.Envelope
// @Router /conflicts/detect [post]
func (h *ConflictHandler) Detect(c *gin.Context) {
	var req dto.DetectRequest
	if !bindJSON(c, &req, "detection") {
		return
	}
	records, err := h.service.DetectProposed(c.Request.Context(), req.Models())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Ignore godoc
// @Summary Close a conflict without remediation
// @Tags Conflicts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/ignore [post]
func (h *ConflictHandler) Ignore(c *gin.Context) {
	claims, ok := operatorFromContext(c)
	if !ok {
		return
	}
	record, err := h.service.Ignore(c.Request.Context(), c.Param("id"), claims.OperatorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Resolve godoc
// @Summary Generate remediation candidates for an open conflict
// @Tags Conflicts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/resolve [post]
func (h *ConflictHandler) Resolve(c *gin.Context) {
	if h.resolver == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "resolver not configured"))
		return
	}
	resolution, err := h.resolver.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if resolution == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrConflict, "conflict is no longer open"))
		return
	}
	response.JSON(c, http.StatusOK, resolution, nil)
}
