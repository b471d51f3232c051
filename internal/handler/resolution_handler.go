package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/dto"
	"github.com/reconsumeralization/modernmen-sub011/internal/middleware"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type resolutionService interface {
	Get(ctx context.Context, id string) (*models.Resolution, error)
	ListPending(ctx context.Context) ([]models.Resolution, error)
	Decide(ctx context.Context, id string, decision models.Decision) (*models.Resolution, error)
}

// ResolutionHandler is the operator review surface.
type ResolutionHandler struct {
	service resolutionService
}

// NewResolutionHandler builds a new handler.
func NewResolutionHandler(service resolutionService) *ResolutionHandler {
	return &ResolutionHandler{service: service}
}

// Pending godoc
// @Summary List resolutions awaiting review
// @Tags Resolutions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /resolutions/pending [get]
func (h *ResolutionHandler) Pending(c *gin.Context) {
	items, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a resolution
// @Tags Resolutions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resolution ID"
// @Success 200 {object} response.Envelope
// @Router /resolutions/{id} [get]
func (h *ResolutionHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Decide godoc
// @Summary Accept or reject a resolution candidate
// @Tags Resolutions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resolution ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /resolutions/{id}/decision [post]
func (h *ResolutionHandler) Decide(c *gin.Context) {
	claims, ok := operatorFromContext(c)
	if !ok {
		return
	}
	var req dto.DecisionRequest
	if !bindJSON(c, &req, "decision") {
		return
	}
	item, err := h.service.Decide(c.Request.Context(), c.Param("id"), models.Decision{
		Verdict:        req.Verdict,
		CandidateIndex: req.CandidateIndex,
		OperatorID:     claims.OperatorID,
		Note:           req.Note,
	})
	if req.Verdict == models.VerdictReject {
		middleware.SetAuditAction(c, models.AuditDecisionReject)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
