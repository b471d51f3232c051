package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/internal/service"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type directoryService interface {
	Refresh(ctx context.Context) (*service.DirectoryRefreshResult, error)
	Resources(ctx context.Context) ([]models.Resource, error)
}

// DirectoryHandler exposes the staff and service directory.
type DirectoryHandler struct {
	service directoryService
}

// NewDirectoryHandler builds a new handler.
func NewDirectoryHandler(service directoryService) *DirectoryHandler {
	return &DirectoryHandler{service: service}
}

// Resources godoc
// @Summary List active resources
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /resources [get]
func (h *DirectoryHandler) Resources(c *gin.Context) {
	items, err := h.service.Resources(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Refresh godoc
// @Summary Reload the directory now
// @Description Changed resources trigger re-detection of their upcoming days and a waitlist sweep.
// @Tags Directory
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /directory/refresh [post]
func (h *DirectoryHandler) Refresh(c *gin.Context) {
	result, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
