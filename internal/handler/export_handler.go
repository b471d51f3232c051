package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/service"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type exportService interface {
	ExportRoster(ctx context.Context, resourceID, date, format, delivery string) (*service.ExportResult, error)
	OpenDownload(token string) (*os.File, string, error)
	ContentTypeFor(name string) string
}

// ExportHandler renders resource-day rosters and serves signed downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler builds a new handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Roster godoc
// @Summary Export a resource-day roster
// @Description Inline delivery returns the file; link delivery returns a signed download URL.
// @Tags Exports
// @Produce json,text/csv,text/calendar,application/pdf
// @Param resourceId path string true "Resource ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv, pdf or ics"
// @Param delivery query string false "inline or link"
// @Success 200 {file} binary
// @Success 201 {object} response.Envelope
// @Router /calendar/{resourceId}/{date}/export [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	result, err := h.service.ExportRoster(c.Request.Context(), c.Param("resourceId"), c.Param("date"), c.Query("format"), c.Query("delivery"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.URL != "" {
		response.Created(c, gin.H{
			"url":       result.URL,
			"format":    result.Format,
			"expiresAt": result.ExpiresAt,
		})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

// Download godoc
// @Summary Download an export via its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.service.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(name)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), h.service.ContentTypeFor(name), file, nil)
}
