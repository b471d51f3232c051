package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/dto"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

type balancerService interface {
	Run(ctx context.Context, from, to string) (*models.BalanceReport, error)
	Utilization(ctx context.Context, from, to string) (*models.UtilizationReport, error)
}

// BalancerHandler exposes workload balancing and utilization reporting.
type BalancerHandler struct {
	service balancerService
}

// NewBalancerHandler builds a new handler.
func NewBalancerHandler(service balancerService) *BalancerHandler {
	return &BalancerHandler{service: service}
}

// Run godoc
// @Summary Rebalance flexible bookings across resources
// @Tags Balancer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.DateRangeRequest true "Date range"
// @Success 200 {object} response.Envelope
// @Router /balancer/run [post]
func (h *BalancerHandler) Run(c *gin.Context) {
	var req dto.DateRangeRequest
	if !bindJSON(c, &req, "balancer") {
		return
	}
	report, err := h.service.Run(c.Request.Context(), req.From, req.To)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Utilization godoc
// @Summary Report per resource-day utilization
// @Tags Balancer
// @Produce json
// @Param from query string true "First date (YYYY-MM-DD)"
// @Param to query string true "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /utilization [get]
func (h *BalancerHandler) Utilization(c *gin.Context) {
	from, ok := requiredQuery(c, "from")
	if !ok {
		return
	}
	to, ok := requiredQuery(c, "to")
	if !ok {
		return
	}
	report, err := h.service.Utilization(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
