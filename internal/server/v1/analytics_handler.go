package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-helpers/internal/analytics"
	"github.com/nulzo/model-helpers/pkg/api"
)

type AnalyticsHandler struct {
	service analytics.Service
}

func NewAnalyticsHandler(service analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// GetUsage returns ledger aggregates.
// GET /v1/usage?days=N
func (h *AnalyticsHandler) GetUsage(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil {
		_ = c.Error(api.BadRequestError("Invalid 'days' parameter"))
		return
	}

	report, err := h.service.GetUsageOverview(c.Request.Context(), days)
	if err != nil {
		fail(c, "Failed to fetch analytics", err)
		return
	}

	c.JSON(http.StatusOK, report)
}
