package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-helpers/internal/gateway"
	"github.com/nulzo/model-helpers/internal/server/validator"
	"github.com/nulzo/model-helpers/pkg/api"
)

type AdaptHandler struct {
	service   gateway.Service
	validator *validator.Validator
}

func NewAdaptHandler(service gateway.Service, v *validator.Validator) *AdaptHandler {
	return &AdaptHandler{
		service:   service,
		validator: v,
	}
}

// Adapt shows what would be sent upstream without calling the provider.
// POST /v1/adapt
func (h *AdaptHandler) Adapt(c *gin.Context) {
	var req api.AdaptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	resp, err := h.service.Adapt(c.Request.Context(), &req)
	if err != nil {
		fail(c, "Failed to adapt request", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
