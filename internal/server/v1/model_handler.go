package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-helpers/internal/gateway"
	"github.com/nulzo/model-helpers/internal/server/validator"
	"github.com/nulzo/model-helpers/pkg/api"
)

type ModelHandler struct {
	service   gateway.Service
	validator *validator.Validator
}

func NewModelHandler(service gateway.Service, v *validator.Validator) *ModelHandler {
	return &ModelHandler{
		service:   service,
		validator: v,
	}
}

func (h *ModelHandler) ListModels(c *gin.Context) {
	var filter api.ModelFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	models, err := h.service.ListModels(c.Request.Context(), filter)
	if err != nil {
		fail(c, "Failed to list models", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   models,
	})
}

func (h *ModelHandler) GetModel(c *gin.Context) {
	m, err := h.service.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, "Failed to fetch model", err)
		return
	}

	c.JSON(http.StatusOK, m)
}
