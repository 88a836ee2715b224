package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-helpers/internal/gateway"
	"github.com/nulzo/model-helpers/internal/server/validator"
	"github.com/nulzo/model-helpers/pkg/api"
)

type ChatHandler struct {
	service   gateway.Service
	validator *validator.Validator
}

func NewChatHandler(service gateway.Service, v *validator.Validator) *ChatHandler {
	return &ChatHandler{
		service:   service,
		validator: v,
	}
}

// CreateCompletion adapts the request to the target model and forwards it.
// POST /v1/chat/completions
func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	resp, err := h.service.Chat(c.Request.Context(), &req)
	if err != nil {
		fail(c, "Failed to process chat request", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
