package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-helpers/internal/analytics"
	"github.com/nulzo/model-helpers/internal/config"
	"github.com/nulzo/model-helpers/internal/gateway"
	"github.com/nulzo/model-helpers/internal/server/middleware"
	"github.com/nulzo/model-helpers/internal/server/validator"
	"go.uber.org/zap"
)

type Server struct {
	router    *gin.Engine
	config    *config.Config
	logger    *zap.Logger
	service   gateway.Service
	analytics analytics.Service
	validator *validator.Validator
}

func New(cfg *config.Config, logger *zap.Logger, service gateway.Service, stats analytics.Service) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(middleware.Recovery(logger))
	engine.Use(middleware.Identity())
	engine.Use(middleware.Logger(logger))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}

	s := &Server{
		router:    engine,
		service:   service,
		analytics: stats,
		logger:    logger,
		config:    cfg,
		validator: validator.New(),
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
