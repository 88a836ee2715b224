package server

import (
	"github.com/nulzo/model-helpers/internal/server/middleware"
	v1 "github.com/nulzo/model-helpers/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.ErrorHandler(s.logger))

	limiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger)

	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)

	api := s.router.Group("/v1")
	api.Use(limiter.Middleware())
	api.Use(middleware.Auth(s.config.Server.APIKeys))
	{
		chatHandler := v1.NewChatHandler(s.service, s.validator)
		api.POST("/chat/completions", chatHandler.CreateCompletion)

		adaptHandler := v1.NewAdaptHandler(s.service, s.validator)
		api.POST("/adapt", adaptHandler.Adapt)

		modelsHandler := v1.NewModelHandler(s.service, s.validator)
		api.GET("/models", modelsHandler.ListModels)
		api.GET("/models/:id", modelsHandler.GetModel)

		if s.analytics != nil {
			analyticsHandler := v1.NewAnalyticsHandler(s.analytics)
			api.GET("/usage", analyticsHandler.GetUsage)
		}
	}
}
