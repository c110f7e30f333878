package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "github.com/yungbote/scenedex-backend/internal/handlers"
  "github.com/yungbote/scenedex-backend/internal/middleware"
)

type RouterConfig struct {
  AllowedOrigin  string
  AuthMiddleware *middleware.AuthMiddleware
  VideoHandler   *handlers.VideoHandler
  SearchHandler  *handlers.SearchHandler
  PeopleHandler  *handlers.PeopleHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      cfg.AllowedOrigin,
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)

// ===============
// || Protected ||
// ===============
  api := router.Group("/api")
  api.Use(cfg.AuthMiddleware.RequireAuth())
  // Videos
  api.POST("/videos/upload/init", cfg.VideoHandler.InitUpload)
  api.POST("/videos/upload/complete", cfg.VideoHandler.CompleteUpload)
  api.GET("/videos", cfg.VideoHandler.List)
  api.GET("/videos/:id", cfg.VideoHandler.Get)
  api.GET("/videos/:id/status", cfg.VideoHandler.Status)
  api.DELETE("/videos/:id", cfg.VideoHandler.Delete)
  // Search
  api.GET("/search", cfg.SearchHandler.Search)
  api.GET("/search/semantic", cfg.SearchHandler.Semantic)
  api.GET("/search/hybrid", cfg.SearchHandler.Hybrid)
  // People
  api.POST("/people", cfg.PeopleHandler.Create)
  api.POST("/people/:id/photos", cfg.PeopleHandler.Photos)
  api.POST("/people/:id/photos/complete", cfg.PeopleHandler.Complete)
  api.GET("/people", cfg.PeopleHandler.List)
  api.GET("/people/:id", cfg.PeopleHandler.Get)
  api.DELETE("/people/:id", cfg.PeopleHandler.Delete)

  return router
}
