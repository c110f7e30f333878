package main

import (
  "fmt"
  "os"
  "github.com/yungbote/scenedex-backend/internal/config"
  "github.com/yungbote/scenedex-backend/internal/db"
  "github.com/yungbote/scenedex-backend/internal/handlers"
  "github.com/yungbote/scenedex-backend/internal/inference/client"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/middleware"
  "github.com/yungbote/scenedex-backend/internal/repos"
  "github.com/yungbote/scenedex-backend/internal/search"
  "github.com/yungbote/scenedex-backend/internal/server"
  "github.com/yungbote/scenedex-backend/internal/services"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  cfg := config.Load(log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(cfg.Features.ANNTuning); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  videoRepo := repos.NewVideoRepo(thePG, log)
  videoMetadataRepo := repos.NewVideoMetadataRepo(thePG, log)
  sceneRepo := repos.NewSceneRepo(thePG, log)
  faceProfileRepo := repos.NewFaceProfileRepo(thePG, log)
  jobRepo := repos.NewJobRepo(thePG, log)
  jobRunRepo := repos.NewJobRunRepo(thePG, log)

  // Services
  log.Info("Setting up Services from main...")
  bucketService, err := services.NewBucketService(log, cfg.UploadBucket, cfg.ThumbnailBucket, cfg.SidecarBucket)
  if err != nil {
    log.Error("Could not init BucketService", "error", err)
    os.Exit(1)
  }
  authService := services.NewAuthService(log, cfg.JWTSecretKey)
  notifier, err := services.NewRedisJobNotifier(log)
  if err != nil {
    log.Warn("Redis notifier unavailable, job events are dropped", "error", err)
    notifier = services.NoopJobNotifier{}
  }
  inferenceClient, err := client.NewFromEnv()
  if err != nil {
    log.Error("Could not init inference client", "error", err)
    os.Exit(1)
  }

  // Search
  searchEngine := search.NewEngine(thePG, log, cfg, inferenceClient)

  // Handlers
  log.Info("Setting up Handlers from main...")
  videoHandler := handlers.NewVideoHandler(log, cfg, videoRepo, videoMetadataRepo, sceneRepo, jobRepo, jobRunRepo, bucketService, notifier)
  searchHandler := handlers.NewSearchHandler(log, cfg, searchEngine, bucketService)
  peopleHandler := handlers.NewPeopleHandler(log, cfg, faceProfileRepo, jobRunRepo, bucketService, notifier)

  // Middleware
  log.Info("Setting up middleware from main...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    AllowedOrigin:  cfg.AllowedOrigin,
    AuthMiddleware: authMiddleware,
    VideoHandler:   videoHandler,
    SearchHandler:  searchHandler,
    PeopleHandler:  peopleHandler,
  })

  fmt.Printf("Server listening on :%s\n", cfg.Port)
  if err := router.Run(":" + cfg.Port); err != nil {
    log.Error("Server failed", "error", err)
  }
}
