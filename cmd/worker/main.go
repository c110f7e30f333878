package main

import (
  "context"
  "fmt"
  "os"
  "os/signal"
  "syscall"
  "github.com/yungbote/scenedex-backend/internal/config"
  "github.com/yungbote/scenedex-backend/internal/db"
  "github.com/yungbote/scenedex-backend/internal/inference/client"
  "github.com/yungbote/scenedex-backend/internal/jobs"
  "github.com/yungbote/scenedex-backend/internal/jobs/pipeline"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/repos"
  "github.com/yungbote/scenedex-backend/internal/services"
  "github.com/yungbote/scenedex-backend/internal/types"
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
  log.Info("Loading environment variables from worker...")
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
  log.Info("Setting up Repos from worker...")
  videoRepo := repos.NewVideoRepo(thePG, log)
  sceneRepo := repos.NewSceneRepo(thePG, log)
  scenePersonRepo := repos.NewScenePersonRepo(thePG, log)
  faceProfileRepo := repos.NewFaceProfileRepo(thePG, log)
  jobRepo := repos.NewJobRepo(thePG, log)
  jobRunRepo := repos.NewJobRunRepo(thePG, log)

  // Services
  log.Info("Setting up Services from worker...")
  bucketService, err := services.NewBucketService(log, cfg.UploadBucket, cfg.ThumbnailBucket, cfg.SidecarBucket)
  if err != nil {
    log.Error("Could not init BucketService", "error", err)
    os.Exit(1)
  }
  mediaTools := services.NewMediaToolsService(log)
  if err := mediaTools.AssertReady(context.Background()); err != nil {
    log.Error("Media tools not ready", "error", err)
    os.Exit(1)
  }
  var notifier services.JobNotifier
  notifier, err = services.NewRedisJobNotifier(log)
  if err != nil {
    log.Warn("Redis notifier unavailable, job events are dropped", "error", err)
    notifier = services.NoopJobNotifier{}
  }
  inferenceClient, err := client.NewFromEnv()
  if err != nil {
    log.Error("Could not init inference client", "error", err)
    os.Exit(1)
  }

  // Handlers
  log.Info("Registering job handlers...")
  registry := jobs.NewRegistry()
  videoPipeline := pipeline.NewVideoPipeline(
    thePG, log, cfg,
    videoRepo, sceneRepo, scenePersonRepo, faceProfileRepo, jobRepo,
    bucketService, mediaTools, inferenceClient,
  )
  if err := registry.Register(videoPipeline); err != nil {
    log.Error("Register VideoPipeline failed", "error", err)
    os.Exit(1)
  }
  faceEnrollment := pipeline.NewFaceEnrollment(thePG, log, cfg, faceProfileRepo, bucketService, inferenceClient)
  if err := registry.Register(faceEnrollment); err != nil {
    log.Error("Register FaceEnrollment failed", "error", err)
    os.Exit(1)
  }

  // Worker pool
  queues := []string{types.QueueVideoProcessing, types.QueueFaceProcessing}
  worker := jobs.NewWorker(thePG, log, jobRunRepo, registry, notifier, queues, cfg.WorkerConcurrency)

  ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()

  log.Info("Worker starting", "queues", queues, "concurrency", cfg.WorkerConcurrency)
  worker.Start(ctx)

  <-ctx.Done()
  log.Info("Worker shutting down")
  _ = notifier.Close()
}
