package db

import (
  "fmt"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  "github.com/yungbote/scenedex-backend/internal/types"
  "github.com/yungbote/scenedex-backend/internal/utils"
  "github.com/yungbote/scenedex-backend/internal/logger"
)

type PostgresService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  log.Info("Loading environment variables...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "scenedex", log)
  log.Debug("Environment variables loaded")

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  log.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
  }

  if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
    log.Error("Failed to enable uuid-ossp extension", "error", err)
    return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
  }
  if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
    log.Error("Failed to enable vector extension", "error", err)
    return nil, fmt.Errorf("Failed to enable vector extension: %w", err)
  }
  log.Info("uuid-ossp and vector extensions enabled")

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll(annTuning bool) error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.Video{},
    &types.VideoMetadata{},
    &types.Scene{},
    &types.ScenePerson{},
    &types.FaceProfile{},
    &types.Job{},
    &types.JobRun{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }
  s.log.Info("Configuring foreign key relationships for postgres tables...")
  fks := []struct {
    name string
    ddl  string
  }{
    {"fk_video_metadata_video_id", `
      ALTER TABLE "video_metadata"
      ADD CONSTRAINT "fk_video_metadata_video_id"
      FOREIGN KEY ("video_id")
      REFERENCES "video"("id")
      ON DELETE CASCADE
    `},
    {"fk_scene_video_id", `
      ALTER TABLE "scene"
      ADD CONSTRAINT "fk_scene_video_id"
      FOREIGN KEY ("video_id")
      REFERENCES "video"("id")
      ON DELETE CASCADE
    `},
    {"fk_scene_person_scene_id", `
      ALTER TABLE "scene_person"
      ADD CONSTRAINT "fk_scene_person_scene_id"
      FOREIGN KEY ("scene_id")
      REFERENCES "scene"("id")
      ON DELETE CASCADE
    `},
    {"fk_scene_person_person_id", `
      ALTER TABLE "scene_person"
      ADD CONSTRAINT "fk_scene_person_person_id"
      FOREIGN KEY ("person_id")
      REFERENCES "face_profile"("id")
      ON DELETE CASCADE
    `},
    {"fk_job_video_id", `
      ALTER TABLE "job"
      ADD CONSTRAINT "fk_job_video_id"
      FOREIGN KEY ("video_id")
      REFERENCES "video"("id")
      ON DELETE CASCADE
    `},
  }
  for _, fk := range fks {
    if err := s.db.Exec(fmt.Sprintf(`
      DO $$ BEGIN
        IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
          %s;
        END IF;
      END $$;
    `, fk.name, fk.ddl)).Error; err != nil {
      return fmt.Errorf("Failed to add %s: %w", fk.name, err)
    }
  }

  s.log.Info("Configuring full-text and vector indexes...")
  if err := s.db.Exec(`
    ALTER TABLE "scene"
    ADD COLUMN IF NOT EXISTS "tsv" tsvector
    GENERATED ALWAYS AS (to_tsvector('english', coalesce("transcript", ''))) STORED
  `).Error; err != nil {
    return fmt.Errorf("Failed to add scene.tsv column: %w", err)
  }
  if err := s.db.Exec(`CREATE INDEX IF NOT EXISTS "idx_scene_tsv" ON "scene" USING GIN ("tsv")`).Error; err != nil {
    return fmt.Errorf("Failed to create idx_scene_tsv: %w", err)
  }
  if err := s.db.Exec(`CREATE INDEX IF NOT EXISTS "idx_scene_vision_tags" ON "scene" USING GIN ("vision_tags")`).Error; err != nil {
    return fmt.Errorf("Failed to create idx_scene_vision_tags: %w", err)
  }
  if annTuning {
    hnsw := []struct {
      name string
      ddl  string
    }{
      {"idx_scene_text_vec_hnsw", `CREATE INDEX IF NOT EXISTS "idx_scene_text_vec_hnsw" ON "scene" USING hnsw ("text_vec" vector_cosine_ops) WITH (m = 16, ef_construction = 64)`},
      {"idx_scene_image_vec_hnsw", `CREATE INDEX IF NOT EXISTS "idx_scene_image_vec_hnsw" ON "scene" USING hnsw ("image_vec" vector_cosine_ops) WITH (m = 16, ef_construction = 64)`},
      {"idx_face_profile_centroid_hnsw", `CREATE INDEX IF NOT EXISTS "idx_face_profile_centroid_hnsw" ON "face_profile" USING hnsw ("centroid_vec" vector_cosine_ops) WITH (m = 16, ef_construction = 64)`},
    }
    for _, ix := range hnsw {
      if err := s.db.Exec(ix.ddl).Error; err != nil {
        return fmt.Errorf("Failed to create %s: %w", ix.name, err)
      }
    }
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
