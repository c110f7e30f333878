package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/types"
)

type JobRepo interface {
  Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  ListByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) ([]*types.Job, error)
}

type jobRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
  return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if job == nil {
    return nil, nil
  }
  if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
    return nil, err
  }
  return job, nil
}

func (r *jobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.Job{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *jobRepo) ListByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) ([]*types.Job, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.Job
  if err := transaction.WithContext(ctx).
    Where("video_id = ?", videoID).
    Order("started_at ASC NULLS LAST").
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}
