package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/types"
)

type SceneRepo interface {
  BulkCreate(ctx context.Context, tx *gorm.DB, scenes []*types.Scene) ([]*types.Scene, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Scene, error)
  ListByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) ([]*types.Scene, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  DeleteByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) error
}

type sceneRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewSceneRepo(db *gorm.DB, baseLog *logger.Logger) SceneRepo {
  return &sceneRepo{db: db, log: baseLog.With("repo", "SceneRepo")}
}

func (r *sceneRepo) BulkCreate(ctx context.Context, tx *gorm.DB, scenes []*types.Scene) ([]*types.Scene, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(scenes) == 0 {
    return []*types.Scene{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&scenes).Error; err != nil {
    return nil, err
  }
  return scenes, nil
}

func (r *sceneRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Scene, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var scene types.Scene
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    Limit(1).
    Find(&scene).Error
  if err != nil {
    return nil, err
  }
  if scene.ID == uuid.Nil {
    return nil, nil
  }
  return &scene, nil
}

func (r *sceneRepo) ListByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) ([]*types.Scene, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.Scene
  if err := transaction.WithContext(ctx).
    Where("video_id = ?", videoID).
    Order("start_s ASC").
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *sceneRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.Scene{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *sceneRepo) DeleteByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if videoID == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Where("video_id = ?", videoID).
    Delete(&types.Scene{}).Error
}
