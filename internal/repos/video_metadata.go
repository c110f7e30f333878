package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/types"
)

type VideoMetadataRepo interface {
  Upsert(ctx context.Context, tx *gorm.DB, meta *types.VideoMetadata) error
  GetByVideoID(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) (*types.VideoMetadata, error)
}

type videoMetadataRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewVideoMetadataRepo(db *gorm.DB, baseLog *logger.Logger) VideoMetadataRepo {
  return &videoMetadataRepo{db: db, log: baseLog.With("repo", "VideoMetadataRepo")}
}

func (r *videoMetadataRepo) Upsert(ctx context.Context, tx *gorm.DB, meta *types.VideoMetadata) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if meta == nil || meta.VideoID == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "video_id"}},
      UpdateAll: true,
    }).
    Create(meta).Error
}

func (r *videoMetadataRepo) GetByVideoID(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) (*types.VideoMetadata, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var meta types.VideoMetadata
  err := transaction.WithContext(ctx).
    Where("video_id = ?", videoID).
    Limit(1).
    Find(&meta).Error
  if err != nil {
    return nil, err
  }
  if meta.VideoID == uuid.Nil {
    return nil, nil
  }
  return &meta, nil
}
