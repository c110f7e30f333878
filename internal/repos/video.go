package repos

import (
  "context"
  "fmt"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/types"
)

var ErrInvalidTransition = fmt.Errorf("video state transition not allowed")

type VideoRepo interface {
  Create(ctx context.Context, tx *gorm.DB, video *types.Video) (*types.Video, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Video, error)
  GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*types.Video, error)
  ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]*types.Video, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  TransitionState(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string, updates map[string]interface{}) error
  CountCreatedSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, since time.Time) (int64, error)
}

type videoRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
  return &videoRepo{db: db, log: baseLog.With("repo", "VideoRepo")}
}

func (r *videoRepo) Create(ctx context.Context, tx *gorm.DB, video *types.Video) (*types.Video, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if video == nil {
    return nil, nil
  }
  if err := transaction.WithContext(ctx).Create(video).Error; err != nil {
    return nil, err
  }
  return video, nil
}

func (r *videoRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Video, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var video types.Video
  err := transaction.WithContext(ctx).
    Preload("Metadata").
    Where("id = ?", id).
    Limit(1).
    Find(&video).Error
  if err != nil {
    return nil, err
  }
  if video.ID == uuid.Nil {
    return nil, nil
  }
  return &video, nil
}

func (r *videoRepo) GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*types.Video, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var video types.Video
  err := transaction.WithContext(ctx).
    Preload("Metadata").
    Where("id = ? AND owner_id = ?", id, ownerID).
    Limit(1).
    Find(&video).Error
  if err != nil {
    return nil, err
  }
  if video.ID == uuid.Nil {
    return nil, nil
  }
  return &video, nil
}

func (r *videoRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]*types.Video, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.Video
  q := transaction.WithContext(ctx).
    Preload("Metadata").
    Where("owner_id = ? AND state <> ?", ownerID, types.VideoStateDeleted).
    Order("created_at DESC")
  if limit > 0 {
    q = q.Limit(limit)
  }
  if offset > 0 {
    q = q.Offset(offset)
  }
  if err := q.Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *videoRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.Video{}).
    Where("id = ?", id).
    Updates(updates).Error
}

// TransitionState performs a guarded compare-and-set on the state column.
// The WHERE clause on the old state makes concurrent transitions race-safe.
func (r *videoRepo) TransitionState(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if !types.VideoStateTransitionAllowed(from, to) {
    return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
  }
  if updates == nil {
    updates = map[string]interface{}{}
  }
  updates["state"] = to
  res := transaction.WithContext(ctx).
    Model(&types.Video{}).
    Where("id = ? AND state = ?", id, from).
    Updates(updates)
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected == 0 {
    return fmt.Errorf("%w: video %s no longer in state %s", ErrInvalidTransition, id, from)
  }
  return nil
}

func (r *videoRepo) CountCreatedSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, since time.Time) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  err := transaction.WithContext(ctx).
    Model(&types.Video{}).
    Where("owner_id = ? AND created_at >= ? AND state <> ?", ownerID, since, types.VideoStateDeleted).
    Count(&count).Error
  if err != nil {
    return 0, err
  }
  return count, nil
}
