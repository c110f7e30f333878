package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/types"
)

type FaceProfileRepo interface {
  Create(ctx context.Context, tx *gorm.DB, profile *types.FaceProfile) (*types.FaceProfile, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FaceProfile, error)
  GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*types.FaceProfile, error)
  ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.FaceProfile, error)
  ListEmbeddedByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.FaceProfile, error)
  NameExists(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, name string) (bool, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  Delete(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) error
}

type faceProfileRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewFaceProfileRepo(db *gorm.DB, baseLog *logger.Logger) FaceProfileRepo {
  return &faceProfileRepo{db: db, log: baseLog.With("repo", "FaceProfileRepo")}
}

func (r *faceProfileRepo) Create(ctx context.Context, tx *gorm.DB, profile *types.FaceProfile) (*types.FaceProfile, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if profile == nil {
    return nil, nil
  }
  if err := transaction.WithContext(ctx).Create(profile).Error; err != nil {
    return nil, err
  }
  return profile, nil
}

func (r *faceProfileRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FaceProfile, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var profile types.FaceProfile
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    Limit(1).
    Find(&profile).Error
  if err != nil {
    return nil, err
  }
  if profile.ID == uuid.Nil {
    return nil, nil
  }
  return &profile, nil
}

func (r *faceProfileRepo) GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*types.FaceProfile, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var profile types.FaceProfile
  err := transaction.WithContext(ctx).
    Where("id = ? AND owner_id = ?", id, ownerID).
    Limit(1).
    Find(&profile).Error
  if err != nil {
    return nil, err
  }
  if profile.ID == uuid.Nil {
    return nil, nil
  }
  return &profile, nil
}

func (r *faceProfileRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.FaceProfile, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.FaceProfile
  if err := transaction.WithContext(ctx).
    Where("owner_id = ?", ownerID).
    Order("created_at ASC").
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *faceProfileRepo) ListEmbeddedByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.FaceProfile, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.FaceProfile
  if err := transaction.WithContext(ctx).
    Where("owner_id = ? AND centroid_vec IS NOT NULL", ownerID).
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *faceProfileRepo) NameExists(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, name string) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  err := transaction.WithContext(ctx).
    Model(&types.FaceProfile{}).
    Where("owner_id = ? AND name = ?", ownerID, name).
    Count(&count).Error
  if err != nil {
    return false, err
  }
  return count > 0, nil
}

func (r *faceProfileRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.FaceProfile{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *faceProfileRepo) Delete(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Where("id = ? AND owner_id = ?", id, ownerID).
    Delete(&types.FaceProfile{}).Error
}
