package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/types"
)

type ScenePersonRepo interface {
  BulkCreate(ctx context.Context, tx *gorm.DB, links []*types.ScenePerson) error
  ListByScene(ctx context.Context, tx *gorm.DB, sceneID uuid.UUID) ([]*types.ScenePerson, error)
  ListByScenes(ctx context.Context, tx *gorm.DB, sceneIDs []uuid.UUID) ([]*types.ScenePerson, error)
}

type scenePersonRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewScenePersonRepo(db *gorm.DB, baseLog *logger.Logger) ScenePersonRepo {
  return &scenePersonRepo{db: db, log: baseLog.With("repo", "ScenePersonRepo")}
}

func (r *scenePersonRepo) BulkCreate(ctx context.Context, tx *gorm.DB, links []*types.ScenePerson) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(links) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "scene_id"}, {Name: "person_id"}},
      UpdateAll: true,
    }).
    Create(&links).Error
}

func (r *scenePersonRepo) ListByScene(ctx context.Context, tx *gorm.DB, sceneID uuid.UUID) ([]*types.ScenePerson, error) {
  return r.ListByScenes(ctx, tx, []uuid.UUID{sceneID})
}

func (r *scenePersonRepo) ListByScenes(ctx context.Context, tx *gorm.DB, sceneIDs []uuid.UUID) ([]*types.ScenePerson, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.ScenePerson
  if len(sceneIDs) == 0 {
    return out, nil
  }
  if err := transaction.WithContext(ctx).
    Where("scene_id IN ?", sceneIDs).
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}
