package repos

import (
  "context"
  "encoding/json"
  "errors"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/types"
)

type JobRunRepo interface {
  Enqueue(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, queueName, jobType string, payload map[string]interface{}, maxAttempts int) (*types.JobRun, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error)
  ClaimNextRunnable(ctx context.Context, tx *gorm.DB, queues []string, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, excludedStatus string, updates map[string]interface{}) error
  Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type jobRunRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
  return &jobRunRepo{
    db:  db,
    log: baseLog.With("repo", "JobRunRepo"),
  }
}

func (r *jobRunRepo) Enqueue(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, queueName, jobType string, payload map[string]interface{}, maxAttempts int) (*types.JobRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  raw, err := json.Marshal(payload)
  if err != nil {
    return nil, err
  }
  job := &types.JobRun{
    OwnerID:     ownerID,
    QueueName:   queueName,
    JobType:     jobType,
    Status:      types.JobRunStatusQueued,
    Stage:       "queued",
    Payload:     raw,
    MaxAttempts: maxAttempts,
  }
  if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
    return nil, err
  }
  return job, nil
}

func (r *jobRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var job types.JobRun
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    Limit(1).
    Find(&job).Error
  if err != nil {
    return nil, err
  }
  if job.ID == uuid.Nil {
    return nil, nil
  }
  return &job, nil
}

// ClaimNextRunnable picks up the oldest job that is queued, retryable after
// its backoff window, or running with a stale heartbeat, and marks it running
// in the same transaction. SKIP LOCKED keeps concurrent workers from
// claiming the same row.
func (r *jobRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, queues []string, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  now := time.Now()
  retryCutoff := now.Add(-retryDelay)
  staleCutoff := now.Add(-staleRunning)
  var claimed *types.JobRun
  err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
    var job types.JobRun
    q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
      Where(`
        (
          (status = ? AND (run_after IS NULL OR run_after <= ?))
          OR (
            status = ?
            AND attempts < max_attempts
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.JobRunStatusQueued, now, types.JobRunStatusFailed, retryCutoff, types.JobRunStatusRunning, staleCutoff).
      Order("created_at ASC")
    if len(queues) > 0 {
      q = q.Where("queue_name IN ?", queues)
    }
    qErr := q.First(&job).Error
    if errors.Is(qErr, gorm.ErrRecordNotFound) {
      return nil
    }
    if qErr != nil {
      return qErr
    }
    uErr := txx.Model(&types.JobRun{}).
      Where("id = ?", job.ID).
      Updates(map[string]interface{}{
        "status":       types.JobRunStatusRunning,
        "attempts":     gorm.Expr("attempts + 1"),
        "locked_at":    now,
        "heartbeat_at": now,
        "updated_at":   now,
      }).Error
    if uErr != nil {
      return uErr
    }
    job.Status = types.JobRunStatusRunning
    job.Attempts++
    claimed = &job
    return nil
  })
  if err != nil {
    return nil, err
  }
  return claimed, nil
}

func (r *jobRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  if updates == nil {
    updates = map[string]interface{}{}
  }
  if _, ok := updates["updated_at"]; !ok {
    updates["updated_at"] = time.Now()
  }
  return transaction.WithContext(ctx).
    Model(&types.JobRun{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, excludedStatus string, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  if updates == nil {
    updates = map[string]interface{}{}
  }
  if _, ok := updates["updated_at"]; !ok {
    updates["updated_at"] = time.Now()
  }
  return transaction.WithContext(ctx).
    Model(&types.JobRun{}).
    Where("id = ? AND status <> ?", id, excludedStatus).
    Updates(updates).Error
}

func (r *jobRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  now := time.Now()
  return transaction.WithContext(ctx).
    Model(&types.JobRun{}).
    Where("id = ? AND status = ?", id, types.JobRunStatusRunning).
    Updates(map[string]interface{}{
      "heartbeat_at": now,
      "updated_at":   now,
    }).Error
}
