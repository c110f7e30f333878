package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatePending   = "pending"
	JobStateRunning   = "running"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
	JobStateCancelled = "cancelled"
)

// Job is the per-stage audit row surfaced on the video status endpoint.
// Pipeline control state lives on Video.State and the job_run queue, not here.
type Job struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VideoID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"video_id"`
	Stage      string         `gorm:"column:stage;not null" json:"stage"`
	State      string         `gorm:"column:state;not null;default:'pending'" json:"state"`
	Progress   float64        `gorm:"column:progress;not null;default:0" json:"progress"`
	ErrorText  string         `gorm:"column:error_text" json:"error_text,omitempty"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Metadata   datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (Job) TableName() string { return "job" }
