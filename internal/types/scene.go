package types

import (
	"time"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Scene is one temporally bounded sub-interval of an indexed video. Rows for
// a video are inserted together in one transaction; afterwards only
// thumbnail_key, sidecar_key and the embedding columns may change.
type Scene struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VideoID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"video_id"`
	StartS       float64          `gorm:"column:start_s;not null" json:"start_s"`
	EndS         float64          `gorm:"column:end_s;not null" json:"end_s"`
	Transcript   *string          `gorm:"column:transcript" json:"transcript,omitempty"`
	TextVec      *pgvector.Vector `gorm:"column:text_vec;type:vector(1152)" json:"-"`
	ImageVec     *pgvector.Vector `gorm:"column:image_vec;type:vector(1152)" json:"-"`
	VisionTags   datatypes.JSON   `gorm:"column:vision_tags;type:jsonb" json:"vision_tags,omitempty"`
	ThumbnailKey string           `gorm:"column:thumbnail_key" json:"thumbnail_key,omitempty"`
	SidecarKey   string           `gorm:"column:sidecar_key" json:"sidecar_key,omitempty"`
	CreatedAt    time.Time        `gorm:"not null;default:now()" json:"created_at"`
}

func (Scene) TableName() string { return "scene" }
