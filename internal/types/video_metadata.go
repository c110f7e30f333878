package types

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type VideoMetadata struct {
	VideoID     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"video_id"`
	Title       string         `gorm:"column:title" json:"title,omitempty"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	Tags        datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
}

func (VideoMetadata) TableName() string { return "video_metadata" }
