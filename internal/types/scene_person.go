package types

import (
	"github.com/google/uuid"
)

type ScenePerson struct {
	SceneID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"scene_id"`
	PersonID   uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"person_id"`
	Confidence float64   `gorm:"column:confidence;not null" json:"confidence"`
	FrameCount int       `gorm:"column:frame_count;not null;default:1" json:"frame_count"`
}

func (ScenePerson) TableName() string { return "scene_person" }
