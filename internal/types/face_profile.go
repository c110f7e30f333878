package types

import (
	"time"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// FaceProfile holds an enrolled person for one owner. A profile with photos
// but a nil centroid is still enrolling (or enrollment failed; see ErrorText).
type FaceProfile struct {
	ID          uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID     uuid.UUID        `gorm:"type:uuid;not null;index:idx_face_profile_owner_name,unique" json:"owner_id"`
	Name        string           `gorm:"column:name;not null;index:idx_face_profile_owner_name,unique" json:"name"`
	CentroidVec *pgvector.Vector `gorm:"column:centroid_vec;type:vector(512)" json:"-"`
	PhotoKeys   datatypes.JSON   `gorm:"column:photo_keys;type:jsonb" json:"photo_keys,omitempty"`
	ErrorText   string           `gorm:"column:error_text" json:"error_text,omitempty"`
	CreatedAt   time.Time        `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"not null;default:now()" json:"updated_at"`
}

func (FaceProfile) TableName() string { return "face_profile" }
