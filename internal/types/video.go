package types

import (
	"time"
	"github.com/google/uuid"
)

const (
	VideoStateUploading  = "uploading"
	VideoStateValidating = "validating"
	VideoStateProcessing = "processing"
	VideoStateIndexed    = "indexed"
	VideoStateFailed     = "failed"
	VideoStateDeleted    = "deleted"
)

// videoStateGraph lists the allowed forward transitions. Any state may
// additionally move to deleted on owner request.
var videoStateGraph = map[string][]string{
	VideoStateUploading:  {VideoStateValidating},
	VideoStateValidating: {VideoStateProcessing, VideoStateFailed},
	VideoStateProcessing: {VideoStateIndexed, VideoStateFailed},
}

func VideoStateTransitionAllowed(from, to string) bool {
	if to == VideoStateDeleted {
		return true
	}
	for _, next := range videoStateGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Video struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_video_owner_state" json:"owner_id"`
	StorageKey string     `gorm:"column:storage_key;not null" json:"storage_key"`
	MimeType   string     `gorm:"column:mime_type;not null" json:"mime_type"`
	SizeBytes  int64      `gorm:"column:size_bytes;not null" json:"size_bytes"`
	DurationS  *float64   `gorm:"column:duration_s" json:"duration_s,omitempty"`
	State      string     `gorm:"column:state;not null;default:'uploading';index:idx_video_owner_state" json:"state"`
	ErrorText  string     `gorm:"column:error_text" json:"error_text,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	IndexedAt  *time.Time `gorm:"column:indexed_at" json:"indexed_at,omitempty"`

	Metadata *VideoMetadata `gorm:"foreignKey:VideoID;references:ID" json:"metadata,omitempty"`
	Scenes   []Scene        `gorm:"foreignKey:VideoID;references:ID" json:"scenes,omitempty"`
}

func (Video) TableName() string { return "video" }
