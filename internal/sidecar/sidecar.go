// Package sidecar builds the per-scene JSON export. Sidecars describe what
// was indexed and with which models, without carrying the vectors themselves.
package sidecar

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const SchemaVersion = "1.0"

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

type EmbeddingInfo struct {
	Model        string `json:"model"`
	Dimensions   int    `json:"dimensions"`
	HasEmbedding bool   `json:"has_embedding"`
}

type Embeddings struct {
	Text   EmbeddingInfo `json:"text"`
	Vision EmbeddingInfo `json:"vision"`
}

type Person struct {
	PersonID   uuid.UUID `json:"person_id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	FrameCount int       `json:"frame_count"`
}

type ProcessingInfo struct {
	ASRModel    string `json:"asr_model"`
	TextModel   string `json:"text_model"`
	VisionModel string `json:"vision_model"`
}

type Metadata struct {
	CreatedAt      time.Time      `json:"created_at"`
	Version        string         `json:"version"`
	ProcessingInfo ProcessingInfo `json:"processing_info"`
}

type Document struct {
	VideoID    uuid.UUID          `json:"video_id"`
	SceneID    uuid.UUID          `json:"scene_id"`
	StartS     float64            `json:"start_s"`
	EndS       float64            `json:"end_s"`
	DurationS  float64            `json:"duration_s"`
	Transcript Transcript         `json:"transcript"`
	Embeddings Embeddings         `json:"embeddings"`
	VisionTags map[string]float64 `json:"vision_tags,omitempty"`
	People     []Person           `json:"people"`
	Metadata   Metadata           `json:"metadata"`
}

// Key is the deterministic blob key for one scene's sidecar.
func Key(ownerID, videoID, sceneID uuid.UUID) string {
	return fmt.Sprintf("sidecars/%s/%s/%s.json", ownerID, videoID, sceneID)
}

func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil sidecar document")
	}
	if doc.Metadata.Version == "" {
		doc.Metadata.Version = SchemaVersion
	}
	return json.Marshal(doc)
}

func Decode(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	return &doc, nil
}
