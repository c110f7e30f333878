package sidecar

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	videoID := uuid.New()
	sceneID := uuid.New()
	personID := uuid.New()
	doc := &Document{
		VideoID:   videoID,
		SceneID:   sceneID,
		StartS:    1.25,
		EndS:      7.5,
		DurationS: 6.25,
		Transcript: Transcript{
			Text: "hello world",
			Segments: []Segment{
				{Start: 1.3, End: 3.0, Text: "hello"},
				{Start: 3.0, End: 7.2, Text: "world"},
			},
			Language: "en",
		},
		Embeddings: Embeddings{
			Text:   EmbeddingInfo{Model: "siglip2-so400m", Dimensions: 1152, HasEmbedding: true},
			Vision: EmbeddingInfo{Model: "siglip2-so400m", Dimensions: 1152, HasEmbedding: false},
		},
		VisionTags: map[string]float64{"outdoor": 0.82, "person": 0.91},
		People: []Person{
			{PersonID: personID, Name: "Ada", Confidence: 0.72, FrameCount: 1},
		},
		Metadata: Metadata{
			CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
			Version:   SchemaVersion,
			ProcessingInfo: ProcessingInfo{
				ASRModel:    "whisper-large-v3",
				TextModel:   "siglip2-so400m",
				VisionModel: "siglip2-so400m",
			},
		},
	}

	raw, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(doc, got) {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", doc, got)
	}
}

func TestEncodeDefaultsVersion(t *testing.T) {
	doc := &Document{VideoID: uuid.New(), SceneID: uuid.New()}
	raw, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Metadata.Version != SchemaVersion {
		t.Fatalf("version = %q, want %q", got.Metadata.Version, SchemaVersion)
	}
}

func TestKeyLayout(t *testing.T) {
	owner := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	video := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	scene := uuid.MustParse("33333333-3333-3333-3333-333333333333")
	key := Key(owner, video, scene)
	want := "sidecars/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/33333333-3333-3333-3333-333333333333.json"
	if key != want {
		t.Fatalf("Key = %q, want %q", key, want)
	}
	if !strings.HasSuffix(key, ".json") {
		t.Fatalf("Key missing .json suffix: %q", key)
	}
}
