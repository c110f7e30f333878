package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/scenedex-backend/internal/config"
	"github.com/yungbote/scenedex-backend/internal/inference/client"
	"github.com/yungbote/scenedex-backend/internal/jobs"
	"github.com/yungbote/scenedex-backend/internal/logger"
	"github.com/yungbote/scenedex-backend/internal/repos"
	"github.com/yungbote/scenedex-backend/internal/services"
	"github.com/yungbote/scenedex-backend/internal/types"
)

func pgvectorTestVec() *pgvector.Vector {
	v := pgvector.NewVector([]float32{1, 0, 0})
	return &v
}

func testPipelineLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want StageKind
	}{
		{"nil", nil, StageOk},
		{"fatal media", &FatalMediaError{Class: ErrClassInvalidMedia, Reason: "too long"}, StageFatal},
		{"wrapped fatal media", fmt.Errorf("probe: %w", &FatalMediaError{Class: ErrClassMediaDecode, Reason: "bad"}), StageFatal},
		{"context canceled", context.Canceled, StageTransient},
		{"deadline", context.DeadlineExceeded, StageTransient},
		{"http 500", &client.HTTPError{StatusCode: 500, Message: "boom"}, StageTransient},
		{"http 503", &client.HTTPError{StatusCode: 503, Message: "busy"}, StageTransient},
		{"http 429", &client.HTTPError{StatusCode: 429, Message: "slow down"}, StageTransient},
		{"http 400", &client.HTTPError{StatusCode: 400, Message: "bad input"}, StageFatal},
		{"http 422", &client.HTTPError{StatusCode: 422, Message: "unprocessable"}, StageFatal},
		{"plain error", fmt.Errorf("something else"), StageFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunStageRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	res := runStage(context.Background(), stagePolicy{name: "x", maxRetries: 3}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &client.HTTPError{StatusCode: 500, Message: "flaky"}
		}
		return nil
	})
	if res.Kind != StageOk {
		t.Fatalf("kind = %v, want StageOk (reason %q)", res.Kind, res.Reason)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunStageFatalDoesNotRetry(t *testing.T) {
	calls := 0
	res := runStage(context.Background(), stagePolicy{name: "x", maxRetries: 3}, func(ctx context.Context) error {
		calls++
		return &FatalMediaError{Class: ErrClassInvalidMedia, Reason: "empty file"}
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if res.Kind != StageFatal {
		t.Fatalf("kind = %v, want StageFatal", res.Kind)
	}
	if res.Class != ErrClassInvalidMedia {
		t.Fatalf("class = %q, want %q", res.Class, ErrClassInvalidMedia)
	}
}

func TestRunStageSoftDegradeAfterExhaustedRetries(t *testing.T) {
	calls := 0
	res := runStage(context.Background(), stagePolicy{name: "asr", soft: true, maxRetries: 2}, func(ctx context.Context) error {
		calls++
		return &client.HTTPError{StatusCode: 503, Message: "down"}
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if res.Kind != StageSoftDegrade {
		t.Fatalf("kind = %v, want StageSoftDegrade", res.Kind)
	}
}

func TestRunStageHardTransientAfterExhaustedRetries(t *testing.T) {
	res := runStage(context.Background(), stagePolicy{name: "store", soft: false, maxRetries: 1}, func(ctx context.Context) error {
		return &client.HTTPError{StatusCode: 502, Message: "gateway"}
	})
	if res.Kind != StageTransient {
		t.Fatalf("kind = %v, want StageTransient", res.Kind)
	}
}

func TestSliceTranscriptOverlap(t *testing.T) {
	tr := &client.TranscribeResponse{
		Segments: []client.TranscriptSegment{
			{Start: 0, End: 2, Text: "alpha"},
			{Start: 2, End: 4, Text: "bravo"},
			{Start: 3.5, End: 6, Text: "charlie"},
			{Start: 8, End: 9, Text: "delta"},
		},
	}

	tests := []struct {
		name     string
		startS   float64
		endS     float64
		wantText string
		wantLen  int
	}{
		{"first scene", 0, 2, "alpha", 1},
		{"straddling segment counts in both", 2, 4, "bravo charlie", 2},
		{"second half of straddle", 4, 8, "charlie", 1},
		{"gap yields nothing", 6, 8, "", 0},
		{"tail", 8, 10, "delta", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, text := sliceTranscript(tr, tt.startS, tt.endS)
			if len(segs) != tt.wantLen {
				t.Fatalf("segments = %d, want %d", len(segs), tt.wantLen)
			}
			if text != tt.wantText {
				t.Fatalf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestSliceTranscriptNilTranscript(t *testing.T) {
	segs, text := sliceTranscript(nil, 0, 10)
	if segs != nil || text != "" {
		t.Fatalf("want empty result for nil transcript, got %v %q", segs, text)
	}
}

func TestTextEmbedInputFallbackChain(t *testing.T) {
	withTitle := &types.Video{Metadata: &types.VideoMetadata{Title: "  Beach Day  "}}
	noTitle := &types.Video{Metadata: &types.VideoMetadata{Title: "   "}}
	noMeta := &types.Video{}

	tests := []struct {
		name       string
		transcript string
		video      *types.Video
		want       string
	}{
		{"transcript wins", "people talking", withTitle, "people talking"},
		{"title fallback trimmed", "", withTitle, "Beach Day"},
		{"blank title skipped", "", noTitle, "untitled video"},
		{"no metadata", "", noMeta, "untitled video"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textEmbedInput(tt.transcript, tt.video); got != tt.want {
				t.Fatalf("textEmbedInput = %q, want %q", got, tt.want)
			}
		})
	}
}

// fakeMediaTools satisfies services.MediaToolsService; only ExtractAudio
// behavior is scripted.
type fakeMediaTools struct {
	extractErr error
}

func (f *fakeMediaTools) AssertReady(ctx context.Context) error { return nil }
func (f *fakeMediaTools) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	return 0, nil
}
func (f *fakeMediaTools) ExtractAudio(ctx context.Context, videoPath, outPath string, opts services.AudioExtractOptions) (string, error) {
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return outPath, nil
}
func (f *fakeMediaTools) DetectScenes(ctx context.Context, videoPath string, durationS, threshold float64) ([]services.SceneInterval, error) {
	return nil, nil
}
func (f *fakeMediaTools) ExtractFrameAt(ctx context.Context, videoPath string, atSeconds float64, outPath string) (string, error) {
	return outPath, nil
}
func (f *fakeMediaTools) MakeThumbnail(ctx context.Context, videoPath string, atSeconds float64, outPath string, opts services.ThumbnailOptions) (string, error) {
	return outPath, nil
}
func (f *fakeMediaTools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	return "", func() {}, nil
}
func (f *fakeMediaTools) NewScratchDir(ctx context.Context, prefix string) (string, func(), error) {
	return "", func() {}, nil
}

var _ services.MediaToolsService = (*fakeMediaTools)(nil)

// A broken audio track fails the video with media_decode instead of
// degrading into a transcript-less index.
func TestAudioExtractFailureIsFatalMediaDecode(t *testing.T) {
	p := &VideoPipeline{
		log:   testPipelineLogger(t),
		media: &fakeMediaTools{extractErr: fmt.Errorf("no audio stream")},
	}
	_, res := p.stageAudioExtract(context.Background(), "in.mp4", t.TempDir())
	if res.Kind != StageFatal {
		t.Fatalf("kind = %v, want StageFatal", res.Kind)
	}
	if res.Class != ErrClassMediaDecode {
		t.Fatalf("class = %q, want %q", res.Class, ErrClassMediaDecode)
	}
}

func TestAudioExtractTransientStaysRetryable(t *testing.T) {
	p := &VideoPipeline{
		log:   testPipelineLogger(t),
		media: &fakeMediaTools{extractErr: context.DeadlineExceeded},
	}
	_, res := p.stageAudioExtract(context.Background(), "in.mp4", t.TempDir())
	if res.Kind != StageTransient {
		t.Fatalf("kind = %v, want StageTransient", res.Kind)
	}
}

// Without the canonical flag the embed input is the raw transcript (with the
// title/placeholder fallback); with it, matched people fold in.
func TestSceneTextInputCanonicalGate(t *testing.T) {
	video := &types.Video{Metadata: &types.VideoMetadata{Title: "Beach Day"}}
	b := &sceneBuild{
		transcript: "hello world",
		people:     []personMatch{{name: "Ada"}},
	}

	plain := &VideoPipeline{cfg: config.Config{}}
	if got := plain.sceneTextInput(b, video); got != "hello world" {
		t.Fatalf("unflagged input = %q, want raw transcript", got)
	}
	empty := &sceneBuild{}
	if got := plain.sceneTextInput(empty, video); got != "Beach Day" {
		t.Fatalf("unflagged fallback = %q, want title", got)
	}

	canonical := &VideoPipeline{cfg: config.Config{
		CanonicalTopTags:   5,
		CanonicalMaxTokens: 64,
		Features:           config.Features{CanonicalTrim: true},
	}}
	got := canonical.sceneTextInput(b, video)
	if !strings.Contains(got, "hello world") || !strings.Contains(got, "people: Ada") {
		t.Fatalf("canonical input = %q, want transcript and people line", got)
	}
}

func TestThumbnailKeyLayout(t *testing.T) {
	videoID := uuid.New()
	sceneID := uuid.New()
	key := thumbnailKey(videoID, sceneID)
	want := videoID.String() + "/" + sceneID.String() + ".webp"
	if key != want {
		t.Fatalf("thumbnailKey = %q, want %q", key, want)
	}
}

// stubProfileRepo records UpdateFields calls for enrollment assertions.
type stubProfileRepo struct {
	profile *types.FaceProfile
	updates []map[string]interface{}
}

func (s *stubProfileRepo) Create(ctx context.Context, tx *gorm.DB, profile *types.FaceProfile) (*types.FaceProfile, error) {
	return profile, nil
}
func (s *stubProfileRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FaceProfile, error) {
	return s.profile, nil
}
func (s *stubProfileRepo) GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*types.FaceProfile, error) {
	return s.profile, nil
}
func (s *stubProfileRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.FaceProfile, error) {
	return nil, nil
}
func (s *stubProfileRepo) ListEmbeddedByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.FaceProfile, error) {
	return nil, nil
}
func (s *stubProfileRepo) NameExists(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, name string) (bool, error) {
	return false, nil
}
func (s *stubProfileRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	s.updates = append(s.updates, updates)
	return nil
}
func (s *stubProfileRepo) Delete(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) error {
	return nil
}

var _ repos.FaceProfileRepo = (*stubProfileRepo)(nil)

// An already-enrolled profile is recomputed, not skipped: with its photo set
// cleared, a rerun must record the empty-photo-set error instead of keeping
// the stale centroid as a noop.
func TestFaceEnrollmentRecomputesEnrolledProfile(t *testing.T) {
	vec := pgvectorTestVec()
	repo := &stubProfileRepo{profile: &types.FaceProfile{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Name:        "Ada",
		CentroidVec: vec,
	}}
	h := &FaceEnrollment{log: testPipelineLogger(t), profiles: repo}

	run := &types.JobRun{
		ID:      uuid.New(),
		Payload: datatypes.JSON([]byte(`{"profile_id":"` + repo.profile.ID.String() + `"}`)),
	}
	jc := jobs.NewContext(context.Background(), nil, run, nil, nil)
	if err := h.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Status != types.JobRunStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", run.Status)
	}
	if len(repo.updates) == 0 {
		t.Fatal("expected an error_text update proving recomputation ran")
	}
	if got := repo.updates[0]["error_text"]; got != "no enrollment photos uploaded" {
		t.Fatalf("error_text = %v, want empty-photo-set message", got)
	}
}

func TestExtForMime(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"video/mp4", ".mp4"},
		{"video/quicktime", ".mov"},
		{"video/x-matroska", ".mkv"},
		{"video/webm", ".webm"},
		{"video/x-msvideo", ".avi"},
		{"application/octet-stream", ".bin"},
	}
	for _, tt := range tests {
		if got := extForMime(tt.mime); got != tt.want {
			t.Fatalf("extForMime(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
