package handlers

import (
  "bytes"
  "context"
  "encoding/json"
  "errors"
  "io"
  "net/http"
  "net/http/httptest"
  "testing"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/scenedex-backend/internal/config"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/repos"
  "github.com/yungbote/scenedex-backend/internal/requestdata"
  "github.com/yungbote/scenedex-backend/internal/search"
  "github.com/yungbote/scenedex-backend/internal/services"
  "github.com/yungbote/scenedex-backend/internal/types"
)

func testConfig() config.Config {
  return config.Config{
    MaxVideoBytes:         1 << 30,
    AllowedMimeTypes:      []string{"video/mp4", "video/webm"},
    FreeTierUploadsPerDay: 3,
    SignedURLTTL:          15 * time.Minute,
    Search:                config.SearchConfig{FinalLimit: 20},
  }
}

func testLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  return log
}

// newRequest builds an authenticated gin context unless ownerID is Nil.
func newRequest(t *testing.T, method, path string, body any, ownerID uuid.UUID) (*gin.Context, *httptest.ResponseRecorder) {
  t.Helper()
  gin.SetMode(gin.TestMode)
  rec := httptest.NewRecorder()
  c, _ := gin.CreateTestContext(rec)

  var buf bytes.Buffer
  if body != nil {
    if err := json.NewEncoder(&buf).Encode(body); err != nil {
      t.Fatalf("encode body: %v", err)
    }
  }
  req := httptest.NewRequest(method, path, &buf)
  req.Header.Set("Content-Type", "application/json")
  if ownerID != uuid.Nil {
    ctx := requestdata.WithRequestData(req.Context(), &requestdata.RequestData{OwnerID: ownerID})
    req = req.WithContext(ctx)
  }
  c.Request = req
  return c, rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorEnvelope {
  t.Helper()
  var env ErrorEnvelope
  if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
    t.Fatalf("decode error envelope: %v (body %s)", err, rec.Body.String())
  }
  return env
}

// stubVideoRepo satisfies repos.VideoRepo with canned responses.
type stubVideoRepo struct {
  countSince    int64
  owned         *types.Video
  transitionErr error
}

func (s *stubVideoRepo) Create(ctx context.Context, tx *gorm.DB, v *types.Video) (*types.Video, error) {
  return v, nil
}
func (s *stubVideoRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Video, error) {
  return s.owned, nil
}
func (s *stubVideoRepo) GetOwned(ctx context.Context, tx *gorm.DB, ownerID, id uuid.UUID) (*types.Video, error) {
  return s.owned, nil
}
func (s *stubVideoRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]*types.Video, error) {
  return nil, nil
}
func (s *stubVideoRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  return nil
}
func (s *stubVideoRepo) TransitionState(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string, updates map[string]interface{}) error {
  return s.transitionErr
}
func (s *stubVideoRepo) CountCreatedSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, since time.Time) (int64, error) {
  return s.countSince, nil
}

var _ repos.VideoRepo = (*stubVideoRepo)(nil)

type stubMetadataRepo struct{}

func (s *stubMetadataRepo) Upsert(ctx context.Context, tx *gorm.DB, meta *types.VideoMetadata) error {
  return nil
}
func (s *stubMetadataRepo) GetByVideoID(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) (*types.VideoMetadata, error) {
  return nil, nil
}

var _ repos.VideoMetadataRepo = (*stubMetadataRepo)(nil)

// stubBucket signs everything with fixed URLs and never touches GCS.
type stubBucket struct{}

func (s *stubBucket) UploadFile(ctx context.Context, category services.BucketCategory, key string, file io.Reader, contentType string) error {
  return nil
}
func (s *stubBucket) DownloadFile(ctx context.Context, category services.BucketCategory, key string) (io.ReadCloser, error) {
  return nil, errors.New("not stubbed")
}
func (s *stubBucket) DeleteFile(ctx context.Context, category services.BucketCategory, key string) error {
  return nil
}
func (s *stubBucket) GetObjectAttrs(ctx context.Context, category services.BucketCategory, key string) (*services.ObjectAttrs, error) {
  return nil, errors.New("not stubbed")
}
func (s *stubBucket) SignedUploadURL(category services.BucketCategory, key string, contentType string, ttl time.Duration) (string, error) {
  return "https://signed.test/upload/" + key, nil
}
func (s *stubBucket) SignedDownloadURL(category services.BucketCategory, key string, ttl time.Duration) (string, error) {
  return "https://signed.test/download/" + key, nil
}

var _ services.BucketService = (*stubBucket)(nil)

func newVideoHandler(t *testing.T, videos repos.VideoRepo) *VideoHandler {
  return NewVideoHandler(testLogger(t), testConfig(), videos, &stubMetadataRepo{}, nil, nil, nil, &stubBucket{}, nil)
}

func TestInitUploadUnauthorized(t *testing.T) {
  h := newVideoHandler(t, &stubVideoRepo{})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/init", initUploadRequest{
    MimeType: "video/mp4", SizeBytes: 100,
  }, uuid.Nil)
  h.InitUpload(c)
  if rec.Code != http.StatusUnauthorized {
    t.Fatalf("status = %d, want 401", rec.Code)
  }
}

func TestInitUploadRejectsMime(t *testing.T) {
  h := newVideoHandler(t, &stubVideoRepo{})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/init", initUploadRequest{
    MimeType: "application/pdf", SizeBytes: 100,
  }, uuid.New())
  h.InitUpload(c)
  if rec.Code != http.StatusBadRequest {
    t.Fatalf("status = %d, want 400", rec.Code)
  }
  if env := decodeError(t, rec); env.Error.Code != "invalid_input" {
    t.Fatalf("code = %q, want invalid_input", env.Error.Code)
  }
}

func TestInitUploadRejectsOversize(t *testing.T) {
  h := newVideoHandler(t, &stubVideoRepo{})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/init", initUploadRequest{
    MimeType: "video/mp4", SizeBytes: (1 << 30) + 1,
  }, uuid.New())
  h.InitUpload(c)
  if rec.Code != http.StatusBadRequest {
    t.Fatalf("status = %d, want 400", rec.Code)
  }
}

func TestInitUploadQuotaExceeded(t *testing.T) {
  h := newVideoHandler(t, &stubVideoRepo{countSince: 3})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/init", initUploadRequest{
    MimeType: "video/mp4", SizeBytes: 100,
  }, uuid.New())
  h.InitUpload(c)
  if rec.Code != http.StatusTooManyRequests {
    t.Fatalf("status = %d, want 429", rec.Code)
  }
  if env := decodeError(t, rec); env.Error.Code != "quota_exceeded" {
    t.Fatalf("code = %q, want quota_exceeded", env.Error.Code)
  }
}

// The init response exposes the URL lifetime as expires_in seconds.
func TestInitUploadReturnsExpiresIn(t *testing.T) {
  h := newVideoHandler(t, &stubVideoRepo{})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/init", initUploadRequest{
    MimeType: "video/mp4", SizeBytes: 100,
  }, uuid.New())
  h.InitUpload(c)
  if rec.Code != http.StatusCreated {
    t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
  }
  var body struct {
    VideoID   string `json:"video_id"`
    UploadURL string `json:"upload_url"`
    ExpiresIn int    `json:"expires_in"`
  }
  if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
    t.Fatalf("decode body: %v", err)
  }
  if body.VideoID == "" || body.UploadURL == "" {
    t.Fatalf("missing video_id/upload_url in %s", rec.Body.String())
  }
  if body.ExpiresIn != 900 {
    t.Fatalf("expires_in = %d, want 900", body.ExpiresIn)
  }
}

func TestCompleteUploadConflictWhenNotUploading(t *testing.T) {
  owner := uuid.New()
  video := &types.Video{ID: uuid.New(), OwnerID: owner, State: types.VideoStateProcessing}
  h := newVideoHandler(t, &stubVideoRepo{owned: video, transitionErr: repos.ErrInvalidTransition})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/complete",
    completeUploadRequest{VideoID: video.ID.String()}, owner)
  h.CompleteUpload(c)
  if rec.Code != http.StatusConflict {
    t.Fatalf("status = %d, want 409", rec.Code)
  }
  if env := decodeError(t, rec); env.Error.Code != "conflict" {
    t.Fatalf("code = %q, want conflict", env.Error.Code)
  }
}

// A transition rejected for any reason other than the state guard is an
// internal failure, not a conflict.
func TestCompleteUploadInternalErrorGives500(t *testing.T) {
  owner := uuid.New()
  video := &types.Video{ID: uuid.New(), OwnerID: owner, State: types.VideoStateUploading}
  h := newVideoHandler(t, &stubVideoRepo{owned: video, transitionErr: errors.New("connection reset")})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/complete",
    completeUploadRequest{VideoID: video.ID.String()}, owner)
  h.CompleteUpload(c)
  if rec.Code != http.StatusInternalServerError {
    t.Fatalf("status = %d, want 500", rec.Code)
  }
  if env := decodeError(t, rec); env.Error.Code != "internal" {
    t.Fatalf("code = %q, want internal", env.Error.Code)
  }
}

func TestCompleteUploadNotFound(t *testing.T) {
  h := newVideoHandler(t, &stubVideoRepo{owned: nil})
  c, rec := newRequest(t, http.MethodPost, "/api/videos/upload/complete",
    completeUploadRequest{VideoID: uuid.New().String()}, uuid.New())
  h.CompleteUpload(c)
  if rec.Code != http.StatusNotFound {
    t.Fatalf("status = %d, want 404", rec.Code)
  }
}

func newSearchHandler(t *testing.T, features config.Features) *SearchHandler {
  cfg := testConfig()
  cfg.Features = features
  engine := search.NewEngine(nil, testLogger(t), cfg, nil)
  return NewSearchHandler(testLogger(t), cfg, engine, nil)
}

func TestSearchEmptyQuery(t *testing.T) {
  h := newSearchHandler(t, config.Features{})
  c, rec := newRequest(t, http.MethodGet, "/api/search?q=", nil, uuid.New())
  h.Search(c)
  if rec.Code != http.StatusBadRequest {
    t.Fatalf("status = %d, want 400", rec.Code)
  }
}

func TestSearchHybridDisabledGives501(t *testing.T) {
  h := newSearchHandler(t, config.Features{SemanticSearch: true})
  c, rec := newRequest(t, http.MethodGet, "/api/search/hybrid?q=sunset", nil, uuid.New())
  h.Hybrid(c)
  if rec.Code != http.StatusNotImplemented {
    t.Fatalf("status = %d, want 501", rec.Code)
  }
  if env := decodeError(t, rec); env.Error.Code != "feature_disabled" {
    t.Fatalf("code = %q, want feature_disabled", env.Error.Code)
  }
}

// Hybrid needs both flags: the RRF flag alone is not enough without
// semantic search to supply the dense side.
func TestSearchHybridRequiresSemantic(t *testing.T) {
  h := newSearchHandler(t, config.Features{HybridRRF: true})
  c, rec := newRequest(t, http.MethodGet, "/api/search/hybrid?q=sunset", nil, uuid.New())
  h.Hybrid(c)
  if rec.Code != http.StatusNotImplemented {
    t.Fatalf("status = %d, want 501", rec.Code)
  }
}

func TestSearchSemanticDisabledGives501(t *testing.T) {
  h := newSearchHandler(t, config.Features{})
  c, rec := newRequest(t, http.MethodGet, "/api/search/semantic?q=sunset", nil, uuid.New())
  h.Semantic(c)
  if rec.Code != http.StatusNotImplemented {
    t.Fatalf("status = %d, want 501", rec.Code)
  }
}

func TestSearchBadPersonID(t *testing.T) {
  h := newSearchHandler(t, config.Features{})
  c, rec := newRequest(t, http.MethodGet, "/api/search?q=sunset&person_id=not-a-uuid", nil, uuid.New())
  h.Search(c)
  if rec.Code != http.StatusBadRequest {
    t.Fatalf("status = %d, want 400", rec.Code)
  }
}

func TestPeopleDisabledGives501(t *testing.T) {
  cfg := testConfig()
  h := NewPeopleHandler(testLogger(t), cfg, nil, nil, nil, nil)
  c, rec := newRequest(t, http.MethodPost, "/api/people", createPersonRequest{Name: "Ada"}, uuid.New())
  h.Create(c)
  if rec.Code != http.StatusNotImplemented {
    t.Fatalf("status = %d, want 501", rec.Code)
  }
}
