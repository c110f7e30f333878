package handlers

import (
  "encoding/json"
  "errors"
  "fmt"
  "net/http"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/yungbote/scenedex-backend/internal/config"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/repos"
  "github.com/yungbote/scenedex-backend/internal/requestdata"
  "github.com/yungbote/scenedex-backend/internal/services"
  "github.com/yungbote/scenedex-backend/internal/types"
)

type VideoHandler struct {
  log      *logger.Logger
  cfg      config.Config
  videos   repos.VideoRepo
  metadata repos.VideoMetadataRepo
  scenes   repos.SceneRepo
  audits   repos.JobRepo
  jobRuns  repos.JobRunRepo
  bucket   services.BucketService
  notify   services.JobNotifier
}

func NewVideoHandler(
  log *logger.Logger,
  cfg config.Config,
  videos repos.VideoRepo,
  metadata repos.VideoMetadataRepo,
  scenes repos.SceneRepo,
  audits repos.JobRepo,
  jobRuns repos.JobRunRepo,
  bucket services.BucketService,
  notify services.JobNotifier,
) *VideoHandler {
  return &VideoHandler{
    log:      log.With("handler", "VideoHandler"),
    cfg:      cfg,
    videos:   videos,
    metadata: metadata,
    scenes:   scenes,
    audits:   audits,
    jobRuns:  jobRuns,
    bucket:   bucket,
    notify:   notify,
  }
}

type initUploadRequest struct {
  MimeType    string   `json:"mime_type" binding:"required"`
  SizeBytes   int64    `json:"size_bytes" binding:"required"`
  Title       string   `json:"title"`
  Description string   `json:"description"`
  Tags        []string `json:"tags"`
}

// InitUpload validates the declared upload, reserves a video row in state
// uploading and hands back a presigned PUT URL bound to the declared
// content type.
func (h *VideoHandler) InitUpload(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  var req initUploadRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", err)
    return
  }
  if !mimeAllowed(req.MimeType, h.cfg.AllowedMimeTypes) {
    RespondError(c, http.StatusBadRequest, "invalid_input",
      fmt.Errorf("mime type %q is not supported", req.MimeType))
    return
  }
  if req.SizeBytes <= 0 || req.SizeBytes > h.cfg.MaxVideoBytes {
    RespondError(c, http.StatusBadRequest, "invalid_input",
      fmt.Errorf("size_bytes must be in (0, %d]", h.cfg.MaxVideoBytes))
    return
  }

  dayStart := time.Now().UTC().Truncate(24 * time.Hour)
  count, err := h.videos.CountCreatedSince(c.Request.Context(), nil, rd.OwnerID, dayStart)
  if err != nil {
    h.log.Error("Upload quota check failed", "owner_id", rd.OwnerID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if count >= int64(h.cfg.FreeTierUploadsPerDay) {
    RespondError(c, http.StatusTooManyRequests, "quota_exceeded",
      fmt.Errorf("daily upload limit of %d reached", h.cfg.FreeTierUploadsPerDay))
    return
  }

  videoID := uuid.New()
  storageKey := fmt.Sprintf("uploads/%s/%s/source", rd.OwnerID, videoID)
  video := &types.Video{
    ID:         videoID,
    OwnerID:    rd.OwnerID,
    StorageKey: storageKey,
    MimeType:   req.MimeType,
    SizeBytes:  req.SizeBytes,
    State:      types.VideoStateUploading,
  }
  if _, err := h.videos.Create(c.Request.Context(), nil, video); err != nil {
    h.log.Error("Video create failed", "owner_id", rd.OwnerID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }

  meta := &types.VideoMetadata{
    VideoID:     videoID,
    Title:       req.Title,
    Description: req.Description,
  }
  if len(req.Tags) > 0 {
    if raw, err := json.Marshal(req.Tags); err == nil {
      meta.Tags = datatypes.JSON(raw)
    }
  }
  if err := h.metadata.Upsert(c.Request.Context(), nil, meta); err != nil {
    h.log.Error("Metadata upsert failed", "video_id", videoID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }

  uploadURL, err := h.bucket.SignedUploadURL(services.BucketCategoryUpload, storageKey, req.MimeType, h.cfg.SignedURLTTL)
  if err != nil {
    h.log.Error("Signing upload URL failed", "video_id", videoID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }

  c.JSON(http.StatusCreated, gin.H{
    "video_id":    videoID,
    "storage_key": storageKey,
    "upload_url":  uploadURL,
    "expires_in":  int(h.cfg.SignedURLTTL.Seconds()),
  })
}

type completeUploadRequest struct {
  VideoID string `json:"video_id" binding:"required"`
}

// CompleteUpload moves the video into validating and enqueues the
// processing run. Calling it twice (or on a video past uploading) is a
// conflict, not an error to retry.
func (h *VideoHandler) CompleteUpload(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  var req completeUploadRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", err)
    return
  }
  videoID, err := uuid.Parse(req.VideoID)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid video id"))
    return
  }
  video, err := h.videos.GetOwned(c.Request.Context(), nil, rd.OwnerID, videoID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if video == nil {
    RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("video not found"))
    return
  }

  if err := h.videos.TransitionState(c.Request.Context(), nil, video.ID,
    types.VideoStateUploading, types.VideoStateValidating, nil); err != nil {
    if errors.Is(err, repos.ErrInvalidTransition) {
      RespondError(c, http.StatusConflict, "conflict",
        fmt.Errorf("video is in state %q, not uploading", video.State))
      return
    }
    h.log.Error("Complete transition failed", "video_id", video.ID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }

  run, err := h.jobRuns.Enqueue(c.Request.Context(), nil, rd.OwnerID,
    types.QueueVideoProcessing, types.JobTypeProcessVideo,
    map[string]interface{}{"video_id": video.ID.String()}, 3)
  if err != nil {
    h.log.Error("Enqueue process_video failed", "video_id", video.ID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if h.notify != nil {
    h.notify.JobCreated(rd.OwnerID, run)
  }

  c.JSON(http.StatusAccepted, gin.H{
    "video_id":   video.ID,
    "job_run_id": run.ID,
    "state":      types.VideoStateValidating,
  })
}

func (h *VideoHandler) List(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  limit := intQuery(c, "limit", 50)
  offset := intQuery(c, "offset", 0)
  videos, err := h.videos.ListByOwner(c.Request.Context(), nil, rd.OwnerID, limit, offset)
  if err != nil {
    h.log.Error("List videos failed", "owner_id", rd.OwnerID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  RespondOK(c, gin.H{"videos": videos})
}

// Get returns one video with its scenes; scene thumbnails come back as
// short-lived signed URLs, never raw object keys.
func (h *VideoHandler) Get(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  videoID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid video id"))
    return
  }
  video, err := h.videos.GetOwned(c.Request.Context(), nil, rd.OwnerID, videoID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if video == nil || video.State == types.VideoStateDeleted {
    RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("video not found"))
    return
  }

  scenes, err := h.scenes.ListByVideo(c.Request.Context(), nil, video.ID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  out := make([]gin.H, 0, len(scenes))
  for _, s := range scenes {
    item := gin.H{
      "id":      s.ID,
      "start_s": s.StartS,
      "end_s":   s.EndS,
    }
    if s.Transcript != nil {
      item["transcript"] = *s.Transcript
    }
    if s.ThumbnailKey != "" {
      if url, err := h.bucket.SignedDownloadURL(services.BucketCategoryThumbnail, s.ThumbnailKey, h.cfg.SignedURLTTL); err == nil {
        item["thumbnail_url"] = url
      }
    }
    out = append(out, item)
  }
  RespondOK(c, gin.H{"video": video, "scenes": out})
}

// Status reports the video state plus the per-stage audit trail.
func (h *VideoHandler) Status(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  videoID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid video id"))
    return
  }
  video, err := h.videos.GetOwned(c.Request.Context(), nil, rd.OwnerID, videoID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if video == nil {
    RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("video not found"))
    return
  }
  stages, err := h.audits.ListByVideo(c.Request.Context(), nil, video.ID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  RespondOK(c, gin.H{
    "video_id":   video.ID,
    "state":      video.State,
    "error_text": video.ErrorText,
    "indexed_at": video.IndexedAt,
    "stages":     stages,
  })
}

// Delete soft-deletes: the row flips to deleted so retrieval and listings
// skip it; blob cleanup is a background concern.
func (h *VideoHandler) Delete(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  videoID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid video id"))
    return
  }
  video, err := h.videos.GetOwned(c.Request.Context(), nil, rd.OwnerID, videoID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if video == nil || video.State == types.VideoStateDeleted {
    RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("video not found"))
    return
  }
  if err := h.videos.TransitionState(c.Request.Context(), nil, video.ID,
    video.State, types.VideoStateDeleted, nil); err != nil {
    h.log.Error("Video delete failed", "video_id", video.ID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  c.Status(http.StatusNoContent)
}

func mimeAllowed(mime string, allowed []string) bool {
  for _, m := range allowed {
    if m == mime {
      return true
    }
  }
  return false
}

func intQuery(c *gin.Context, key string, def int) int {
  raw := c.Query(key)
  if raw == "" {
    return def
  }
  var v int
  if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v < 0 {
    return def
  }
  return v
}
