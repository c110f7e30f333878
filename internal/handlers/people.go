package handlers

import (
  "encoding/json"
  "fmt"
  "net/http"

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

const maxEnrollmentPhotos = 10

type PeopleHandler struct {
  log      *logger.Logger
  cfg      config.Config
  profiles repos.FaceProfileRepo
  jobRuns  repos.JobRunRepo
  bucket   services.BucketService
  notify   services.JobNotifier
}

func NewPeopleHandler(
  log *logger.Logger,
  cfg config.Config,
  profiles repos.FaceProfileRepo,
  jobRuns repos.JobRunRepo,
  bucket services.BucketService,
  notify services.JobNotifier,
) *PeopleHandler {
  return &PeopleHandler{
    log:      log.With("handler", "PeopleHandler"),
    cfg:      cfg,
    profiles: profiles,
    jobRuns:  jobRuns,
    bucket:   bucket,
    notify:   notify,
  }
}

func (h *PeopleHandler) enrollmentEnabled(c *gin.Context) bool {
  if h.cfg.Features.FaceEnrollment {
    return true
  }
  RespondError(c, http.StatusNotImplemented, "feature_disabled",
    fmt.Errorf("face enrollment is disabled"))
  return false
}

type createPersonRequest struct {
  Name string `json:"name" binding:"required"`
}

// Create reserves a profile with no photos yet; Photos presigns the
// enrollment uploads afterwards.
func (h *PeopleHandler) Create(c *gin.Context) {
  if !h.enrollmentEnabled(c) {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  var req createPersonRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", err)
    return
  }

  exists, err := h.profiles.NameExists(c.Request.Context(), nil, rd.OwnerID, req.Name)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if exists {
    RespondError(c, http.StatusConflict, "conflict",
      fmt.Errorf("a person named %q already exists", req.Name))
    return
  }

  profile := &types.FaceProfile{
    ID:      uuid.New(),
    OwnerID: rd.OwnerID,
    Name:    req.Name,
  }
  if _, err := h.profiles.Create(c.Request.Context(), nil, profile); err != nil {
    h.log.Error("Face profile create failed", "owner_id", rd.OwnerID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }

  c.JSON(http.StatusCreated, gin.H{
    "person_id": profile.ID,
    "name":      req.Name,
  })
}

type photosRequest struct {
  PhotoCount int `json:"photo_count" binding:"required"`
}

// Photos presigns one upload URL per enrollment photo and records the keys
// on the profile. Calling it again replaces the photo set, so a later
// Complete recomputes the centroid from the current photos.
func (h *PeopleHandler) Photos(c *gin.Context) {
  if !h.enrollmentEnabled(c) {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  profileID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid person id"))
    return
  }
  var req photosRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", err)
    return
  }
  if req.PhotoCount < 1 || req.PhotoCount > maxEnrollmentPhotos {
    RespondError(c, http.StatusBadRequest, "invalid_input",
      fmt.Errorf("photo_count must be between 1 and %d", maxEnrollmentPhotos))
    return
  }

  profile, err := h.profiles.GetOwned(c.Request.Context(), nil, rd.OwnerID, profileID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if profile == nil {
    RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("person not found"))
    return
  }

  keys := make([]string, 0, req.PhotoCount)
  urls := make([]gin.H, 0, req.PhotoCount)
  for i := 0; i < req.PhotoCount; i++ {
    key := fmt.Sprintf("faces/%s/%s/photo-%d.jpg", rd.OwnerID, profile.ID, i)
    url, err := h.bucket.SignedUploadURL(services.BucketCategoryUpload, key, "image/jpeg", h.cfg.SignedURLTTL)
    if err != nil {
      h.log.Error("Signing photo upload URL failed", "profile_id", profile.ID, "error", err)
      RespondError(c, http.StatusInternalServerError, "internal", err)
      return
    }
    keys = append(keys, key)
    urls = append(urls, gin.H{"key": key, "upload_url": url})
  }

  rawKeys, _ := json.Marshal(keys)
  if err := h.profiles.UpdateFields(c.Request.Context(), nil, profile.ID, map[string]interface{}{
    "photo_keys": datatypes.JSON(rawKeys),
  }); err != nil {
    h.log.Error("Photo keys update failed", "profile_id", profile.ID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }

  RespondOK(c, gin.H{
    "person_id": profile.ID,
    "uploads":   urls,
  })
}

// Complete enqueues the centroid computation once the photos are uploaded.
func (h *PeopleHandler) Complete(c *gin.Context) {
  if !h.enrollmentEnabled(c) {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  profileID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid person id"))
    return
  }
  profile, err := h.profiles.GetOwned(c.Request.Context(), nil, rd.OwnerID, profileID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if profile == nil {
    RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("person not found"))
    return
  }

  run, err := h.jobRuns.Enqueue(c.Request.Context(), nil, rd.OwnerID,
    types.QueueFaceProcessing, types.JobTypeComputeFaceEmbedding,
    map[string]interface{}{"profile_id": profile.ID.String()}, 3)
  if err != nil {
    h.log.Error("Enqueue compute_face_embedding failed", "profile_id", profile.ID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if h.notify != nil {
    h.notify.JobCreated(rd.OwnerID, run)
  }

  c.JSON(http.StatusAccepted, gin.H{
    "person_id":  profile.ID,
    "job_run_id": run.ID,
  })
}

func (h *PeopleHandler) List(c *gin.Context) {
  if !h.enrollmentEnabled(c) {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  profiles, err := h.profiles.ListByOwner(c.Request.Context(), nil, rd.OwnerID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  out := make([]gin.H, 0, len(profiles))
  for _, p := range profiles {
    out = append(out, gin.H{
      "id":         p.ID,
      "name":       p.Name,
      "enrolled":   p.CentroidVec != nil,
      "error_text": p.ErrorText,
      "created_at": p.CreatedAt,
    })
  }
  RespondOK(c, gin.H{"people": out})
}

func (h *PeopleHandler) Get(c *gin.Context) {
  if !h.enrollmentEnabled(c) {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  profileID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid person id"))
    return
  }
  profile, err := h.profiles.GetOwned(c.Request.Context(), nil, rd.OwnerID, profileID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  if profile == nil {
    RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("person not found"))
    return
  }
  RespondOK(c, gin.H{
    "id":         profile.ID,
    "name":       profile.Name,
    "enrolled":   profile.CentroidVec != nil,
    "error_text": profile.ErrorText,
    "created_at": profile.CreatedAt,
    "updated_at": profile.UpdatedAt,
  })
}

func (h *PeopleHandler) Delete(c *gin.Context) {
  if !h.enrollmentEnabled(c) {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  profileID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid person id"))
    return
  }
  if err := h.profiles.Delete(c.Request.Context(), nil, rd.OwnerID, profileID); err != nil {
    h.log.Error("Face profile delete failed", "profile_id", profileID, "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  c.Status(http.StatusNoContent)
}
