package handlers

import (
  "errors"
  "fmt"
  "net/http"
  "strconv"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yungbote/scenedex-backend/internal/config"
  "github.com/yungbote/scenedex-backend/internal/logger"
  "github.com/yungbote/scenedex-backend/internal/requestdata"
  "github.com/yungbote/scenedex-backend/internal/search"
  "github.com/yungbote/scenedex-backend/internal/services"
)

type SearchHandler struct {
  log    *logger.Logger
  cfg    config.Config
  engine *search.Engine
  bucket services.BucketService
}

func NewSearchHandler(log *logger.Logger, cfg config.Config, engine *search.Engine, bucket services.BucketService) *SearchHandler {
  return &SearchHandler{
    log:    log.With("handler", "SearchHandler"),
    cfg:    cfg,
    engine: engine,
    bucket: bucket,
  }
}

// Search serves GET /api/search (keyword mode).
func (h *SearchHandler) Search(c *gin.Context) {
  h.serve(c, search.ModeKeyword)
}

// Semantic serves GET /api/search/semantic. Disabled modes answer 501 so
// clients can distinguish "not configured here" from a bad request.
func (h *SearchHandler) Semantic(c *gin.Context) {
  h.serve(c, search.ModeSemantic)
}

// Hybrid serves GET /api/search/hybrid.
func (h *SearchHandler) Hybrid(c *gin.Context) {
  h.serve(c, search.ModeHybrid)
}

func (h *SearchHandler) serve(c *gin.Context, mode search.Mode) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.OwnerID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }

  req := search.Request{
    OwnerID: rd.OwnerID,
    Query:   c.Query("q"),
    Mode:    mode,
    Limit:   intQuery(c, "limit", 0),
    Offset:  intQuery(c, "offset", 0),
  }
  if raw := c.Query("person_id"); raw != "" {
    pid, err := uuid.Parse(raw)
    if err != nil {
      RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid person_id"))
      return
    }
    req.PersonID = &pid
  }
  req.MinDurationS = floatQuery(c, "min_duration")
  req.MaxDurationS = floatQuery(c, "max_duration")
  if mode == search.ModeSemantic || mode == search.ModeHybrid {
    req.TextWeight = floatQuery(c, "text_weight")
    req.VisionWeight = floatQuery(c, "vision_weight")
  }

  results, err := h.engine.Search(c.Request.Context(), req)
  if err != nil {
    switch {
    case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, search.ErrUnknownMode):
      RespondError(c, http.StatusBadRequest, "invalid_input", err)
    case errors.Is(err, search.ErrSemanticDisabled), errors.Is(err, search.ErrHybridDisabled):
      RespondError(c, http.StatusNotImplemented, "feature_disabled", err)
    default:
      h.log.Error("Search failed", "owner_id", rd.OwnerID, "mode", req.Mode, "error", err)
      RespondError(c, http.StatusInternalServerError, "internal", err)
    }
    return
  }

  for i := range results {
    if results[i].ThumbnailKey == "" {
      continue
    }
    if url, err := h.bucket.SignedDownloadURL(services.BucketCategoryThumbnail, results[i].ThumbnailKey, h.cfg.SignedURLTTL); err == nil {
      results[i].ThumbnailURL = url
    }
  }

  RespondOK(c, gin.H{
    "mode":    req.Mode,
    "results": results,
  })
}

func floatQuery(c *gin.Context, key string) *float64 {
  raw := c.Query(key)
  if raw == "" {
    return nil
  }
  v, err := strconv.ParseFloat(raw, 64)
  if err != nil {
    return nil
  }
  return &v
}
