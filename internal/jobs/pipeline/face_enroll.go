package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/yungbote/scenedex-backend/internal/config"
	"github.com/yungbote/scenedex-backend/internal/faces"
	"github.com/yungbote/scenedex-backend/internal/inference/client"
	"github.com/yungbote/scenedex-backend/internal/jobs"
	"github.com/yungbote/scenedex-backend/internal/logger"
	"github.com/yungbote/scenedex-backend/internal/repos"
	"github.com/yungbote/scenedex-backend/internal/services"
	"github.com/yungbote/scenedex-backend/internal/types"
	"github.com/yungbote/scenedex-backend/internal/vectors"
)

const (
	stageLoadPhotos   = "load_photos"
	stageEmbedFaces   = "embed_faces"
	stageStoreProfile = "store_profile"
)

/*
FaceEnrollment is the compute_face_embedding handler. It turns a profile's
enrollment photos into one centroid: detect the dominant face per photo,
embed it, average the embeddings and unit-normalize. Photos with no
detectable face are skipped; zero usable faces records error_text on the
profile instead of failing the run, so the owner sees why enrollment
produced nothing.
*/
type FaceEnrollment struct {
	log      *logger.Logger
	db       *gorm.DB
	cfg      config.Config
	profiles repos.FaceProfileRepo
	bucket   services.BucketService
	inf      *client.Client
}

func NewFaceEnrollment(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.Config,
	profiles repos.FaceProfileRepo,
	bucket services.BucketService,
	inf *client.Client,
) *FaceEnrollment {
	return &FaceEnrollment{
		log:      baseLog.With("handler", "FaceEnrollment"),
		db:       db,
		cfg:      cfg,
		profiles: profiles,
		bucket:   bucket,
		inf:      inf,
	}
}

func (h *FaceEnrollment) Type() string { return types.JobTypeComputeFaceEmbedding }

func (h *FaceEnrollment) Run(jc *jobs.Context) error {
	ctx := jc.Ctx
	profileID, ok := jc.PayloadUUID("profile_id")
	if !ok {
		failFatal(jc, "payload", fmt.Errorf("payload missing profile_id"))
		return nil
	}
	log := h.log.With("profile_id", profileID, "job_run_id", jc.Job.ID)

	profile, err := h.profiles.GetByID(ctx, nil, profileID)
	if err != nil {
		jc.Fail("load", fmt.Errorf("load profile: %w", err))
		return err
	}
	if profile == nil {
		failFatal(jc, "load", fmt.Errorf("face profile %s not found", profileID))
		return nil
	}

	// Re-enrollment is allowed: the centroid always reflects the current
	// photo set, so an existing centroid is recomputed, not kept.
	jc.Progress(stageLoadPhotos, 10, "loading enrollment photos")
	keys := photoKeys(profile)
	if len(keys) == 0 {
		h.recordEnrollmentError(ctx, profile, "no enrollment photos uploaded")
		jc.Succeed(stageStoreProfile, map[string]any{"enrolled": false, "faces": 0})
		return nil
	}

	jc.Progress(stageEmbedFaces, 30, fmt.Sprintf("embedding faces from %d photos", len(keys)))
	embeds := [][]float32{}
	skipped := 0
	for _, key := range keys {
		emb, err := h.embedPhoto(ctx, key)
		if err != nil {
			if Classify(err) == StageTransient {
				jc.Fail(stageEmbedFaces, fmt.Errorf("embed photo %s: %w", key, err))
				return nil
			}
			log.Warn("Enrollment photo skipped", "key", key, "error", err)
			skipped++
			continue
		}
		embeds = append(embeds, emb)
	}

	if len(embeds) == 0 {
		h.recordEnrollmentError(ctx, profile, fmt.Sprintf("no usable face found in %d photos", len(keys)))
		jc.Succeed(stageStoreProfile, map[string]any{"enrolled": false, "faces": 0, "skipped": skipped})
		return nil
	}

	centroid, err := vectors.Centroid(embeds)
	if err != nil || centroid == nil {
		h.recordEnrollmentError(ctx, profile, "face embeddings could not be averaged")
		jc.Succeed(stageStoreProfile, map[string]any{"enrolled": false, "faces": len(embeds)})
		return nil
	}

	jc.Progress(stageStoreProfile, 80, "storing centroid")
	vec := pgvector.NewVector(centroid)
	if err := h.profiles.UpdateFields(ctx, nil, profile.ID, map[string]interface{}{
		"centroid_vec": vec,
		"error_text":   "",
		"updated_at":   time.Now(),
	}); err != nil {
		jc.Fail(stageStoreProfile, fmt.Errorf("store centroid: %w", err))
		return err
	}

	log.Info("Face profile enrolled", "faces", len(embeds), "skipped", skipped)
	jc.Succeed(stageStoreProfile, map[string]any{"enrolled": true, "faces": len(embeds), "skipped": skipped})
	return nil
}

// embedPhoto downloads one enrollment photo, detects the most confident
// face and embeds its crop.
func (h *FaceEnrollment) embedPhoto(ctx context.Context, key string) ([]float32, error) {
	r, err := h.bucket.DownloadFile(ctx, services.BucketCategoryUpload, key)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	raw, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	det, err := h.inf.DetectFaces(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return nil, err
	}
	if det == nil || len(det.Faces) == 0 {
		return nil, fmt.Errorf("no face detected")
	}
	best := det.Faces[0]
	for _, f := range det.Faces[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}

	frame, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return faces.EmbedFace(frame, faces.BBox{
		X: best.BBox[0],
		Y: best.BBox[1],
		W: best.BBox[2] - best.BBox[0],
		H: best.BBox[3] - best.BBox[1],
	})
}

func (h *FaceEnrollment) recordEnrollmentError(ctx context.Context, profile *types.FaceProfile, reason string) {
	if err := h.profiles.UpdateFields(ctx, nil, profile.ID, map[string]interface{}{
		"error_text": reason,
		"updated_at": time.Now(),
	}); err != nil {
		h.log.Warn("Enrollment error_text update failed", "profile_id", profile.ID, "error", err)
	}
}

func photoKeys(profile *types.FaceProfile) []string {
	if len(profile.PhotoKeys) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(profile.PhotoKeys, &keys); err != nil {
		return nil
	}
	out := keys[:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
