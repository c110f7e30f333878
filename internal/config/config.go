package config

import (
	"strings"
	"time"

	"github.com/yungbote/scenedex-backend/internal/logger"
	"github.com/yungbote/scenedex-backend/internal/utils"
)

type Features struct {
	SemanticSearch bool
	HybridRRF      bool
	ANNTuning      bool
	CanonicalTrim  bool
	FaceEnrollment bool
	FaceDetection  bool
}

type SearchConfig struct {
	TextWeight     float64
	VisionWeight   float64
	TagWeight      float64
	PersonBoost    float64
	EfSearch       int
	TopKCandidates int
	FinalLimit     int
	RRFK           int
	BM25Weight     float64
	VectorWeight   float64
}

type ModelConfig struct {
	ASRModel         string
	TextEmbedModel   string
	VisionEmbedModel string
	FaceModel        string
	TextEmbedDim     int
	VisionEmbedDim   int
	FaceEmbedDim     int
	ASRLanguageHint  string
}

type Config struct {
	Port          string
	JWTSecretKey  string
	AllowedOrigin string

	MaxVideoBytes        int64
	MaxVideoDurationS    float64
	AllowedMimeTypes     []string
	FreeTierUploadsPerDay int

	UploadBucket    string
	ThumbnailBucket string
	SidecarBucket   string
	SignedURLTTL    time.Duration

	SceneThreshold      float64
	SceneFanout         int
	WorkerConcurrency   int
	FaceSimThreshold    float64
	CanonicalMaxTokens  int
	CanonicalTopTags    int

	Features Features
	Search   SearchConfig
	Models   ModelConfig
}

func Load(log *logger.Logger) Config {
	mimes := utils.GetEnv("ALLOWED_MIME_TYPES", "video/mp4,video/quicktime,video/x-matroska,video/webm,video/x-msvideo", log)
	allowed := make([]string, 0, 5)
	for _, m := range strings.Split(mimes, ",") {
		if s := strings.TrimSpace(m); s != "" {
			allowed = append(allowed, s)
		}
	}
	return Config{
		Port:          utils.GetEnv("PORT", "8080", log),
		JWTSecretKey:  utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		AllowedOrigin: utils.GetEnv("ALLOWED_ORIGIN", "http://localhost:3000", log),

		MaxVideoBytes:         utils.GetEnvAsInt64("MAX_VIDEO_BYTES", 1<<30, log),
		MaxVideoDurationS:     utils.GetEnvAsFloat("MAX_VIDEO_DURATION_S", 600, log),
		AllowedMimeTypes:      allowed,
		FreeTierUploadsPerDay: utils.GetEnvAsInt("FREE_TIER_UPLOADS_PER_DAY", 3, log),

		UploadBucket:    utils.GetEnv("GCS_UPLOAD_BUCKET", "scenedex-uploads", log),
		ThumbnailBucket: utils.GetEnv("GCS_THUMBNAIL_BUCKET", "scenedex-thumbnails", log),
		SidecarBucket:   utils.GetEnv("GCS_SIDECAR_BUCKET", "scenedex-sidecars", log),
		SignedURLTTL:    time.Duration(utils.GetEnvAsInt("SIGNED_URL_TTL_SECONDS", 900, log)) * time.Second,

		SceneThreshold:     utils.GetEnvAsFloat("SCENE_THRESHOLD", 0.4, log),
		SceneFanout:        utils.GetEnvAsInt("SCENE_FANOUT", 4, log),
		WorkerConcurrency:  utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, log),
		FaceSimThreshold:   utils.GetEnvAsFloat("FACE_SIMILARITY_THRESHOLD", 0.6, log),
		CanonicalMaxTokens: utils.GetEnvAsInt("CANONICAL_MAX_TOKENS", 512, log),
		CanonicalTopTags:   utils.GetEnvAsInt("CANONICAL_TOP_TAGS", 5, log),

		Features: Features{
			SemanticSearch: utils.GetEnvAsBool("FEATURE_SEMANTIC_SEARCH", true, log),
			HybridRRF:      utils.GetEnvAsBool("FEATURE_HYBRID_RRF", false, log),
			ANNTuning:      utils.GetEnvAsBool("FEATURE_ANN_TUNING", false, log),
			CanonicalTrim:  utils.GetEnvAsBool("FEATURE_CANONICAL_TRIM", false, log),
			FaceEnrollment: utils.GetEnvAsBool("FEATURE_FACE_ENROLLMENT", false, log),
			FaceDetection:  utils.GetEnvAsBool("FEATURE_FACE_DETECTION", false, log),
		},
		Search: SearchConfig{
			TextWeight:     utils.GetEnvAsFloat("SEARCH_TEXT_WEIGHT", 0.5, log),
			VisionWeight:   utils.GetEnvAsFloat("SEARCH_VISION_WEIGHT", 0.35, log),
			TagWeight:      utils.GetEnvAsFloat("SEARCH_TAG_WEIGHT", 0.15, log),
			PersonBoost:    utils.GetEnvAsFloat("SEARCH_PERSON_BOOST", 0.3, log),
			EfSearch:       utils.GetEnvAsInt("EF_SEARCH", 100, log),
			TopKCandidates: utils.GetEnvAsInt("TOPK_CANDIDATES", 200, log),
			FinalLimit:     utils.GetEnvAsInt("FINAL_LIMIT", 20, log),
			RRFK:           utils.GetEnvAsInt("RRF_K", 60, log),
			BM25Weight:     utils.GetEnvAsFloat("BM25_WEIGHT", 0.3, log),
			VectorWeight:   utils.GetEnvAsFloat("VECTOR_WEIGHT", 0.7, log),
		},
		Models: ModelConfig{
			ASRModel:         utils.GetEnv("ASR_MODEL", "whisper-large-v3", log),
			TextEmbedModel:   utils.GetEnv("TEXT_EMBED_MODEL", "siglip2-so400m", log),
			VisionEmbedModel: utils.GetEnv("VISION_EMBED_MODEL", "siglip2-so400m", log),
			FaceModel:        utils.GetEnv("FACE_MODEL", "adaface-ir101", log),
			TextEmbedDim:     utils.GetEnvAsInt("TEXT_EMBED_DIM", 1152, log),
			VisionEmbedDim:   utils.GetEnvAsInt("VISION_EMBED_DIM", 1152, log),
			FaceEmbedDim:     utils.GetEnvAsInt("FACE_EMBED_DIM", 512, log),
			ASRLanguageHint:  utils.GetEnv("ASR_LANGUAGE_HINT", "", log),
		},
	}
}
