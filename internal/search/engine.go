package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/yungbote/scenedex-backend/internal/config"
	"github.com/yungbote/scenedex-backend/internal/inference/client"
	"github.com/yungbote/scenedex-backend/internal/logger"
	"github.com/yungbote/scenedex-backend/internal/vectors"
)

type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

var (
	ErrEmptyQuery       = fmt.Errorf("search query is empty")
	ErrUnknownMode      = fmt.Errorf("unknown search mode")
	ErrSemanticDisabled = fmt.Errorf("semantic search is disabled")
	ErrHybridDisabled   = fmt.Errorf("hybrid search is disabled")
)

// Keyword scoring: metadata fields dominate, a transcript substring match
// adds a fixed bonus on top.
const (
	keywordMetadataWeight   = 0.4
	keywordTranscriptWeight = 0.2
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Request carries one retrieval call. PersonID restricts every mode to
// scenes with a matching person link. MinDurationS/MaxDurationS bound the
// scene length in seconds. TextWeight/VisionWeight override the configured
// semantic weights for this call only; values are clamped to [0,1].
type Request struct {
	OwnerID      uuid.UUID
	Query        string
	Mode         Mode
	PersonID     *uuid.UUID
	MinDurationS *float64
	MaxDurationS *float64
	TextWeight   *float64
	VisionWeight *float64
	Limit        int
	Offset       int
}

type Result struct {
	SceneID      uuid.UUID `gorm:"column:scene_id" json:"scene_id"`
	VideoID      uuid.UUID `gorm:"column:video_id" json:"video_id"`
	VideoTitle   string    `gorm:"column:video_title" json:"video_title,omitempty"`
	StartS       float64   `gorm:"column:start_s" json:"start_s"`
	EndS         float64   `gorm:"column:end_s" json:"end_s"`
	Transcript   string    `gorm:"column:transcript" json:"transcript,omitempty"`
	ThumbnailKey string    `gorm:"column:thumbnail_key" json:"-"`
	ThumbnailURL string    `gorm:"-" json:"thumbnail_url,omitempty"`
	Score        float64   `gorm:"column:score" json:"score"`
}

/*
Engine answers scene retrieval in three modes over the same owner-scoped
corpus of indexed videos:

	keyword   metadata and transcript substring scoring, no model calls
	semantic  query embedding against the pgvector columns
	hybrid    reciprocal rank fusion of tsv BM25 and vector ranks

Query embeddings go through a small LRU so repeated queries skip the
inference round trip.
*/
type Engine struct {
	log   *logger.Logger
	db    *gorm.DB
	cfg   config.Config
	inf   *client.Client
	cache *client.QueryCache
}

func NewEngine(db *gorm.DB, baseLog *logger.Logger, cfg config.Config, inf *client.Client) *Engine {
	return &Engine{
		log:   baseLog.With("component", "SearchEngine"),
		db:    db,
		cfg:   cfg,
		inf:   inf,
		cache: client.NewQueryCache(128),
	}
}

func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	req.Limit = clampLimit(req.Limit)
	if req.Offset < 0 {
		req.Offset = 0
	}
	switch req.Mode {
	case ModeKeyword, "":
		return e.keyword(ctx, req)
	case ModeSemantic:
		if !e.cfg.Features.SemanticSearch {
			return nil, ErrSemanticDisabled
		}
		return e.semantic(ctx, req)
	case ModeHybrid:
		if !e.cfg.Features.SemanticSearch || !e.cfg.Features.HybridRRF {
			return nil, ErrHybridDisabled
		}
		return e.hybrid(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
}

func (e *Engine) keyword(ctx context.Context, req Request) ([]Result, error) {
	like := "%" + req.Query + "%"
	personID := personFilter(req)
	minDur, maxDur := durationBounds(req)
	var out []Result
	err := e.db.WithContext(ctx).Raw(`
SELECT
  s.id AS scene_id,
  s.video_id,
  COALESCE(m.title, '') AS video_title,
  s.start_s,
  s.end_s,
  COALESCE(s.transcript, '') AS transcript,
  COALESCE(s.thumbnail_key, '') AS thumbnail_key,
  (? * GREATEST(
      CASE WHEN lower(COALESCE(m.title, '')) = lower(?) THEN 1.0 ELSE 0 END,
      CASE WHEN COALESCE(m.title, '') ILIKE ? THEN 0.8 ELSE 0 END,
      CASE WHEN v.storage_key ILIKE ? THEN 0.7 ELSE 0 END,
      CASE WHEN COALESCE(m.description, '') ILIKE ? THEN 0.6 ELSE 0 END,
      CASE WHEN COALESCE(m.tags::text, '') ILIKE ? THEN 0.5 ELSE 0 END)
   + ? * CASE WHEN COALESCE(s.transcript, '') ILIKE ? THEN 1.0 ELSE 0 END) AS score
FROM scene s
JOIN video v ON v.id = s.video_id
LEFT JOIN video_metadata m ON m.video_id = v.id
WHERE v.owner_id = ?
  AND v.state = 'indexed'
  AND (?::uuid = '00000000-0000-0000-0000-000000000000'::uuid OR EXISTS (
        SELECT 1 FROM scene_person sp
        WHERE sp.scene_id = s.id AND sp.person_id = ?::uuid))
  AND (?::float8 < 0 OR (s.end_s - s.start_s) >= ?::float8)
  AND (?::float8 < 0 OR (s.end_s - s.start_s) <= ?::float8)
  AND (
    COALESCE(m.title, '') ILIKE ?
    OR v.storage_key ILIKE ?
    OR COALESCE(m.description, '') ILIKE ?
    OR COALESCE(m.tags::text, '') ILIKE ?
    OR COALESCE(s.transcript, '') ILIKE ?
  )
ORDER BY score DESC, v.created_at DESC
LIMIT ? OFFSET ?`,
		keywordMetadataWeight, req.Query, like, like, like, like,
		keywordTranscriptWeight, like,
		req.OwnerID,
		personID, personID,
		minDur, minDur,
		maxDur, maxDur,
		like, like, like, like, like,
		req.Limit, req.Offset,
	).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return out, nil
}

/*
semantic ranks a candidate pool by weighted cosine similarity. The inner
query pulls the closest candidates by raw vector distance (cheap, index
assisted); the outer query reranks them with the text, vision and tag
weights plus the person boost when the person filter matches. When ANN
tuning is on, hnsw.ef_search is pinned for the transaction so recall is
stable under load, and the reranked page is truncated to the configured
final limit.
*/
func (e *Engine) semantic(ctx context.Context, req Request) ([]Result, error) {
	qv, err := e.queryEmbedding(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := pgvector.NewVector(qv)
	like := "%" + req.Query + "%"

	personID := personFilter(req)
	minDur, maxDur := durationBounds(req)
	boost := 0.0
	if req.PersonID != nil {
		boost = e.cfg.Search.PersonBoost
	}
	textW := clampWeight(req.TextWeight, e.cfg.Search.TextWeight)
	visionW := clampWeight(req.VisionWeight, e.cfg.Search.VisionWeight)

	limit := req.Limit
	if e.cfg.Features.ANNTuning && limit > e.cfg.Search.FinalLimit {
		limit = e.cfg.Search.FinalLimit
	}

	var out []Result
	run := func(tx *gorm.DB) error {
		return tx.Raw(`
WITH candidates AS (
  SELECT s.*
  FROM scene s
  JOIN video v ON v.id = s.video_id
  WHERE v.owner_id = ?
    AND v.state = 'indexed'
    AND (s.text_vec IS NOT NULL OR s.image_vec IS NOT NULL)
    AND (?::uuid = '00000000-0000-0000-0000-000000000000'::uuid OR EXISTS (
          SELECT 1 FROM scene_person sp
          WHERE sp.scene_id = s.id AND sp.person_id = ?::uuid))
    AND (?::float8 < 0 OR (s.end_s - s.start_s) >= ?::float8)
    AND (?::float8 < 0 OR (s.end_s - s.start_s) <= ?::float8)
  ORDER BY LEAST(
    COALESCE(s.text_vec <=> ?, 2.0),
    COALESCE(s.image_vec <=> ?, 2.0)) ASC
  LIMIT ?
)
SELECT
  c.id AS scene_id,
  c.video_id,
  COALESCE(m.title, '') AS video_title,
  c.start_s,
  c.end_s,
  COALESCE(c.transcript, '') AS transcript,
  COALESCE(c.thumbnail_key, '') AS thumbnail_key,
  (? * CASE WHEN c.text_vec IS NOT NULL
        THEN LEAST(GREATEST(1 - (c.text_vec <=> ?), 0), 1) ELSE 0 END
 + ? * CASE WHEN c.image_vec IS NOT NULL
        THEN LEAST(GREATEST(1 - (c.image_vec <=> ?), 0), 1) ELSE 0 END
 + ? * CASE WHEN COALESCE(c.vision_tags::text, '') ILIKE ? THEN 1.0 ELSE 0 END
 + CASE WHEN ?::uuid <> '00000000-0000-0000-0000-000000000000'::uuid
         AND EXISTS (
           SELECT 1 FROM scene_person sp
           WHERE sp.scene_id = c.id AND sp.person_id = ?::uuid)
        THEN ? ELSE 0 END) AS score
FROM candidates c
JOIN video v ON v.id = c.video_id
LEFT JOIN video_metadata m ON m.video_id = c.video_id
ORDER BY score DESC
LIMIT ? OFFSET ?`,
			req.OwnerID,
			personID, personID,
			minDur, minDur,
			maxDur, maxDur,
			vec, vec, e.cfg.Search.TopKCandidates,
			textW, vec,
			visionW, vec,
			e.cfg.Search.TagWeight, like,
			personID, personID, boost,
			limit, req.Offset,
		).Scan(&out).Error
	}

	if e.cfg.Features.ANNTuning {
		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", e.cfg.Search.EfSearch)).Error; err != nil {
				return err
			}
			return run(tx)
		})
	} else {
		err = run(e.db.WithContext(ctx))
	}
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return out, nil
}

/*
hybrid fuses a lexical ranking (ts_rank over the generated tsv column) with
a vector ranking of the same query using reciprocal rank fusion:

	score = bm25_weight/(k + lexical_rank) + vector_weight/(k + vector_rank)

A scene present in only one list still scores through that list alone.
*/
func (e *Engine) hybrid(ctx context.Context, req Request) ([]Result, error) {
	qv, err := e.queryEmbedding(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := pgvector.NewVector(qv)
	k := e.cfg.Search.RRFK
	topk := e.cfg.Search.TopKCandidates
	personID := personFilter(req)
	minDur, maxDur := durationBounds(req)

	var out []Result
	err = e.db.WithContext(ctx).Raw(`
WITH lexical AS (
  SELECT id, rank FROM (
    SELECT s.id,
           ROW_NUMBER() OVER (
             ORDER BY ts_rank(s.tsv, plainto_tsquery('english', ?)) DESC, s.id) AS rank
    FROM scene s
    JOIN video v ON v.id = s.video_id
    WHERE v.owner_id = ?
      AND v.state = 'indexed'
      AND s.tsv @@ plainto_tsquery('english', ?)
      AND (?::uuid = '00000000-0000-0000-0000-000000000000'::uuid OR EXISTS (
            SELECT 1 FROM scene_person sp
            WHERE sp.scene_id = s.id AND sp.person_id = ?::uuid))
      AND (?::float8 < 0 OR (s.end_s - s.start_s) >= ?::float8)
      AND (?::float8 < 0 OR (s.end_s - s.start_s) <= ?::float8)
  ) lx
  WHERE rank <= ?
),
vector AS (
  SELECT id, rank FROM (
    SELECT s.id,
           ROW_NUMBER() OVER (ORDER BY s.text_vec <=> ? ASC, s.id) AS rank
    FROM scene s
    JOIN video v ON v.id = s.video_id
    WHERE v.owner_id = ?
      AND v.state = 'indexed'
      AND s.text_vec IS NOT NULL
      AND (?::uuid = '00000000-0000-0000-0000-000000000000'::uuid OR EXISTS (
            SELECT 1 FROM scene_person sp
            WHERE sp.scene_id = s.id AND sp.person_id = ?::uuid))
      AND (?::float8 < 0 OR (s.end_s - s.start_s) >= ?::float8)
      AND (?::float8 < 0 OR (s.end_s - s.start_s) <= ?::float8)
  ) vx
  WHERE rank <= ?
),
fused AS (
  SELECT COALESCE(lexical.id, vector.id) AS id,
         COALESCE(? / (? + lexical.rank), 0)
       + COALESCE(? / (? + vector.rank), 0) AS score
  FROM lexical
  FULL OUTER JOIN vector ON lexical.id = vector.id
)
SELECT
  s.id AS scene_id,
  s.video_id,
  COALESCE(m.title, '') AS video_title,
  s.start_s,
  s.end_s,
  COALESCE(s.transcript, '') AS transcript,
  COALESCE(s.thumbnail_key, '') AS thumbnail_key,
  fused.score AS score
FROM fused
JOIN scene s ON s.id = fused.id
LEFT JOIN video_metadata m ON m.video_id = s.video_id
ORDER BY fused.score DESC
LIMIT ? OFFSET ?`,
		req.Query, req.OwnerID, req.Query,
		personID, personID, minDur, minDur, maxDur, maxDur, topk,
		vec, req.OwnerID,
		personID, personID, minDur, minDur, maxDur, maxDur, topk,
		e.cfg.Search.BM25Weight, k,
		e.cfg.Search.VectorWeight, k,
		req.Limit, req.Offset,
	).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	return out, nil
}

// queryEmbedding returns the unit-normalized embedding for a query string,
// serving repeats out of the LRU.
func (e *Engine) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := e.cache.Get(query); ok {
		return vec, nil
	}
	raw, err := e.inf.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}
	vec := vectors.Normalize(raw)
	if vec == nil {
		return nil, fmt.Errorf("query embedding has zero norm")
	}
	e.cache.Put(query, vec)
	return vec, nil
}

// RRFScore is the fusion formula used by hybrid mode, exported for scoring
// parity checks.
func RRFScore(bm25Weight, vectorWeight float64, k int, lexicalRank, vectorRank int) float64 {
	score := 0.0
	if lexicalRank > 0 {
		score += bm25Weight / float64(k+lexicalRank)
	}
	if vectorRank > 0 {
		score += vectorWeight / float64(k+vectorRank)
	}
	return score
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// clampWeight resolves a per-request weight override against its configured
// fallback, bounded to [0,1].
func clampWeight(override *float64, fallback float64) float64 {
	if override == nil {
		return fallback
	}
	w := *override
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// personFilter flattens the optional person filter into the nil-UUID
// sentinel the SQL tests against.
func personFilter(req Request) uuid.UUID {
	if req.PersonID != nil {
		return *req.PersonID
	}
	return uuid.Nil
}

// durationBounds flattens the optional scene-length bounds; -1 disables a
// side of the filter.
func durationBounds(req Request) (minDur, maxDur float64) {
	minDur, maxDur = -1, -1
	if req.MinDurationS != nil && *req.MinDurationS > 0 {
		minDur = *req.MinDurationS
	}
	if req.MaxDurationS != nil && *req.MaxDurationS > 0 {
		maxDur = *req.MaxDurationS
	}
	return minDur, maxDur
}
