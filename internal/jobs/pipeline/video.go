package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/scenedex-backend/internal/config"
	"github.com/yungbote/scenedex-backend/internal/faces"
	"github.com/yungbote/scenedex-backend/internal/inference/client"
	"github.com/yungbote/scenedex-backend/internal/jobs"
	"github.com/yungbote/scenedex-backend/internal/logger"
	"github.com/yungbote/scenedex-backend/internal/repos"
	"github.com/yungbote/scenedex-backend/internal/search"
	"github.com/yungbote/scenedex-backend/internal/services"
	"github.com/yungbote/scenedex-backend/internal/sidecar"
	"github.com/yungbote/scenedex-backend/internal/types"
	"github.com/yungbote/scenedex-backend/internal/vectors"
)

const (
	StageUploadValidate = "upload_validate"
	StageAudioExtract   = "audio_extract"
	StageASR            = "asr"
	StageSceneDetect    = "scene_detect"
	StagePerSceneEmbed  = "per_scene_embed"
	StageFaceMatch      = "per_scene_face_match"
	StageSidecarBuild   = "sidecar_build"
	StageCommit         = "commit"
)

// frameFractions are the sample points inside each scene for vision
// embedding; the middle one doubles as the thumbnail and face-match frame.
var frameFractions = []float64{0.25, 0.5, 0.75}

/*
VideoPipeline is the process_video handler. One claimed job run drives a
video from validating to indexed (or failed):

	upload_validate -> audio_extract -> asr -> scene_detect ->
	per_scene_embed (+face match) -> sidecar_build -> commit

Media and transcript failures before scene insert fail the video; ASR and
per-scene embedding degrade softly so a silent or partially unembeddable
video still indexes for keyword search.
*/
type VideoPipeline struct {
	log         *logger.Logger
	db          *gorm.DB
	cfg         config.Config
	videos      repos.VideoRepo
	scenes      repos.SceneRepo
	scenePeople repos.ScenePersonRepo
	faces       repos.FaceProfileRepo
	audits      repos.JobRepo
	bucket      services.BucketService
	media       services.MediaToolsService
	inf         *client.Client
}

func NewVideoPipeline(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.Config,
	videos repos.VideoRepo,
	scenes repos.SceneRepo,
	scenePeople repos.ScenePersonRepo,
	faceProfiles repos.FaceProfileRepo,
	audits repos.JobRepo,
	bucket services.BucketService,
	media services.MediaToolsService,
	inf *client.Client,
) *VideoPipeline {
	return &VideoPipeline{
		log:         baseLog.With("handler", "VideoPipeline"),
		db:          db,
		cfg:         cfg,
		videos:      videos,
		scenes:      scenes,
		scenePeople: scenePeople,
		faces:       faceProfiles,
		audits:      audits,
		bucket:      bucket,
		media:       media,
		inf:         inf,
	}
}

func (p *VideoPipeline) Type() string { return types.JobTypeProcessVideo }

// sceneBuild is the per-interval working set assembled during fan-out and
// persisted in one transaction afterwards.
type sceneBuild struct {
	interval   services.SceneInterval
	transcript string
	segments   []client.TranscriptSegment
	textVec    []float32
	imageVec   []float32
	people     []personMatch

	row *types.Scene
}

type personMatch struct {
	profileID  uuid.UUID
	name       string
	confidence float64
	frameCount int
}

func (p *VideoPipeline) Run(jc *jobs.Context) error {
	ctx := jc.Ctx
	videoID, ok := jc.PayloadUUID("video_id")
	if !ok {
		failFatal(jc, "payload", fmt.Errorf("payload missing video_id"))
		return nil
	}
	log := p.log.With("video_id", videoID, "job_run_id", jc.Job.ID)

	video, err := p.videos.GetByID(ctx, nil, videoID)
	if err != nil {
		jc.Fail("load", fmt.Errorf("load video: %w", err))
		return err
	}
	if video == nil {
		failFatal(jc, "load", fmt.Errorf("video %s not found", videoID))
		return nil
	}

	switch video.State {
	case types.VideoStateIndexed:
		// Duplicate delivery after a successful run; acknowledge.
		jc.Succeed(StageCommit, map[string]any{"noop": true, "reason": "already indexed"})
		return nil
	case types.VideoStateDeleted:
		jc.Succeed(StageCommit, map[string]any{"noop": true, "reason": "video deleted"})
		return nil
	case types.VideoStateFailed:
		failFatal(jc, "load", fmt.Errorf("video %s is in terminal state failed", videoID))
		return nil
	}

	scratch, cleanup, err := p.media.NewScratchDir(ctx, "video-"+videoID.String()[:8]+"-")
	if err != nil {
		jc.Fail("scratch", fmt.Errorf("scratch dir: %w", err))
		return err
	}
	defer cleanup()

	// ---- upload_validate ----
	jc.Progress(StageUploadValidate, 5, "validating upload")
	audit := p.beginStage(ctx, videoID, StageUploadValidate)
	videoPath, res := p.stageUploadValidate(ctx, video, scratch)
	p.endStage(ctx, audit, res)
	if res.Kind != StageOk {
		p.failVideo(ctx, jc, video, StageUploadValidate, res)
		return nil
	}

	// ---- audio_extract ----
	jc.Progress(StageAudioExtract, 15, "extracting audio")
	audit = p.beginStage(ctx, videoID, StageAudioExtract)
	audioPath, res := p.stageAudioExtract(ctx, videoPath, scratch)
	p.endStage(ctx, audit, res)
	if res.Kind != StageOk {
		p.failVideo(ctx, jc, video, StageAudioExtract, res)
		return nil
	}

	// ---- asr (soft) ----
	var transcript *client.TranscribeResponse
	jc.Progress(StageASR, 30, "transcribing audio")
	audit = p.beginStage(ctx, videoID, StageASR)
	transcript, res = p.stageASR(ctx, audioPath)
	p.endStage(ctx, audit, res)
	if res.Kind == StageTransient {
		jc.Fail(StageASR, fmt.Errorf("%s", res.Reason))
		return nil
	}
	if res.Kind == StageSoftDegrade {
		log.Warn("ASR degraded; indexing without transcript", "reason", res.Reason)
		transcript = nil
	}

	// ---- scene_detect ----
	jc.Progress(StageSceneDetect, 45, "detecting scenes")
	audit = p.beginStage(ctx, videoID, StageSceneDetect)
	intervals, res := p.stageSceneDetect(ctx, videoPath, video)
	p.endStage(ctx, audit, res)
	if res.Kind != StageOk {
		p.failVideo(ctx, jc, video, StageSceneDetect, res)
		return nil
	}

	// ---- per_scene_embed (+ optional face match) ----
	jc.Progress(StagePerSceneEmbed, 55, fmt.Sprintf("embedding %d scenes", len(intervals)))
	audit = p.beginStage(ctx, videoID, StagePerSceneEmbed)
	builds, res := p.stagePerSceneEmbed(ctx, video, videoPath, scratch, intervals, transcript)
	p.endStage(ctx, audit, res)
	if res.Kind == StageTransient {
		jc.Fail(StagePerSceneEmbed, fmt.Errorf("%s", res.Reason))
		return nil
	}
	if res.Kind == StageFatal {
		p.failVideo(ctx, jc, video, StagePerSceneEmbed, res)
		return nil
	}

	// ---- persist scenes in one transaction ----
	jc.Progress(StagePerSceneEmbed, 75, "persisting scenes")
	if err := p.persistScenes(ctx, video, builds); err != nil {
		jc.Fail(StagePerSceneEmbed, fmt.Errorf("persist scenes: %w", err))
		return err
	}

	// ---- sidecar_build (thumbnails + sidecars, soft per scene) ----
	jc.Progress(StageSidecarBuild, 85, "building thumbnails and sidecars")
	audit = p.beginStage(ctx, videoID, StageSidecarBuild)
	degraded := p.stageSidecarBuild(ctx, video, videoPath, scratch, builds, transcript)
	if degraded > 0 {
		p.endStage(ctx, audit, SoftDegrade(fmt.Sprintf("%d scene artifacts failed", degraded)))
	} else {
		p.endStage(ctx, audit, Ok())
	}

	// ---- commit ----
	audit = p.beginStage(ctx, videoID, StageCommit)
	now := time.Now()
	if err := p.videos.TransitionState(ctx, nil, video.ID, types.VideoStateProcessing, types.VideoStateIndexed, map[string]interface{}{
		"indexed_at": now,
		"error_text": "",
	}); err != nil {
		p.endStage(ctx, audit, Fatal(ErrClassConflict, err.Error()))
		jc.Fail(StageCommit, fmt.Errorf("commit transition: %w", err))
		return err
	}
	p.endStage(ctx, audit, Ok())

	log.Info("Video indexed", "scenes", len(builds))
	jc.Succeed(StageCommit, map[string]any{
		"scenes":     len(builds),
		"duration_s": derefFloat(video.DurationS),
		"degraded":   degraded,
	})
	return nil
}

// stageUploadValidate downloads the source object, probes it and moves the
// video into processing. Returns the local path of the downloaded source.
func (p *VideoPipeline) stageUploadValidate(ctx context.Context, video *types.Video, scratch string) (string, StageResult) {
	if video.State == types.VideoStateUploading {
		if err := p.videos.TransitionState(ctx, nil, video.ID, types.VideoStateUploading, types.VideoStateValidating, nil); err != nil {
			return "", Fatal(ErrClassConflict, fmt.Sprintf("video not ready for validation: %v", err))
		}
		video.State = types.VideoStateValidating
	}

	attrs, err := p.bucket.GetObjectAttrs(ctx, services.BucketCategoryUpload, video.StorageKey)
	if err != nil {
		return "", Transient(fmt.Sprintf("stat upload object: %v", err))
	}
	if attrs.Size <= 0 {
		return "", Fatal(ErrClassInvalidMedia, "uploaded object is empty")
	}
	if attrs.Size > p.cfg.MaxVideoBytes {
		return "", Fatal(ErrClassInvalidMedia, fmt.Sprintf("uploaded object is %d bytes, limit is %d", attrs.Size, p.cfg.MaxVideoBytes))
	}

	videoPath := filepath.Join(scratch, "source"+extForMime(video.MimeType))
	if err := p.downloadTo(ctx, services.BucketCategoryUpload, video.StorageKey, videoPath); err != nil {
		return "", Transient(fmt.Sprintf("download upload object: %v", err))
	}

	dur, err := p.media.ProbeDuration(ctx, videoPath)
	if err != nil {
		return "", Fatal(ErrClassMediaDecode, fmt.Sprintf("probe failed: %v", err))
	}
	if dur <= 0 {
		return "", Fatal(ErrClassInvalidMedia, "probed duration is zero")
	}
	if dur > p.cfg.MaxVideoDurationS {
		return "", Fatal(ErrClassInvalidMedia, fmt.Sprintf("duration %.1fs exceeds limit %.0fs", dur, p.cfg.MaxVideoDurationS))
	}

	if err := p.videos.UpdateFields(ctx, nil, video.ID, map[string]interface{}{
		"duration_s": dur,
		"size_bytes": attrs.Size,
	}); err != nil {
		return "", Transient(fmt.Sprintf("record duration: %v", err))
	}
	video.DurationS = &dur
	video.SizeBytes = attrs.Size

	if video.State == types.VideoStateValidating {
		if err := p.videos.TransitionState(ctx, nil, video.ID, types.VideoStateValidating, types.VideoStateProcessing, nil); err != nil {
			return "", Fatal(ErrClassConflict, fmt.Sprintf("enter processing: %v", err))
		}
		video.State = types.VideoStateProcessing
	}
	return videoPath, Ok()
}

// stageAudioExtract produces the canonical 16 kHz mono wav. A decode failure
// fails the whole video; only the transcript stages degrade softly.
func (p *VideoPipeline) stageAudioExtract(ctx context.Context, videoPath, scratch string) (string, StageResult) {
	outPath := filepath.Join(scratch, "audio.wav")
	res := runStage(ctx, stagePolicy{name: StageAudioExtract, maxRetries: 1}, func(ctx context.Context) error {
		_, err := p.media.ExtractAudio(ctx, videoPath, outPath, services.AudioExtractOptions{
			SampleRateHz: 16000,
			Channels:     1,
		})
		if err != nil && Classify(err) != StageTransient {
			return &FatalMediaError{Class: ErrClassMediaDecode, Reason: err.Error()}
		}
		return err
	})
	if res.Kind != StageOk {
		return "", res
	}
	return outPath, res
}

func (p *VideoPipeline) stageASR(ctx context.Context, audioPath string) (*client.TranscribeResponse, StageResult) {
	if audioPath == "" {
		return nil, SoftDegrade("no audio track")
	}
	raw, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, SoftDegrade(fmt.Sprintf("read audio: %v", err))
	}
	var out *client.TranscribeResponse
	res := runStage(ctx, stagePolicy{name: StageASR, soft: true, maxRetries: 2}, func(ctx context.Context) error {
		tr, err := p.inf.TranscribeAudio(ctx, base64.StdEncoding.EncodeToString(raw), p.cfg.Models.ASRLanguageHint)
		if err != nil {
			return err
		}
		out = tr
		return nil
	})
	if res.Kind != StageOk {
		return nil, res
	}
	return out, res
}

func (p *VideoPipeline) stageSceneDetect(ctx context.Context, videoPath string, video *types.Video) ([]services.SceneInterval, StageResult) {
	dur := derefFloat(video.DurationS)
	intervals, err := p.media.DetectScenes(ctx, videoPath, dur, p.cfg.SceneThreshold)
	if err != nil {
		return nil, Fatal(ErrClassMediaDecode, fmt.Sprintf("scene detect: %v", err))
	}
	if len(intervals) == 0 {
		return nil, Fatal(ErrClassMediaDecode, "scene detect produced no intervals")
	}
	return intervals, Ok()
}

/*
stagePerSceneEmbed fans out over the detected intervals with bounded
concurrency. Per scene it slices the transcript, embeds the text input,
samples frames for vision embedding, and (behind the face flags) matches
detected faces against the owner's enrolled profiles. Individual embedding
failures leave the corresponding vector nil rather than failing the video.
*/
func (p *VideoPipeline) stagePerSceneEmbed(ctx context.Context, video *types.Video, videoPath, scratch string, intervals []services.SceneInterval, transcript *client.TranscribeResponse) ([]*sceneBuild, StageResult) {
	var profiles []*types.FaceProfile
	if p.cfg.Features.FaceDetection && p.cfg.Features.FaceEnrollment {
		var err error
		profiles, err = p.faces.ListEmbeddedByOwner(ctx, nil, video.OwnerID)
		if err != nil {
			return nil, Transient(fmt.Sprintf("list face profiles: %v", err))
		}
	}

	builds := make([]*sceneBuild, len(intervals))
	g, gctx := errgroup.WithContext(ctx)
	fanout := p.cfg.SceneFanout
	if fanout <= 0 {
		fanout = 4
	}
	g.SetLimit(fanout)

	for i, interval := range intervals {
		g.Go(func() error {
			b := &sceneBuild{interval: interval}
			b.segments, b.transcript = sliceTranscript(transcript, interval.StartS, interval.EndS)

			frames := p.sampleFrames(gctx, videoPath, scratch, i, interval)
			if len(frames) > 0 {
				if vec := p.embedFramesSoft(gctx, frames); vec != nil {
					b.imageVec = vec
				}
				if len(profiles) > 0 {
					b.people = p.matchFaces(gctx, frames[len(frames)/2], profiles)
				}
			}

			if vec := p.embedTextSoft(gctx, p.sceneTextInput(b, video)); vec != nil {
				b.textVec = vec
			}
			builds[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Transient(fmt.Sprintf("scene fan-out: %v", err))
	}
	return builds, Ok()
}

// sceneTextInput picks what to embed for a scene. The canonical composition
// (transcript plus matched person names, trimmed to the token budget) only
// applies behind its feature flag; otherwise the raw transcript with the
// title/placeholder fallback is used as is.
func (p *VideoPipeline) sceneTextInput(b *sceneBuild, video *types.Video) string {
	if !p.cfg.Features.CanonicalTrim {
		return textEmbedInput(b.transcript, video)
	}
	// People are matched before text embedding so the canonical form can
	// mention them.
	names := make([]string, 0, len(b.people))
	for _, m := range b.people {
		names = append(names, m.name)
	}
	textInput := search.Canonical(b.transcript, nil, names, p.cfg.CanonicalTopTags)
	if textInput == "" {
		textInput = textEmbedInput("", video)
	}
	return search.TrimTokens(textInput, p.cfg.CanonicalMaxTokens)
}

func (p *VideoPipeline) embedTextSoft(ctx context.Context, text string) []float32 {
	var out []float32
	res := runStage(ctx, stagePolicy{name: "embed_text", soft: true, maxRetries: 2}, func(ctx context.Context) error {
		vec, err := p.inf.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		out = vectors.Normalize(vec)
		return nil
	})
	if res.Kind != StageOk {
		return nil
	}
	return out
}

// sampleFrames extracts frames at the configured fractions of the interval.
// Extraction failures just shrink the sample set.
func (p *VideoPipeline) sampleFrames(ctx context.Context, videoPath, scratch string, sceneIdx int, interval services.SceneInterval) []string {
	out := []string{}
	for j, f := range frameFractions {
		at := interval.StartS + f*(interval.EndS-interval.StartS)
		path := filepath.Join(scratch, fmt.Sprintf("scene%04d-frame%d.jpg", sceneIdx, j))
		if _, err := p.media.ExtractFrameAt(ctx, videoPath, at, path); err != nil {
			p.log.Warn("Frame extraction failed", "scene_index", sceneIdx, "at_s", at, "error", err)
			continue
		}
		out = append(out, path)
	}
	return out
}

// embedFramesSoft embeds every sampled frame and averages the successful
// ones into one unit vector.
func (p *VideoPipeline) embedFramesSoft(ctx context.Context, framePaths []string) []float32 {
	embeds := [][]float32{}
	for _, path := range framePaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var vec []float32
		res := runStage(ctx, stagePolicy{name: "embed_vision", soft: true, maxRetries: 2}, func(ctx context.Context) error {
			v, err := p.inf.EmbedVision(ctx, base64.StdEncoding.EncodeToString(raw))
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
		if res.Kind == StageOk && vec != nil {
			embeds = append(embeds, vec)
		}
	}
	if len(embeds) == 0 {
		return nil
	}
	mean, err := vectors.Mean(embeds)
	if err != nil {
		return nil
	}
	return vectors.Normalize(mean)
}

/*
matchFaces runs detection on one frame and compares each detected face
embedding with every enrolled centroid. A profile links to the scene when
its best similarity across faces clears the configured threshold.
*/
func (p *VideoPipeline) matchFaces(ctx context.Context, framePath string, profiles []*types.FaceProfile) []personMatch {
	raw, err := os.ReadFile(framePath)
	if err != nil {
		return nil
	}
	det, err := p.inf.DetectFaces(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil || det == nil || len(det.Faces) == 0 {
		return nil
	}
	frame, _, err := image.Decode(strings.NewReader(string(raw)))
	if err != nil {
		return nil
	}

	faceEmbeds := [][]float32{}
	for _, f := range det.Faces {
		// bbox is x1,y1,x2,y2 in pixels.
		box := faces.BBox{
			X: f.BBox[0],
			Y: f.BBox[1],
			W: f.BBox[2] - f.BBox[0],
			H: f.BBox[3] - f.BBox[1],
		}
		emb, err := faces.EmbedFace(frame, box)
		if err != nil {
			continue
		}
		faceEmbeds = append(faceEmbeds, emb)
	}
	if len(faceEmbeds) == 0 {
		return nil
	}

	out := []personMatch{}
	for _, profile := range profiles {
		if profile.CentroidVec == nil {
			continue
		}
		centroid := profile.CentroidVec.Slice()
		best := 0.0
		for _, emb := range faceEmbeds {
			if sim := vectors.CosineSimilarity(emb, centroid); sim > best {
				best = sim
			}
		}
		if best >= p.cfg.FaceSimThreshold {
			out = append(out, personMatch{
				profileID:  profile.ID,
				name:       profile.Name,
				confidence: best,
				frameCount: 1,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].confidence > out[j].confidence })
	return out
}

// persistScenes replaces the video's scene rows atomically: previous rows
// (from an earlier partial run) are removed and the new set plus person
// links is inserted in one transaction.
func (p *VideoPipeline) persistScenes(ctx context.Context, video *types.Video, builds []*sceneBuild) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.scenes.DeleteByVideo(ctx, tx, video.ID); err != nil {
			return err
		}
		rows := make([]*types.Scene, 0, len(builds))
		for _, b := range builds {
			row := &types.Scene{
				VideoID: video.ID,
				StartS:  b.interval.StartS,
				EndS:    b.interval.EndS,
			}
			if b.transcript != "" {
				t := b.transcript
				row.Transcript = &t
			}
			if b.textVec != nil {
				v := pgvector.NewVector(b.textVec)
				row.TextVec = &v
			}
			if b.imageVec != nil {
				v := pgvector.NewVector(b.imageVec)
				row.ImageVec = &v
			}
			rows = append(rows, row)
			b.row = row
		}
		if _, err := p.scenes.BulkCreate(ctx, tx, rows); err != nil {
			return err
		}

		links := []*types.ScenePerson{}
		for _, b := range builds {
			for _, m := range b.people {
				links = append(links, &types.ScenePerson{
					SceneID:    b.row.ID,
					PersonID:   m.profileID,
					Confidence: m.confidence,
					FrameCount: m.frameCount,
				})
			}
		}
		return p.scenePeople.BulkCreate(ctx, tx, links)
	})
}

// stageSidecarBuild uploads a thumbnail and a sidecar document per scene and
// stamps the object keys onto the row. Returns the number of scenes whose
// artifacts could not be produced.
func (p *VideoPipeline) stageSidecarBuild(ctx context.Context, video *types.Video, videoPath, scratch string, builds []*sceneBuild, transcript *client.TranscribeResponse) int {
	degraded := 0
	language := ""
	if transcript != nil {
		language = transcript.Language
	}
	for i, b := range builds {
		if b.row == nil || b.row.ID == uuid.Nil {
			degraded++
			continue
		}
		updates := map[string]interface{}{}

		mid := b.interval.StartS + 0.5*(b.interval.EndS-b.interval.StartS)
		thumbPath := filepath.Join(scratch, fmt.Sprintf("thumb%04d.webp", i))
		if _, err := p.media.MakeThumbnail(ctx, videoPath, mid, thumbPath, services.ThumbnailOptions{}); err == nil {
			key := thumbnailKey(video.ID, b.row.ID)
			if err := p.uploadFrom(ctx, services.BucketCategoryThumbnail, key, thumbPath, "image/webp"); err == nil {
				updates["thumbnail_key"] = key
			} else {
				p.log.Warn("Thumbnail upload failed", "scene_id", b.row.ID, "error", err)
			}
		} else {
			p.log.Warn("Thumbnail render failed", "scene_id", b.row.ID, "error", err)
		}

		doc := p.buildSidecarDoc(video, b, language)
		if raw, err := sidecar.Encode(doc); err == nil {
			key := sidecar.Key(video.OwnerID, video.ID, b.row.ID)
			if err := p.bucket.UploadFile(ctx, services.BucketCategorySidecar, key, strings.NewReader(string(raw)), "application/json"); err == nil {
				updates["sidecar_key"] = key
			} else {
				p.log.Warn("Sidecar upload failed", "scene_id", b.row.ID, "error", err)
			}
		}

		if len(updates) < 2 {
			degraded++
		}
		if len(updates) > 0 {
			if err := p.scenes.UpdateFields(ctx, nil, b.row.ID, updates); err != nil {
				p.log.Warn("Scene key update failed", "scene_id", b.row.ID, "error", err)
			}
		}
	}
	return degraded
}

func (p *VideoPipeline) buildSidecarDoc(video *types.Video, b *sceneBuild, language string) *sidecar.Document {
	segs := make([]sidecar.Segment, 0, len(b.segments))
	for _, s := range b.segments {
		segs = append(segs, sidecar.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	people := make([]sidecar.Person, 0, len(b.people))
	for _, m := range b.people {
		people = append(people, sidecar.Person{
			PersonID:   m.profileID,
			Name:       m.name,
			Confidence: m.confidence,
			FrameCount: m.frameCount,
		})
	}
	return &sidecar.Document{
		VideoID:   video.ID,
		SceneID:   b.row.ID,
		StartS:    b.interval.StartS,
		EndS:      b.interval.EndS,
		DurationS: b.interval.EndS - b.interval.StartS,
		Transcript: sidecar.Transcript{
			Text:     b.transcript,
			Segments: segs,
			Language: language,
		},
		Embeddings: sidecar.Embeddings{
			Text: sidecar.EmbeddingInfo{
				Model:        p.cfg.Models.TextEmbedModel,
				Dimensions:   p.cfg.Models.TextEmbedDim,
				HasEmbedding: b.textVec != nil,
			},
			Vision: sidecar.EmbeddingInfo{
				Model:        p.cfg.Models.VisionEmbedModel,
				Dimensions:   p.cfg.Models.VisionEmbedDim,
				HasEmbedding: b.imageVec != nil,
			},
		},
		People: people,
		Metadata: sidecar.Metadata{
			CreatedAt: time.Now().UTC(),
			Version:   sidecar.SchemaVersion,
			ProcessingInfo: sidecar.ProcessingInfo{
				ASRModel:    p.cfg.Models.ASRModel,
				TextModel:   p.cfg.Models.TextEmbedModel,
				VisionModel: p.cfg.Models.VisionEmbedModel,
			},
		},
	}
}

// failVideo records a terminal pipeline failure on both the video row and
// the job run. Attempts are exhausted so the bus does not redeliver.
func (p *VideoPipeline) failVideo(ctx context.Context, jc *jobs.Context, video *types.Video, stage string, res StageResult) {
	if res.Kind == StageTransient {
		// Leave the video state alone; the bus retries this run.
		jc.Fail(stage, fmt.Errorf("%s", res.Reason))
		return
	}
	errText := res.Class + ": " + res.Reason
	if err := p.videos.TransitionState(ctx, nil, video.ID, video.State, types.VideoStateFailed, map[string]interface{}{
		"error_text": errText,
	}); err != nil {
		p.log.Warn("Failed-state transition rejected", "video_id", video.ID, "from", video.State, "error", err)
	}
	failFatal(jc, stage, fmt.Errorf("%s", errText))
}

// ---------- stage audit rows ----------

func (p *VideoPipeline) beginStage(ctx context.Context, videoID uuid.UUID, stage string) *types.Job {
	now := time.Now()
	job := &types.Job{
		VideoID:   videoID,
		Stage:     stage,
		State:     types.JobStateRunning,
		StartedAt: &now,
	}
	created, err := p.audits.Create(ctx, nil, job)
	if err != nil {
		p.log.Warn("Stage audit create failed", "video_id", videoID, "stage", stage, "error", err)
		return nil
	}
	return created
}

func (p *VideoPipeline) endStage(ctx context.Context, job *types.Job, res StageResult) {
	if job == nil {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{
		"finished_at": now,
		"progress":    100.0,
	}
	switch res.Kind {
	case StageOk:
		updates["state"] = types.JobStateCompleted
	case StageSoftDegrade:
		updates["state"] = types.JobStateCompleted
		updates["error_text"] = res.Reason
		meta, _ := json.Marshal(map[string]string{"degraded": res.Reason})
		updates["metadata"] = datatypes.JSON(meta)
	default:
		updates["state"] = types.JobStateFailed
		updates["error_text"] = res.Class + ": " + res.Reason
	}
	if err := p.audits.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		p.log.Warn("Stage audit update failed", "job_id", job.ID, "error", err)
	}
}

// ---------- helpers ----------

// failFatal exhausts the run's attempts before marking it failed so the
// claim query never redelivers a permanently broken job.
func failFatal(jc *jobs.Context, stage string, err error) {
	if jc.Job != nil && jc.Job.ID != uuid.Nil {
		if uErr := jc.Repo.UpdateFields(jc.Ctx, nil, jc.Job.ID, map[string]interface{}{
			"attempts": jc.Job.MaxAttempts,
		}); uErr == nil {
			jc.Job.Attempts = jc.Job.MaxAttempts
		}
	}
	jc.Fail(stage, err)
}

func (p *VideoPipeline) downloadTo(ctx context.Context, category services.BucketCategory, key, destPath string) error {
	r, err := p.bucket.DownloadFile(ctx, category, key)
	if err != nil {
		return err
	}
	defer r.Close()
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	return f.Sync()
}

func (p *VideoPipeline) uploadFrom(ctx context.Context, category services.BucketCategory, key, srcPath, contentType string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.bucket.UploadFile(ctx, category, key, f, contentType)
}

// sliceTranscript returns the segments overlapping [startS, endS) and their
// joined text. A segment belongs to every scene it overlaps.
func sliceTranscript(tr *client.TranscribeResponse, startS, endS float64) ([]client.TranscriptSegment, string) {
	if tr == nil || len(tr.Segments) == 0 {
		return nil, ""
	}
	segs := []client.TranscriptSegment{}
	parts := []string{}
	for _, s := range tr.Segments {
		if s.Start < endS && s.End > startS {
			segs = append(segs, s)
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return segs, strings.Join(parts, " ")
}

// textEmbedInput picks what to embed for a scene with no usable transcript:
// fall back to the video title, then a fixed placeholder so the text vector
// is never built from an empty string.
func textEmbedInput(transcript string, video *types.Video) string {
	if transcript != "" {
		return transcript
	}
	if video.Metadata != nil && strings.TrimSpace(video.Metadata.Title) != "" {
		return strings.TrimSpace(video.Metadata.Title)
	}
	return "untitled video"
}

// thumbnailKey is the object key inside the thumbnail bucket; the bucket
// itself scopes the artifact kind, so no prefix.
func thumbnailKey(videoID, sceneID uuid.UUID) string {
	return fmt.Sprintf("%s/%s.webp", videoID, sceneID)
}

func extForMime(mime string) string {
	switch mime {
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/x-matroska":
		return ".mkv"
	case "video/webm":
		return ".webm"
	case "video/x-msvideo":
		return ".avi"
	default:
		return ".bin"
	}
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
