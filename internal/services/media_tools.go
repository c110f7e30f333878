package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/scenedex-backend/internal/logger"
)

// MediaToolsService is the glue around system binaries. The worker runtime
// needs ffmpeg and ffprobe in PATH. Synchronous and deterministic; call it
// from worker jobs, not request handlers.
type MediaToolsService interface {
	AssertReady(ctx context.Context) error

	ProbeDuration(ctx context.Context, videoPath string) (float64, error)
	ExtractAudio(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error)
	DetectScenes(ctx context.Context, videoPath string, durationS float64, threshold float64) ([]SceneInterval, error)
	ExtractFrameAt(ctx context.Context, videoPath string, atSeconds float64, outPath string) (string, error)
	MakeThumbnail(ctx context.Context, videoPath string, atSeconds float64, outPath string, opts ThumbnailOptions) (string, error)

	// Helpers for callers who only have bytes:
	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
	NewScratchDir(ctx context.Context, prefix string) (string, func(), error)
}

type AudioExtractOptions struct {
	SampleRateHz int // e.g., 16000
	Channels     int // 1
}

type SceneInterval struct {
	StartS float64
	EndS   float64
}

type ThumbnailOptions struct {
	Width   int // default 320
	Height  int // default 180
	Quality int // webp quality, default 80
}

type mediaToolsService struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	workRoot string

	defaultTimeout time.Duration
}

func NewMediaToolsService(log *logger.Logger) MediaToolsService {
	slog := log.With("service", "MediaToolsService")
	return &mediaToolsService{
		log:            slog,
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       "/tmp/scenedex-media",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *mediaToolsService) AssertReady(ctx context.Context) error {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *mediaToolsService) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	ctx = defaultCtx(ctx)
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:16]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	path := filepath.Join(m.workRoot, fmt.Sprintf("%s%s", base, suffix))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

func (m *mediaToolsService) NewScratchDir(ctx context.Context, prefix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	dir, err := os.MkdirTemp(m.workRoot, prefix)
	if err != nil {
		return "", func() {}, fmt.Errorf("mkdir scratch: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return dir, cleanup, nil
}

func (m *mediaToolsService) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	ctx = defaultCtx(ctx)
	if videoPath == "" {
		return 0, fmt.Errorf("videoPath required")
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	// ffprobe -v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 in.mp4
	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w; out=%s", err, string(out))
	}
	raw := strings.TrimSpace(string(out))
	dur, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparsable duration %q: %w", raw, err)
	}
	return dur, nil
}

func (m *mediaToolsService) ExtractAudio(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error) {
	ctx = defaultCtx(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	sr := opts.SampleRateHz
	if sr <= 0 {
		sr = 16000
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	// ffmpeg -i in.mp4 -vn -acodec pcm_s16le -ar 16000 -ac 1 out.wav
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sr),
		"-ac", strconv.Itoa(ch),
		"-f", "wav",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, nil
}

var sceneChangeRe = regexp.MustCompile(`pts_time:([0-9]+\.?[0-9]*)`)

// DetectScenes runs ffmpeg scene-change selection and turns the detected cut
// timestamps into contiguous intervals partitioning [0, durationS]. Zero cuts
// yields a single interval covering the whole video.
func (m *mediaToolsService) DetectScenes(ctx context.Context, videoPath string, durationS float64, threshold float64) ([]SceneInterval, error) {
	ctx = defaultCtx(ctx)
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if durationS <= 0 {
		return nil, fmt.Errorf("durationS must be positive")
	}
	if threshold <= 0 {
		threshold = 0.4
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	// ffmpeg -i in.mp4 -vf "select='gt(scene,0.4)',showinfo" -f null -
	vf := fmt.Sprintf("select='gt(scene\\,%0.3f)',showinfo", threshold)
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-i", videoPath,
		"-vf", vf,
		"-f", "null", "-",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg scene detect failed: %w; out=%s", err, truncateOutput(out))
	}

	cuts := []float64{}
	for _, match := range sceneChangeRe.FindAllStringSubmatch(string(out), -1) {
		t, perr := strconv.ParseFloat(match[1], 64)
		if perr != nil {
			continue
		}
		if t > 0 && t < durationS {
			cuts = append(cuts, t)
		}
	}
	sort.Float64s(cuts)

	return intervalsFromCuts(cuts, durationS), nil
}

// intervalsFromCuts turns sorted cut timestamps into contiguous intervals
// partitioning [0, durationS]. Cuts within 1 ms of the previous boundary are
// merged away, and a sub-millisecond tail folds into the final interval so
// the last EndS always lands on durationS. Zero cuts yields one interval
// covering the whole video.
func intervalsFromCuts(cuts []float64, durationS float64) []SceneInterval {
	intervals := []SceneInterval{}
	prev := 0.0
	for _, cut := range cuts {
		if cut-prev < 1e-3 {
			continue
		}
		intervals = append(intervals, SceneInterval{StartS: prev, EndS: cut})
		prev = cut
	}
	if durationS-prev > 1e-3 || len(intervals) == 0 {
		intervals = append(intervals, SceneInterval{StartS: prev, EndS: durationS})
	} else {
		intervals[len(intervals)-1].EndS = durationS
	}
	return intervals
}

func (m *mediaToolsService) ExtractFrameAt(ctx context.Context, videoPath string, atSeconds float64, outPath string) (string, error) {
	ctx = defaultCtx(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if atSeconds < 0 {
		atSeconds = 0
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	// ffmpeg -ss T -i in.mp4 -frames:v 1 -q:v 3 out.jpg
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%0.3f", atSeconds),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "3",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract frame failed: %w; out=%s", err, truncateOutput(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("frame output missing at %s", outPath)
	}
	return outPath, nil
}

// MakeThumbnail scales the frame up to cover the target box, center-crops to
// 16:9 and encodes webp. Go's image stack has no webp encoder, so the encode
// stays in ffmpeg.
func (m *mediaToolsService) MakeThumbnail(ctx context.Context, videoPath string, atSeconds float64, outPath string, opts ThumbnailOptions) (string, error) {
	ctx = defaultCtx(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if atSeconds < 0 {
		atSeconds = 0
	}
	w := opts.Width
	if w <= 0 {
		w = 320
	}
	h := opts.Height
	if h <= 0 {
		h = 180
	}
	q := opts.Quality
	if q <= 0 {
		q = 80
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", w, h, w, h)
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%0.3f", atSeconds),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", vf,
		"-c:v", "libwebp",
		"-quality", strconv.Itoa(q),
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg thumbnail failed: %w; out=%s", err, truncateOutput(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("thumbnail output missing at %s", outPath)
	}
	return outPath, nil
}

// ---------- helpers ----------

func truncateOutput(out []byte) string {
	const max = 4096
	if len(out) <= max {
		return string(out)
	}
	return string(out[len(out)-max:])
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
