package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Options struct {
	BaseURL string
	APIKey  string

	TextModel   string
	VisionModel string
	ASRModel    string

	TextDim   int
	VisionDim int

	Timeout    time.Duration
	MaxRetries int

	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string

	textModel   string
	visionModel string
	asrModel    string

	textDim   int
	visionDim int

	timeout    time.Duration
	maxRetries int

	httpClient *http.Client

	warmupOnce sync.Once
	warmupErr  error
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(opts.APIKey),
		textModel:   strings.TrimSpace(opts.TextModel),
		visionModel: strings.TrimSpace(opts.VisionModel),
		asrModel:    strings.TrimSpace(opts.ASRModel),
		textDim:     opts.TextDim,
		visionDim:   opts.VisionDim,
		timeout:     timeout,
		maxRetries:  maxRetries,
		httpClient:  hc,
	}, nil
}

func NewFromEnv() (*Client, error) {
	timeoutSeconds := intFromEnv("SDX_INFERENCE_TIMEOUT_SECONDS", 60)
	maxRetries := intFromEnv("SDX_INFERENCE_MAX_RETRIES", 2)

	return New(Options{
		BaseURL:     getEnv("SDX_INFERENCE_BASE_URL", "http://localhost:9090"),
		APIKey:      strings.TrimSpace(os.Getenv("SDX_INFERENCE_API_KEY")),
		TextModel:   getEnv("TEXT_EMBED_MODEL", "siglip2-so400m"),
		VisionModel: getEnv("VISION_EMBED_MODEL", "siglip2-so400m"),
		ASRModel:    getEnv("ASR_MODEL", "whisper-large-v3"),
		TextDim:     intFromEnv("TEXT_EMBED_DIM", 1152),
		VisionDim:   intFromEnv("VISION_EMBED_DIM", 1152),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		MaxRetries:  maxRetries,
	})
}

func (c *Client) BaseURL() string { return c.baseURL }

// warmup issues one readiness probe on first use so the first real call
// does not pay model-load latency.
func (c *Client) warmup(ctx context.Context) {
	c.warmupOnce.Do(func() {
		c.warmupErr = c.Health(ctx)
	})
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, c.timeout, http.MethodGet, "/health", nil, nil)
}

func (c *Client) TranscribeAudio(ctx context.Context, audioB64 string, language string) (*TranscribeResponse, error) {
	c.warmup(ctx)
	req := transcribeRequest{AudioB64: audioB64}
	if strings.TrimSpace(language) != "" {
		req.Language = language
	}
	var resp TranscribeResponse
	if err := c.doJSON(ctx, c.timeout, http.MethodPost, "/asr/transcribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	c.warmup(ctx)
	if strings.TrimSpace(text) == "" {
		text = " "
	}
	req := embedTextRequest{Text: text, Model: c.textModel}
	var resp EmbedResponse
	if err := c.doJSON(ctx, c.timeout, http.MethodPost, "/embed/text", req, &resp); err != nil {
		return nil, err
	}
	if c.textDim > 0 && len(resp.Embedding) != c.textDim {
		return nil, fmt.Errorf("text embedding dimension mismatch: got %d want %d", len(resp.Embedding), c.textDim)
	}
	return resp.Embedding, nil
}

func (c *Client) EmbedVision(ctx context.Context, imageB64 string) ([]float32, error) {
	c.warmup(ctx)
	req := embedVisionRequest{ImageB64: imageB64}
	var resp EmbedResponse
	if err := c.doJSON(ctx, c.timeout, http.MethodPost, "/embed/vision", req, &resp); err != nil {
		return nil, err
	}
	if c.visionDim > 0 && len(resp.Embedding) != c.visionDim {
		return nil, fmt.Errorf("vision embedding dimension mismatch: got %d want %d", len(resp.Embedding), c.visionDim)
	}
	return resp.Embedding, nil
}

func (c *Client) DetectFaces(ctx context.Context, imageB64 string) (*DetectFacesResponse, error) {
	c.warmup(ctx)
	req := detectFacesRequest{ImageB64: imageB64}
	var resp DetectFacesResponse
	if err := c.doJSON(ctx, c.timeout, http.MethodPost, "/face/detect", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TextModel() string   { return c.textModel }
func (c *Client) VisionModel() string { return c.visionModel }
func (c *Client) ASRModel() string    { return c.asrModel }
func (c *Client) TextDim() int        { return c.textDim }
func (c *Client) VisionDim() int      { return c.visionDim }

// ---------------- HTTP helpers ----------------

func (c *Client) setHeaders(req *http.Request, contentType string, accept string) {
	if strings.TrimSpace(contentType) != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(accept) != "" {
		req.Header.Set("Accept", accept)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.apiKey))
	}
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx2.Err() != nil {
			return ctx2.Err()
		}

		req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		c.setHeaders(req, "application/json", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				return readErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = parseHTTPError(resp.StatusCode, raw)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return lastErr
				}
			} else {
				if out == nil {
					return nil
				}
				if err := json.Unmarshal(raw, out); err != nil {
					return err
				}
				return nil
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx2.Done():
				return ctx2.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return lastErr
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
