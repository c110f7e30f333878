package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL:    srv.URL,
		TextModel:  "test-text",
		TextDim:    4,
		VisionDim:  4,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestEmbedTextRetriesOnServerError(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(EmbedResponse{Embedding: []float32{1, 0, 0, 0}, Dimension: 4})
	})
	c, _ := newTestClient(t, mux)

	emb, err := c.EmbedText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedText after retries: %v", err)
	}
	if len(emb) != 4 {
		t.Fatalf("len(embedding) = %d, want 4", len(emb))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestEmbedTextDoesNotRetryClientError(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"text too long","code":"invalid_input"}}`))
	})
	c, _ := newTestClient(t, mux)

	_, err := c.EmbedText(context.Background(), "hello")
	if err == nil {
		t.Fatalf("EmbedText returned nil error on 400")
	}
	herr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("error type = %T, want *HTTPError", err)
	}
	if herr.StatusCode != http.StatusBadRequest || herr.Code != "invalid_input" {
		t.Fatalf("HTTPError = %+v, want status=400 code=invalid_input", herr)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestEmbedTextDimensionMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(EmbedResponse{Embedding: []float32{1, 0}, Dimension: 2})
	})
	c, _ := newTestClient(t, mux)

	if _, err := c.EmbedText(context.Background(), "hello"); err == nil {
		t.Fatalf("EmbedText accepted wrong dimension")
	}
}

func TestTranscribeAudio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/asr/transcribe", func(w http.ResponseWriter, r *http.Request) {
		var req transcribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Language != "en" {
			t.Errorf("language = %q, want en", req.Language)
		}
		_ = json.NewEncoder(w).Encode(TranscribeResponse{
			Text:     "hello world",
			Segments: []TranscriptSegment{{Start: 0, End: 1.5, Text: "hello world"}},
			Language: "en",
		})
	})
	c, _ := newTestClient(t, mux)

	resp, err := c.TranscribeAudio(context.Background(), "YWJj", "en")
	if err != nil {
		t.Fatalf("TranscribeAudio: %v", err)
	}
	if resp.Text != "hello world" || len(resp.Segments) != 1 {
		t.Fatalf("resp = %+v, want one segment of hello world", resp)
	}
}

func TestWarmupRunsOnce(t *testing.T) {
	var health int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&health, 1)
	})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(EmbedResponse{Embedding: []float32{0, 1, 0, 0}, Dimension: 4})
	})
	c, _ := newTestClient(t, mux)

	for i := 0; i < 3; i++ {
		if _, err := c.EmbedText(context.Background(), "hello"); err != nil {
			t.Fatalf("EmbedText: %v", err)
		}
	}
	if got := atomic.LoadInt32(&health); got != 1 {
		t.Fatalf("health calls = %d, want 1", got)
	}
}
