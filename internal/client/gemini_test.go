package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vidinsight/api/internal/config"
)

func newTestClient(baseURL string) *GeminiClient {
	return NewGeminiClient(&config.GeminiConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gemini-test",
	})
}

func TestStartResumableUpload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload/v1beta/files" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Goog-Upload-Protocol"); got != "resumable" {
			t.Errorf("expected resumable protocol, got %q", got)
		}
		if got := r.Header.Get("X-Goog-Upload-Header-Content-Length"); got != "1024" {
			t.Errorf("expected declared length 1024, got %q", got)
		}
		w.Header().Set("X-Goog-Upload-URL", "https://upload.example.com/session/1")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	url, err := c.StartResumableUpload(context.Background(), 1024, "video/mp4", "video-abc")
	if err != nil {
		t.Fatalf("StartResumableUpload failed: %v", err)
	}
	if url != "https://upload.example.com/session/1" {
		t.Errorf("unexpected upload URL %q", url)
	}
}

func TestStartResumableUpload_NoURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.StartResumableUpload(context.Background(), 1024, "video/mp4", "video-abc")

	var initErr *UploadInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *UploadInitError, got %v", err)
	}
}

func TestStartResumableUpload_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.StartResumableUpload(context.Background(), 1024, "video/mp4", "video-abc")

	var initErr *UploadInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *UploadInitError, got %v", err)
	}
	if initErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", initErr.Status)
	}
}

func TestUploadBytes_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Goog-Upload-Command"); got != "upload, finalize" {
			t.Errorf("expected finalize command, got %q", got)
		}
		w.Write([]byte(`{"file":{"uri":"files/xyz"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	uri, err := c.UploadBytes(context.Background(), srv.URL, []byte("payload"))
	if err != nil {
		t.Fatalf("UploadBytes failed: %v", err)
	}
	if uri != "files/xyz" {
		t.Errorf("unexpected file uri %q", uri)
	}
}

func TestUploadBytes_TransferError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken pipe", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.UploadBytes(context.Background(), srv.URL, []byte("payload"))

	var transferErr *UploadTransferError
	if !errors.As(err, &transferErr) {
		t.Fatalf("expected *UploadTransferError, got %v", err)
	}
}

func TestUploadBytes_MissingFileURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"file":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.UploadBytes(context.Background(), srv.URL, []byte("payload"))

	var missingErr *MissingFileURIError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected *MissingFileURIError, got %v", err)
	}
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"summary\""},{"text":":\"s\"}"}]}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	text, err := c.Generate(context.Background(), "files/xyz", "video/mp4", "analyze")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != `{"summary":"s"}` {
		t.Errorf("parts should concatenate, got %q", text)
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"file not active"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Generate(context.Background(), "files/xyz", "video/mp4", "analyze")

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if genErr.Status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", genErr.Status)
	}
	if genErr.Body == "" {
		t.Error("expected upstream error body to be carried")
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Generate(context.Background(), "files/xyz", "video/mp4", "analyze")

	var emptyErr *EmptyResponseError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected *EmptyResponseError, got %v", err)
	}
}

func TestIsConfigured(t *testing.T) {
	if newTestClient("http://example.com").IsConfigured() != true {
		t.Error("client with API key should report configured")
	}
	c := NewGeminiClient(&config.GeminiConfig{})
	if c.IsConfigured() {
		t.Error("client without API key should report unconfigured")
	}
}
