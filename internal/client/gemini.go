package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vidinsight/api/internal/config"
)

// GeminiClient handles the two-phase upload-then-generate protocol of
// the Gemini API: negotiate a resumable upload, transfer the bytes in
// one finalized request, then reference the stored file in a
// generateContent call.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(cfg *config.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// StartResumableUpload negotiates an upload destination for a file of
// the given size and MIME type. Returns the upload URL.
func (c *GeminiClient) StartResumableUpload(ctx context.Context, sizeBytes int64, mimeType, displayName string) (string, error) {
	reqBody := map[string]interface{}{
		"file": map[string]string{"display_name": displayName},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(sizeBytes, 10))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	log.Printf("[Gemini API] → start upload (%d bytes, %s)", sizeBytes, mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Gemini API] ✗ start upload — status %d: %s", resp.StatusCode, string(respBody))
		return "", &UploadInitError{Status: resp.StatusCode, Body: string(respBody)}
	}

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		log.Printf("[Gemini API] ✗ start upload — no upload URL in response")
		return "", &UploadInitError{}
	}

	return uploadURL, nil
}

// UploadBytes streams the payload to the negotiated URL in one
// finalized transfer and returns the stored file's URI.
func (c *GeminiClient) UploadBytes(ctx context.Context, uploadURL string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.ContentLength = int64(len(data))

	log.Printf("[Gemini API] → upload %d bytes", len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Gemini API] ✗ upload — status %d: %s", resp.StatusCode, string(respBody))
		return "", &UploadTransferError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var fileResp struct {
		File struct {
			URI string `json:"uri"`
		} `json:"file"`
	}
	if err := json.Unmarshal(respBody, &fileResp); err != nil || fileResp.File.URI == "" {
		log.Printf("[Gemini API] ✗ upload — response missing file uri: %s", string(respBody))
		return "", &MissingFileURIError{Body: string(respBody)}
	}

	log.Printf("[Gemini API] ← uploaded as %s", fileResp.File.URI)
	return fileResp.File.URI, nil
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	FileData *fileData `json:"file_data,omitempty"`
	Text     string    `json:"text,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate runs the analysis request referencing an uploaded file and
// returns the raw response text.
func (c *GeminiClient) Generate(ctx context.Context, fileURI, mimeType, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []generateContent{{
			Parts: []generatePart{
				{FileData: &fileData{MimeType: mimeType, FileURI: fileURI}},
				{Text: prompt},
			},
		}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[Gemini API] → generate (%s, file=%s)", c.model, fileURI)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Gemini API] ✗ generate — status %d: %s", resp.StatusCode, string(respBody))
		return "", &GenerationError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var sb strings.Builder
	for _, cand := range genResp.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	text := sb.String()
	if text == "" {
		log.Printf("[Gemini API] ✗ generate — empty response")
		return "", &EmptyResponseError{}
	}

	log.Printf("[Gemini API] ← generate — %d chars", len(text))
	return text, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}
