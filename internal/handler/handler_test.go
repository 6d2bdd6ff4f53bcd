package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vidinsight/api/internal/model"
	"github.com/vidinsight/api/internal/pipeline"
	"github.com/vidinsight/api/internal/store"
)

// memStore backs both the video endpoints and the pipeline in tests.
type memStore struct {
	jobs     map[string]*model.VideoJob
	analyses map[string]*model.AnalysisRecord
	latest   *model.AnalysisRecord
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[string]*model.VideoJob),
		analyses: make(map[string]*model.AnalysisRecord),
	}
}

func (m *memStore) CreateJob(_ context.Context, job *model.VideoJob) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *memStore) GetJob(_ context.Context, id string) (*model.VideoJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

func (m *memStore) DeleteJob(_ context.Context, id string) error {
	if _, ok := m.jobs[id]; !ok {
		return store.ErrJobNotFound
	}
	delete(m.jobs, id)
	delete(m.analyses, id)
	return nil
}

func (m *memStore) UpdateJobStatus(_ context.Context, id string, status model.JobStatus, errMsg string) error {
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	job.Status = status
	if errMsg != "" {
		job.ErrorMessage = &errMsg
	}
	return nil
}

func (m *memStore) UpsertAnalysis(_ context.Context, rec *model.AnalysisRecord) error {
	m.analyses[rec.VideoID] = rec
	m.latest = rec
	return nil
}

func (m *memStore) GetAnalysis(_ context.Context, videoID string) (*model.AnalysisRecord, error) {
	rec, ok := m.analyses[videoID]
	if !ok {
		return nil, store.ErrAnalysisNotFound
	}
	return rec, nil
}

func (m *memStore) GetLatestAnalysis(_ context.Context) (*model.AnalysisRecord, error) {
	if m.latest == nil {
		return nil, store.ErrAnalysisNotFound
	}
	return m.latest, nil
}

type memUploader struct {
	keys    []string
	deleted []string
	err     error
}

func (u *memUploader) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	io.Copy(io.Discard, body)
	u.keys = append(u.keys, key)
	return "https://storage.example.com/" + key, nil
}

func (u *memUploader) Delete(_ context.Context, key string) error {
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *memUploader) Fetch(context.Context, string) ([]byte, string, error) {
	return []byte("video bytes"), "video/mp4", nil
}

type stubEngine struct {
	initErr     error
	generateErr error
	text        string
}

func (e *stubEngine) StartResumableUpload(context.Context, int64, string, string) (string, error) {
	if e.initErr != nil {
		return "", e.initErr
	}
	return "https://upload.example.com/session", nil
}

func (e *stubEngine) UploadBytes(context.Context, string, []byte) (string, error) {
	return "files/abc", nil
}

func (e *stubEngine) Generate(context.Context, string, string, string) (string, error) {
	if e.generateErr != nil {
		return "", e.generateErr
	}
	return e.text, nil
}

func newTestApp(ms *memStore, up *memUploader, engine *stubEngine) *fiber.App {
	app := fiber.New()

	orch := pipeline.NewOrchestrator(ms, up, engine)
	analyze := NewAnalyzeHandler(orch)
	videos := NewVideoHandler(ms, up, validator.New())

	api := app.Group("/api")
	api.Post("/analyze", analyze.Trigger)
	api.Post("/videos", videos.Create)
	api.Get("/videos/:id", videos.Get)
	api.Delete("/videos/:id", videos.Delete)
	api.Get("/videos/:id/analysis", videos.GetAnalysis)
	api.Get("/analysis/latest", videos.Latest)
	return app
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func seedJob(ms *memStore) *model.VideoJob {
	job := &model.VideoJob{
		ID:          uuid.New().String(),
		StoragePath: "videos/x/clip.mp4",
		MimeType:    "video/mp4",
		Status:      model.StatusUploading,
	}
	ms.jobs[job.ID] = job
	return job
}

func TestAnalyze_BadBody(t *testing.T) {
	app := newTestApp(newMemStore(), &memUploader{}, &stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAnalyze_UnknownJob(t *testing.T) {
	ms := newMemStore()
	app := newTestApp(ms, &memUploader{}, &stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"video_id":"nope"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if len(ms.jobs) != 0 {
		t.Error("unknown job trigger must not create records")
	}
}

func TestAnalyze_Success(t *testing.T) {
	ms := newMemStore()
	job := seedJob(ms)
	app := newTestApp(ms, &memUploader{}, &stubEngine{text: `{"summary":"done"}`})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"record":{"id":"`+job.ID+`"}}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["ok"] != true {
		t.Errorf("expected ok=true, got %v", body["ok"])
	}
	if body["video_id"] != job.ID {
		t.Errorf("expected video_id %s, got %v", job.ID, body["video_id"])
	}
	if job.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
}

func TestAnalyze_UploadInitFailure(t *testing.T) {
	ms := newMemStore()
	job := seedJob(ms)
	app := newTestApp(ms, &memUploader{}, &stubEngine{initErr: errors.New("negotiation rejected")})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"video_id":"`+job.ID+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["error"] != "Gemini upload initialization failed" {
		t.Errorf("unexpected error message %v", body["error"])
	}
	if body["detail"] == "" || body["detail"] == nil {
		t.Error("expected a diagnostic detail")
	}
	if job.Status != model.StatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "Gemini upload initialization failed" {
		t.Errorf("expected short stored message on job, got %v", job.ErrorMessage)
	}
}

func TestAnalyze_GenerateFailure(t *testing.T) {
	ms := newMemStore()
	job := seedJob(ms)
	app := newTestApp(ms, &memUploader{}, &stubEngine{generateErr: errors.New("model overloaded")})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"video_id":"`+job.ID+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "Gemini analysis failed" {
		t.Errorf("unexpected error message %v", body["error"])
	}
}

func multipartVideo(t *testing.T, field, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to build multipart body: %v", err)
	}
	part.Write([]byte("fake video bytes"))
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestVideoCreate(t *testing.T) {
	ms := newMemStore()
	up := &memUploader{}
	app := newTestApp(ms, up, &stubEngine{})

	body, contentType := multipartVideo(t, "file", "talk.mp4")
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	respBody := decodeBody(t, resp)
	id, _ := respBody["id"].(string)
	if id == "" {
		t.Fatal("response carries no job id")
	}
	if respBody["status"] != string(model.StatusUploading) {
		t.Errorf("expected uploading status, got %v", respBody["status"])
	}

	job, ok := ms.jobs[id]
	if !ok {
		t.Fatal("job row was not created")
	}
	if len(up.keys) != 1 || up.keys[0] != job.StoragePath {
		t.Errorf("storage key %v does not match job path %q", up.keys, job.StoragePath)
	}
	if !strings.HasPrefix(job.StoragePath, "videos/"+id+"/") {
		t.Errorf("unexpected storage key layout %q", job.StoragePath)
	}
}

func TestVideoCreate_MissingFile(t *testing.T) {
	app := newTestApp(newMemStore(), &memUploader{}, &stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(""))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestVideoCreate_NoStorageConfigured(t *testing.T) {
	ms := newMemStore()
	app := fiber.New()
	videos := NewVideoHandler(ms, nil, validator.New())
	app.Post("/api/videos", videos.Create)

	body, contentType := multipartVideo(t, "file", "talk.mp4")
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestVideoGet(t *testing.T) {
	ms := newMemStore()
	job := seedJob(ms)
	app := newTestApp(ms, &memUploader{}, &stubEngine{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/videos/"+job.ID, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["id"] != job.ID {
		t.Errorf("expected job %s, got %v", job.ID, body["id"])
	}
}

func TestVideoGet_InvalidID(t *testing.T) {
	app := newTestApp(newMemStore(), &memUploader{}, &stubEngine{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/videos/not-a-uuid", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestVideoGet_Unknown(t *testing.T) {
	app := newTestApp(newMemStore(), &memUploader{}, &stubEngine{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/videos/"+uuid.New().String(), nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestVideoDelete(t *testing.T) {
	ms := newMemStore()
	job := seedJob(ms)
	ms.UpsertAnalysis(context.Background(), &model.AnalysisRecord{VideoID: job.ID, Summary: "s"})
	up := &memUploader{}
	app := newTestApp(ms, up, &stubEngine{})

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/videos/"+job.ID, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if _, ok := ms.jobs[job.ID]; ok {
		t.Error("job row should be gone")
	}
	if _, ok := ms.analyses[job.ID]; ok {
		t.Error("analysis row should be gone")
	}
	if len(up.deleted) != 1 || up.deleted[0] != job.StoragePath {
		t.Errorf("stored object should be deleted, got %v", up.deleted)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/videos/"+job.ID, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on repeat delete, got %d", resp.StatusCode)
	}
}

func TestVideoAnalysis_NotReadyThenReady(t *testing.T) {
	ms := newMemStore()
	job := seedJob(ms)
	app := newTestApp(ms, &memUploader{}, &stubEngine{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/videos/"+job.ID+"/analysis", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before persistence, got %d", resp.StatusCode)
	}

	ms.UpsertAnalysis(context.Background(), &model.AnalysisRecord{VideoID: job.ID, Summary: "s"})

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/videos/"+job.ID+"/analysis", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after persistence, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["summary"] != "s" {
		t.Errorf("unexpected analysis body %v", body)
	}
}

func TestLatestAnalysis(t *testing.T) {
	ms := newMemStore()
	app := newTestApp(ms, &memUploader{}, &stubEngine{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/analysis/latest", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with no analyses, got %d", resp.StatusCode)
	}

	ms.UpsertAnalysis(context.Background(), &model.AnalysisRecord{VideoID: "v1", Summary: "latest"})

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/analysis/latest", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["videoId"] != "v1" {
		t.Errorf("unexpected latest analysis %v", body)
	}
}
