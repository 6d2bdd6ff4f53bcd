package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vidinsight/api/internal/model"
	"github.com/vidinsight/api/internal/store"
	"github.com/vidinsight/api/pkg/response"
)

// VideoStore is the slice of the job record store the video endpoints
// read and write. Only job creation writes; everything else observes.
type VideoStore interface {
	CreateJob(ctx context.Context, job *model.VideoJob) error
	GetJob(ctx context.Context, id string) (*model.VideoJob, error)
	DeleteJob(ctx context.Context, id string) error
	GetAnalysis(ctx context.Context, videoID string) (*model.AnalysisRecord, error)
	GetLatestAnalysis(ctx context.Context) (*model.AnalysisRecord, error)
}

// Uploader moves raw video bytes in and out of object storage.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type VideoHandler struct {
	store     VideoStore
	storage   Uploader
	validator *validator.Validate
}

func NewVideoHandler(st VideoStore, storage Uploader, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		store:     st,
		storage:   storage,
		validator: v,
	}
}

// Create handles POST /api/videos: stores the uploaded binary and
// inserts the job row. The resulting INSERT notification is what kicks
// off the pipeline.
func (h *VideoHandler) Create(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "missing video file")
	}

	if h.storage == nil {
		return response.Unavailable(c, "object storage not configured")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "unreadable video file")
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	videoID := uuid.New().String()
	key := fmt.Sprintf("videos/%s/%s", videoID, path.Base(fileHeader.Filename))

	if _, err := h.storage.Upload(c.Context(), key, file, contentType); err != nil {
		return response.ServiceError(c, "failed to store video", err.Error())
	}

	job := &model.VideoJob{
		ID:          videoID,
		StoragePath: key,
		MimeType:    contentType,
		Status:      model.StatusUploading,
		CreatedAt:   time.Now(),
	}
	if err := h.store.CreateJob(c.Context(), job); err != nil {
		return response.ServiceError(c, "failed to create video job", err.Error())
	}

	return response.Created(c, fiber.Map{
		"id":        job.ID,
		"status":    job.Status,
		"createdAt": job.CreatedAt,
	})
}

// Get handles GET /api/videos/:id
func (h *VideoHandler) Get(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := h.validator.Var(videoID, "required,uuid4"); err != nil {
		return response.BadRequest(c, "invalid video id")
	}

	job, err := h.store.GetJob(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "video job not found")
		}
		return response.ServiceError(c, "failed to load video job", err.Error())
	}

	return response.OK(c, job)
}

// Delete handles DELETE /api/videos/:id: removes the stored binary,
// the analysis row and the job row. The object delete is best-effort —
// an orphaned object is preferable to an undeletable job.
func (h *VideoHandler) Delete(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := h.validator.Var(videoID, "required,uuid4"); err != nil {
		return response.BadRequest(c, "invalid video id")
	}

	job, err := h.store.GetJob(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "video job not found")
		}
		return response.ServiceError(c, "failed to load video job", err.Error())
	}

	if h.storage != nil && job.StoragePath != "" {
		if err := h.storage.Delete(c.Context(), job.StoragePath); err != nil {
			log.Printf("[Videos] failed to delete object %s: %v", job.StoragePath, err)
		}
	}

	if err := h.store.DeleteJob(c.Context(), videoID); err != nil {
		return response.ServiceError(c, "failed to delete video job", err.Error())
	}

	return response.OK(c, fiber.Map{"ok": true, "id": videoID})
}

// GetAnalysis handles GET /api/videos/:id/analysis. 404 until the
// pipeline has persisted the record.
func (h *VideoHandler) GetAnalysis(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := h.validator.Var(videoID, "required,uuid4"); err != nil {
		return response.BadRequest(c, "invalid video id")
	}

	rec, err := h.store.GetAnalysis(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrAnalysisNotFound) {
			return response.NotFound(c, "analysis not available yet")
		}
		return response.ServiceError(c, "failed to load analysis", err.Error())
	}

	return response.OK(c, rec)
}

// Latest handles GET /api/analysis/latest — the newest analysis row
// overall, used by clients as a last-resort fallback display.
func (h *VideoHandler) Latest(c *fiber.Ctx) error {
	rec, err := h.store.GetLatestAnalysis(c.Context())
	if err != nil {
		if errors.Is(err, store.ErrAnalysisNotFound) {
			return response.NotFound(c, "no analysis exists yet")
		}
		return response.ServiceError(c, "failed to load analysis", err.Error())
	}

	return response.OK(c, rec)
}
