// Package pipeline drives a video job from uploaded binary to persisted
// analysis. One invocation processes one job start-to-finish; every
// failure past the initial status write lands the job in a terminal
// failed state so no job is ever left stuck in processing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vidinsight/api/internal/analysis"
	"github.com/vidinsight/api/internal/model"
	"github.com/vidinsight/api/internal/store"
)

// Stored failure messages. The job record only ever carries one of
// these short strings; the detailed diagnostic goes back to the caller.
const (
	msgDownloadFailed   = "Failed to download video"
	msgUploadInitFailed = "Gemini upload initialization failed"
	msgUploadFailed     = "Gemini file upload failed"
	msgAnalysisFailed   = "Gemini analysis failed"
	msgPersistFailed    = "Failed to save analysis"
)

const defaultMimeType = "video/mp4"

// Store is the slice of the job record store the orchestrator writes
// through. It exclusively owns writes to both entities.
type Store interface {
	GetJob(ctx context.Context, id string) (*model.VideoJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error
	UpsertAnalysis(ctx context.Context, rec *model.AnalysisRecord) error
}

// ObjectFetcher retrieves the uploaded binary and its declared MIME
// type from a storage locator.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, string, error)
}

// Engine is the two-phase upload-then-generate inference protocol.
type Engine interface {
	StartResumableUpload(ctx context.Context, sizeBytes int64, mimeType, displayName string) (string, error)
	UploadBytes(ctx context.Context, uploadURL string, data []byte) (string, error)
	Generate(ctx context.Context, fileURI, mimeType, prompt string) (string, error)
}

// StepError reports which pipeline step failed, the short message
// recorded on the job (empty when no job was touched) and the HTTP
// status the trigger response should carry.
type StepError struct {
	Step   string
	HTTP   int
	Stored string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Result is the successful outcome of one pipeline run.
type Result struct {
	VideoID  string
	Duration time.Duration
}

// Orchestrator executes the analysis pipeline. Safe for concurrent use
// across distinct jobs; re-invocation for the same job is tolerated
// because every write is idempotent or advances toward a terminal
// state.
type Orchestrator struct {
	store   Store
	fetcher ObjectFetcher
	engine  Engine
}

func NewOrchestrator(st Store, fetcher ObjectFetcher, engine Engine) *Orchestrator {
	return &Orchestrator{
		store:   st,
		fetcher: fetcher,
		engine:  engine,
	}
}

// Run drives the job with the given id through the full pipeline and
// leaves it completed or failed. Failures are returned as *StepError.
func (o *Orchestrator) Run(ctx context.Context, videoID string) (*Result, error) {
	start := time.Now()
	log.Printf("[Pipeline] starting analysis for job %s", videoID)

	// Step 1: resolve the job. No status side effect on failure — there
	// is no valid job to mark.
	job, err := o.store.GetJob(ctx, videoID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, &StepError{Step: "resolve", HTTP: 404, Err: err}
		}
		return nil, &StepError{Step: "resolve", HTTP: 500, Err: err}
	}
	if job.StoragePath == "" {
		return nil, &StepError{Step: "resolve", HTTP: 404, Err: fmt.Errorf("job %s has no storage path", videoID)}
	}

	// Step 2: mark processing. Idempotent on redelivery.
	if err := o.store.UpdateJobStatus(ctx, job.ID, model.StatusProcessing, ""); err != nil {
		return nil, &StepError{Step: "mark_processing", HTTP: 500, Err: err}
	}

	// Step 3: fetch the binary. Single attempt; the webhook layer owns
	// re-delivery.
	if o.fetcher == nil {
		return nil, o.fail(ctx, job.ID, "download", 500, msgDownloadFailed, errors.New("object storage not configured"))
	}
	data, contentType, err := o.fetcher.Fetch(ctx, job.StoragePath)
	if err != nil {
		return nil, o.fail(ctx, job.ID, "download", 500, msgDownloadFailed, err)
	}

	mimeType := contentType
	if mimeType == "" {
		mimeType = job.MimeType
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	// Step 4: two-phase upload. A negotiated-but-untransferred upload is
	// abandoned, not resumed.
	uploadURL, err := o.engine.StartResumableUpload(ctx, int64(len(data)), mimeType, "video-"+job.ID)
	if err != nil {
		return nil, o.fail(ctx, job.ID, "upload_init", 500, msgUploadInitFailed, err)
	}

	fileURI, err := o.engine.UploadBytes(ctx, uploadURL, data)
	if err != nil {
		return nil, o.fail(ctx, job.ID, "upload_transfer", 500, msgUploadFailed, err)
	}

	// Step 5: generate and parse. The stored message stays generic; the
	// detailed diagnostic rides back in the StepError.
	rawText, err := o.engine.Generate(ctx, fileURI, mimeType, analysis.Prompt)
	if err != nil {
		return nil, o.fail(ctx, job.ID, "generate", 502, msgAnalysisFailed, err)
	}

	rec, err := analysis.Parse(rawText)
	if err != nil {
		return nil, o.fail(ctx, job.ID, "parse", 502, msgAnalysisFailed, err)
	}
	rec.VideoID = job.ID

	// Step 6: persist. Upsert-by-key keeps re-runs safe.
	if err := o.store.UpsertAnalysis(ctx, rec); err != nil {
		return nil, o.fail(ctx, job.ID, "persist", 500, msgPersistFailed, err)
	}

	// Step 7: finalize. Consumers treat status=completed and "record
	// exists" as eventually consistent, not atomic.
	if err := o.store.UpdateJobStatus(ctx, job.ID, model.StatusCompleted, ""); err != nil {
		return nil, o.fail(ctx, job.ID, "finalize", 500, msgPersistFailed, err)
	}

	elapsed := time.Since(start)
	log.Printf("[Pipeline] job %s completed in %s", job.ID, elapsed)
	return &Result{VideoID: job.ID, Duration: elapsed}, nil
}

// fail records the terminal failed status with a short message and
// wraps the underlying error for the caller's response.
func (o *Orchestrator) fail(ctx context.Context, videoID, step string, httpStatus int, stored string, cause error) *StepError {
	log.Printf("[Pipeline] job %s failed at %s: %v", videoID, step, cause)
	if err := o.store.UpdateJobStatus(ctx, videoID, model.StatusFailed, stored); err != nil {
		log.Printf("[Pipeline] failed to mark job %s as failed: %v", videoID, err)
	}
	return &StepError{Step: step, HTTP: httpStatus, Stored: stored, Err: cause}
}
