package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/vidinsight/api/internal/model"
)

// Publisher pushes change notifications after successful writes.
// Delivery is best-effort: a publish failure is logged, never
// propagated, because the row is already durable.
type Publisher interface {
	PublishJobChange(ctx context.Context, typ model.ChangeType, videoID string, status model.JobStatus, errMsg string)
	PublishAnalysisChange(ctx context.Context, typ model.ChangeType, videoID string)
}

// Store is the Postgres-backed job record store: one job row plus at
// most one analysis row per job. It is the single source of truth
// shared by the orchestrator and all observers.
type Store struct {
	db       *sql.DB
	notifier Publisher
}

// Open connects to Postgres and verifies the connection. notifier may
// be nil, in which case writes emit no change events.
func Open(dsn string, notifier Publisher) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, notifier: notifier}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job row and emits an INSERT event.
func (s *Store) CreateJob(ctx context.Context, job *model.VideoJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO video_jobs (id, storage_path, mime_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, job.ID, job.StoragePath, job.MimeType, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if s.notifier != nil {
		s.notifier.PublishJobChange(ctx, model.ChangeInsert, job.ID, job.Status, "")
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*model.VideoJob, error) {
	query := `
		SELECT id, storage_path, mime_type, status, error_message, created_at
		FROM video_jobs
		WHERE id = $1
	`

	var job model.VideoJob
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.StoragePath,
		&job.MimeType,
		&job.Status,
		&errMsg,
		&job.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}

	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	return &job, nil
}

// UpdateJobStatus writes the status field. The WHERE clause enforces
// the monotonic-terminal invariant: a completed or failed job is never
// moved to a different status, only re-confirmed.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	query := `
		UPDATE video_jobs
		SET status = $2, error_message = NULLIF($3, '')
		WHERE id = $1
		  AND (status NOT IN ('completed', 'failed') OR status = $2)
	`
	res, err := s.db.ExecContext(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the job does not exist or it already settled in a
		// different terminal state; both are no-ops by contract.
		log.Printf("[Store] status write to %s for job %s skipped", status, id)
		return nil
	}

	if s.notifier != nil {
		s.notifier.PublishJobChange(ctx, model.ChangeUpdate, id, status, errMsg)
	}
	return nil
}

// UpsertAnalysis writes the analysis row for a video, replacing any
// existing row for the same id so re-runs stay idempotent.
func (s *Store) UpsertAnalysis(ctx context.Context, rec *model.AnalysisRecord) error {
	thoughtTrace, err := json.Marshal(rec.ThoughtTrace)
	if err != nil {
		return fmt.Errorf("failed to marshal thought trace: %w", err)
	}
	chapters, err := json.Marshal(rec.Chapters)
	if err != nil {
		return fmt.Errorf("failed to marshal chapters: %w", err)
	}
	insights, err := json.Marshal(rec.KeyInsights)
	if err != nil {
		return fmt.Errorf("failed to marshal key insights: %w", err)
	}
	timeline, err := json.Marshal(rec.TimelineData)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline data: %w", err)
	}
	diagram, err := json.Marshal(rec.DiagramData)
	if err != nil {
		return fmt.Errorf("failed to marshal diagram data: %w", err)
	}

	query := `
		INSERT INTO video_analyses (
			video_id, summary, thought_trace, chapters, key_insights,
			timeline_data, diagram_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (video_id) DO UPDATE SET
			summary       = EXCLUDED.summary,
			thought_trace = EXCLUDED.thought_trace,
			chapters      = EXCLUDED.chapters,
			key_insights  = EXCLUDED.key_insights,
			timeline_data = EXCLUDED.timeline_data,
			diagram_data  = EXCLUDED.diagram_data,
			created_at    = EXCLUDED.created_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.VideoID, rec.Summary, thoughtTrace, chapters, insights, timeline, diagram)
	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}

	if s.notifier != nil {
		s.notifier.PublishAnalysisChange(ctx, model.ChangeInsert, rec.VideoID)
	}
	return nil
}

// DeleteJob removes a job row and its analysis row. Consumers watching
// the id simply stop finding it; no change event is published.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM video_analyses WHERE video_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM video_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return tx.Commit()
}

const analysisColumns = `
	video_id, summary, thought_trace, chapters, key_insights,
	timeline_data, diagram_data, created_at
`

// GetAnalysis retrieves the analysis row for a video.
func (s *Store) GetAnalysis(ctx context.Context, videoID string) (*model.AnalysisRecord, error) {
	query := `SELECT ` + analysisColumns + ` FROM video_analyses WHERE video_id = $1`
	return s.scanAnalysis(s.db.QueryRowContext(ctx, query, videoID))
}

// GetLatestAnalysis retrieves the most recently created analysis row
// overall, regardless of owning job.
func (s *Store) GetLatestAnalysis(ctx context.Context) (*model.AnalysisRecord, error) {
	query := `SELECT ` + analysisColumns + ` FROM video_analyses ORDER BY created_at DESC LIMIT 1`
	return s.scanAnalysis(s.db.QueryRowContext(ctx, query))
}

func (s *Store) scanAnalysis(row *sql.Row) (*model.AnalysisRecord, error) {
	var rec model.AnalysisRecord
	var thoughtTrace, chapters, insights, timeline, diagram []byte

	err := row.Scan(
		&rec.VideoID,
		&rec.Summary,
		&thoughtTrace,
		&chapters,
		&insights,
		&timeline,
		&diagram,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	if err := unmarshalColumn(thoughtTrace, &rec.ThoughtTrace); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(chapters, &rec.Chapters); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(insights, &rec.KeyInsights); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(timeline, &rec.TimelineData); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(diagram, &rec.DiagramData); err != nil {
		return nil, err
	}
	return &rec, nil
}

func unmarshalColumn(data []byte, dst interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode analysis column: %w", err)
	}
	return nil
}
