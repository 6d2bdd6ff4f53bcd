package model

import "time"

// JobStatus tracks a video job through its lifecycle. Transitions are
// monotonic: uploading → processing → completed|failed, and a terminal
// status never changes again.
type JobStatus string

const (
	StatusUploading  JobStatus = "uploading"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition may occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// VideoJob represents one video analysis request.
type VideoJob struct {
	ID           string    `json:"id"`
	StoragePath  string    `json:"storagePath"`
	MimeType     string    `json:"mimeType,omitempty"`
	Status       JobStatus `json:"status"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
