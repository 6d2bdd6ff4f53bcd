package model

// Tables that emit change notifications.
type ChangeTable string

const (
	TableVideoJobs ChangeTable = "video_jobs"
	TableAnalyses  ChangeTable = "video_analyses"
)

// Change notification types.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
)

// ChangeEvent is the wire format published on the notification bus
// whenever a job or analysis row is written. Delivery is best-effort:
// subscribers must tolerate missing, duplicate and reordered events.
type ChangeEvent struct {
	Table        ChangeTable `json:"table"`
	Type         ChangeType  `json:"type"`
	VideoID      string      `json:"videoId"`
	Status       JobStatus   `json:"status,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}
