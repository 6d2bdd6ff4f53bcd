package model

import "time"

// Timeline marker types
type MarkerType string

const (
	MarkerPrimary MarkerType = "primary"
	MarkerWarning MarkerType = "warning"
	MarkerAccent  MarkerType = "accent"
)

// Chapter is a titled segment of the video.
type Chapter struct {
	Title        string   `json:"title"`
	StartSeconds float64  `json:"startSeconds"`
	EndSeconds   *float64 `json:"endSeconds,omitempty"`
}

// KeyInsight is a single notable moment with an importance score from 1 to 10.
type KeyInsight struct {
	Timestamp  float64 `json:"timestamp"`
	Importance float64 `json:"importance"`
	Text       string  `json:"text"`
}

// TimelineMarker is a percentage-positioned marker for the timeline view.
type TimelineMarker struct {
	Position float64    `json:"position"`
	Label    string     `json:"label"`
	Type     MarkerType `json:"type"`
}

// DiagramPoint is one node of the generated flow diagram.
type DiagramPoint struct {
	TimeSeconds float64 `json:"timeSeconds"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
}

// AnalysisRecord is the structured output of inference for one job.
// At most one record exists per video; it is written in a single upsert
// when the pipeline completes and never mutated by consumers.
type AnalysisRecord struct {
	VideoID      string           `json:"videoId"`
	Summary      string           `json:"summary"`
	ThoughtTrace []string         `json:"thoughtTrace"`
	Chapters     []Chapter        `json:"chapters"`
	KeyInsights  []KeyInsight     `json:"keyInsights"`
	TimelineData []TimelineMarker `json:"timelineData"`
	DiagramData  []DiagramPoint   `json:"diagramData"`
	CreatedAt    time.Time        `json:"createdAt"`
}
