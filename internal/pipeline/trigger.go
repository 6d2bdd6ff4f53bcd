package pipeline

import (
	"encoding/json"
	"errors"
)

// ErrBadTrigger means the trigger body carried no job id; no job record
// is touched in that case since the id is unknown.
var ErrBadTrigger = errors.New("trigger body carries no video id")

// ParseTrigger extracts the job id from a trigger body, which is either
// a store-originated notification {"record": {"id": ...}} or a direct
// call {"video_id": ...}.
func ParseTrigger(body []byte) (string, error) {
	var payload struct {
		Record *struct {
			ID string `json:"id"`
		} `json:"record"`
		VideoID string `json:"video_id"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ErrBadTrigger
	}
	if payload.Record != nil && payload.Record.ID != "" {
		return payload.Record.ID, nil
	}
	if payload.VideoID != "" {
		return payload.VideoID, nil
	}
	return "", ErrBadTrigger
}
