// Package analysis turns the free text returned by the inference
// service into a normalized AnalysisRecord. The service is asked for
// bare JSON but routinely wraps it in a fenced code block or
// surrounding prose, and individual fields come back missing or
// mistyped often enough that every one is coerced defensively.
package analysis

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/vidinsight/api/internal/model"
)

const previewLen = 200

// MalformedError means no JSON object could be extracted from the raw
// response text. Preview carries the head of the text for diagnostics.
type MalformedError struct {
	Preview string
	Err     error
}

func (e *MalformedError) Error() string {
	return "malformed analysis response: " + e.Preview
}

func (e *MalformedError) Unwrap() error { return e.Err }

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractJSON pulls the JSON payload out of raw: a fenced block wins,
// otherwise the slice from the first '{' to the last '}'.
func extractJSON(raw string) string {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

// Parse extracts and normalizes an analysis object from raw response
// text. Parse is pure: the same input always yields the same record.
func Parse(raw string) (*model.AnalysisRecord, error) {
	payload := extractJSON(raw)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, &MalformedError{Preview: preview(raw), Err: err}
	}

	return &model.AnalysisRecord{
		Summary:      asString(obj["summary"], ""),
		ThoughtTrace: thoughtTrace(obj["thoughtTrace"]),
		Chapters:     chapters(obj["chapters"]),
		KeyInsights:  keyInsights(obj["keyInsights"]),
		TimelineData: timeline(obj["timelineData"]),
		DiagramData:  diagram(obj["diagramData"]),
	}, nil
}

func preview(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > previewLen {
		return raw[:previewLen]
	}
	return raw
}

func asString(v interface{}, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func asNumber(v interface{}, def float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return def
}

func asArray(v interface{}) []interface{} {
	if arr, ok := v.([]interface{}); ok {
		return arr
	}
	return nil
}

// stringOf renders any JSON value as display text: strings pass
// through, everything else is re-marshaled.
func stringOf(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func thoughtTrace(v interface{}) []string {
	steps := []string{}
	for _, item := range asArray(v) {
		steps = append(steps, stringOf(item))
	}
	return steps
}

func chapters(v interface{}) []model.Chapter {
	out := []model.Chapter{}
	for _, item := range asArray(v) {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		ch := model.Chapter{
			Title:        asString(m["title"], ""),
			StartSeconds: asNumber(m["startSeconds"], 0),
		}
		if end, ok := m["endSeconds"].(float64); ok {
			ch.EndSeconds = &end
		}
		out = append(out, ch)
	}
	return out
}

// keyInsights normalizes each item: objects with explicit timestamp or
// importance keys pass through with text stringified; anything else
// becomes {0, 5, stringOf(item)}.
func keyInsights(v interface{}) []model.KeyInsight {
	out := []model.KeyInsight{}
	for _, item := range asArray(v) {
		if m, ok := item.(map[string]interface{}); ok {
			_, hasTS := m["timestamp"]
			_, hasImp := m["importance"]
			if hasTS || hasImp {
				out = append(out, model.KeyInsight{
					Timestamp:  asNumber(m["timestamp"], 0),
					Importance: asNumber(m["importance"], 5),
					Text:       stringOf(m["text"]),
				})
				continue
			}
		}
		out = append(out, model.KeyInsight{
			Timestamp:  0,
			Importance: 5,
			Text:       stringOf(item),
		})
	}
	return out
}

func timeline(v interface{}) []model.TimelineMarker {
	out := []model.TimelineMarker{}
	for _, item := range asArray(v) {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		marker := model.TimelineMarker{
			Position: asNumber(m["position"], 0),
			Label:    asString(m["label"], ""),
			Type:     model.MarkerType(asString(m["type"], "")),
		}
		switch marker.Type {
		case model.MarkerPrimary, model.MarkerWarning, model.MarkerAccent:
		default:
			marker.Type = model.MarkerPrimary
		}
		out = append(out, marker)
	}
	return out
}

func diagram(v interface{}) []model.DiagramPoint {
	out := []model.DiagramPoint{}
	for _, item := range asArray(v) {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, model.DiagramPoint{
			TimeSeconds: asNumber(m["timeSeconds"], 0),
			Label:       asString(m["label"], ""),
			Description: asString(m["description"], ""),
		})
	}
	return out
}
