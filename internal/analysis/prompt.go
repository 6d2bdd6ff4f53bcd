package analysis

// Prompt is the fixed instruction payload sent with every generation
// request. The model is asked for a single JSON object; Parse tolerates
// fenced code blocks and surrounding prose anyway.
const Prompt = `Watch this video carefully and produce a structured analysis.

Respond with a single JSON object, no other text, in this exact shape:

{
  "summary": "2-4 sentence overview of the video",
  "thoughtTrace": ["short reasoning step", "..."],
  "chapters": [{"title": "...", "startSeconds": 0, "endSeconds": 42}],
  "keyInsights": [{"timestamp": 12, "importance": 8, "text": "..."}],
  "timelineData": [{"position": 25, "label": "...", "type": "primary"}],
  "diagramData": [{"timeSeconds": 30, "label": "...", "description": "..."}]
}

Rules:
- importance is an integer from 1 (minor) to 10 (critical).
- position is a percentage of the video duration from 0 to 100.
- type is one of "primary", "warning" or "accent".
- chapters and timestamps use seconds from the start of the video.
- Keep labels short; put detail into descriptions and insight text.`
