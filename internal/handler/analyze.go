package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vidinsight/api/internal/pipeline"
	"github.com/vidinsight/api/pkg/response"
)

// AnalyzeHandler exposes the pipeline trigger endpoint invoked by the
// store's webhook (or directly by operators).
type AnalyzeHandler struct {
	orch *pipeline.Orchestrator
}

func NewAnalyzeHandler(orch *pipeline.Orchestrator) *AnalyzeHandler {
	return &AnalyzeHandler{orch: orch}
}

// Trigger handles POST /api/analyze. The body is either a
// store-originated notification {"record":{"id":...}} or a direct call
// {"video_id":...}. Responds 200 {ok, video_id, duration} on success;
// failures carry the short stored message plus a detailed diagnostic
// for operators.
func (h *AnalyzeHandler) Trigger(c *fiber.Ctx) error {
	videoID, err := pipeline.ParseTrigger(c.Body())
	if err != nil {
		return response.BadRequest(c, "request body carries no video id")
	}

	result, err := h.orch.Run(c.Context(), videoID)
	if err != nil {
		var step *pipeline.StepError
		if errors.As(err, &step) {
			switch step.HTTP {
			case fiber.StatusNotFound:
				return response.NotFound(c, "video job not found")
			default:
				message := step.Stored
				if message == "" {
					message = "analysis pipeline failed"
				}
				return response.Error(c, step.HTTP, message, step.Err.Error())
			}
		}
		return response.ServiceError(c, "analysis pipeline failed", err.Error())
	}

	return response.OK(c, fiber.Map{
		"ok":       true,
		"video_id": result.VideoID,
		"duration": result.Duration.Seconds(),
	})
}
