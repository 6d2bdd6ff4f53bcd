package response

import "github.com/gofiber/fiber/v2"

// ErrorResponse is the flat error shape returned by every endpoint:
// {"error": "...", "detail": "..."} — detail is optional diagnostic
// text for operators, error the short user-facing message.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func Error(c *fiber.Ctx, status int, message, detail string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:  message,
		Detail: detail,
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message, "")
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message, "")
}

func ServiceError(c *fiber.Ctx, message, detail string) error {
	return Error(c, fiber.StatusInternalServerError, message, detail)
}

func UpstreamError(c *fiber.Ctx, message, detail string) error {
	return Error(c, fiber.StatusBadGateway, message, detail)
}

func Unavailable(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusServiceUnavailable, message, "")
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, "rate limit exceeded", "")
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}
