// Package response renders the JSON envelope shared by every non-callback
// endpoint.
package response

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/daraja_gateway/internal/middleware"
)

const defaultMessage = "Request successful"

// Envelope is the body of every success and failure response.
type Envelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Data       any    `json:"data,omitempty"`
	Path       string `json:"path"`
	RequestID  string `json:"requestId"`
}

// OK writes a success envelope wrapping data.
func OK(c *fiber.Ctx, status int, message string, data any) error {
	if message == "" {
		message = defaultMessage
	}
	return c.Status(status).JSON(newEnvelope(c, true, status, message, data))
}

// ErrorHandler converts handler errors into failure envelopes. Only
// *fiber.Error messages reach the client; anything else becomes a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		message := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		} else {
			logger.Error("unhandled error",
				slog.String("path", c.Path()),
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.Any("error", err),
			)
		}

		return c.Status(status).JSON(newEnvelope(c, false, status, message, nil))
	}
}

func newEnvelope(c *fiber.Ctx, success bool, status int, message string, data any) Envelope {
	return Envelope{
		Success:    success,
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Data:       data,
		Path:       c.OriginalURL(),
		RequestID:  middleware.GetRequestID(c),
	}
}
