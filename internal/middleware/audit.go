package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

const responseTimeHeader = "X-Request-Response-Time"

// Audit emits structured logs for each request/response lifecycle event and
// reports the handler latency in the X-Request-Response-Time header.
//
// Errors are rendered here through the app's ErrorHandler so the logged status
// matches what the client receives.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		duration := time.Since(start)
		c.Set(responseTimeHeader, fmt.Sprintf("%dms", duration.Milliseconds()))

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", duration),
		}
		if requestID := GetRequestID(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
			return nil
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
