package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/daraja_gateway/internal/infra"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		redisStatus := infra.RedisStatus(ctx, d.Cache)
		status := http.StatusOK
		if redisStatus != "ok" && redisStatus != "disabled" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":      fiber.Map{"redis": redisStatus},
			"environment": d.Cfg.Mpesa.Env,
			"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
