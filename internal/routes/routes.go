package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/daraja_gateway/internal/config"
	"github.com/congo-pay/daraja_gateway/internal/middleware"
	"github.com/congo-pay/daraja_gateway/internal/mpesa"
	"github.com/congo-pay/daraja_gateway/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Middlewares
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(recover.New())

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	client := mpesa.NewClient(d.Cfg.Mpesa.BaseURL(), d.Cfg.Mpesa.HTTPTimeout, d.Logger)
	credentials := mpesa.NewCredentialManager(client, d.Cfg.Mpesa, mpesa.NewRedisTokenCache(d.Cache), d.Logger)
	initiator := mpesa.NewInitiator(client, d.Cfg.Mpesa, credentials, credentials, d.Logger)
	receiver := mpesa.NewReceiver(notification.NewLoggerNotifier(d.Logger), d.Logger)
	handler := mpesa.NewHandler(credentials, credentials, initiator, receiver)

	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterMpesaRoutes(app.Group("/mpesa"), handler, d)

	return nil
}
