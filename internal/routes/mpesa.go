package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/daraja_gateway/internal/middleware"
	"github.com/congo-pay/daraja_gateway/internal/mpesa"
)

// RegisterMpesaRoutes mounts the Daraja endpoints on r.
//
// The token and credential endpoints expose secrets, so they sit behind the
// debug key when one is configured. Without a key they are only mounted in
// sandbox.
func RegisterMpesaRoutes(r fiber.Router, h *mpesa.Handler, d Deps) {
	if debug := debugGuards(d); debug != nil {
		r.Get("/access-token", append(debug, h.AccessToken)...)
		r.Get("/security-credentials", append(debug, h.SecurityCredentials)...)
	} else {
		d.Logger.Warn("debug endpoints disabled: DEBUG_KEY_HASH is not set in production")
	}

	r.Post("/init-b2c", h.InitiatePayout)
	r.Post("/stkpush", h.PushPayment)
	r.Get("/account-balance", h.AccountBalance)

	r.Post("/callback/result", h.PayoutResult)
	r.Post("/callback/stk/result", h.PushPaymentResult)

	r.Post("/b2b", h.B2B)
	r.Post("/c2b", h.C2B)
}

// debugGuards returns the middleware chain for debug endpoints, or nil when
// they must not be mounted.
func debugGuards(d Deps) []fiber.Handler {
	limiter := middleware.RateLimit(d.Cache, "debug", d.Cfg.DebugRateLimit)
	if d.Cfg.DebugKeyHash != "" {
		return []fiber.Handler{limiter, middleware.DebugKey(d.Cfg.DebugKeyHash)}
	}
	if d.Cfg.Mpesa.IsProduction() {
		return nil
	}
	return []fiber.Handler{limiter}
}
