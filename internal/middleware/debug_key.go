package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// DebugKeyHeader carries the operator key for debug endpoints.
const DebugKeyHeader = "X-Debug-Key"

// DebugKey rejects requests whose X-Debug-Key does not match the bcrypt hash.
func DebugKey(hash string) fiber.Handler {
	hashed := []byte(hash)
	return func(c *fiber.Ctx) error {
		key := c.Get(DebugKeyHeader)
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing debug key")
		}
		if err := bcrypt.CompareHashAndPassword(hashed, []byte(key)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid debug key")
		}
		return c.Next()
	}
}
