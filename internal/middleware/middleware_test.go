package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/daraja_gateway/internal/logging"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return cache, mr, cleanup
}

func okHandler(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusOK)
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	var seen string
	app.Get("/", func(c *fiber.Ctx) error {
		seen = GetRequestID(c)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	got := resp.Header.Get(requestIDHeader)
	assert.NotEmpty(t, got)
	assert.Equal(t, seen, got)

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "caller-id", resp.Header.Get(requestIDHeader))
	assert.Equal(t, "caller-id", seen)
}

func TestAuditSetsResponseTimeAndRendersErrors(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Audit(logging.Discard()))
	app.Get("/ok", okHandler)
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	for path, want := range map[string]int{"/ok": fiber.StatusOK, "/teapot": fiber.StatusTeapot, "/boom": fiber.StatusInternalServerError} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err, path)
		assert.Equal(t, want, resp.StatusCode, path)
		assert.Regexp(t, `^\d+ms$`, resp.Header.Get(responseTimeHeader), path)
	}
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	cache, mr, cleanup := setupRedis(t)
	defer cleanup()

	app := fiber.New()
	app.Get("/debug", RateLimit(cache, "debug", 2), okHandler)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/debug", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/debug", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Positive(t, mr.TTL(keys[0]))
}

func TestRateLimitRestoresMissingExpiry(t *testing.T) {
	cache, mr, cleanup := setupRedis(t)
	defer cleanup()

	// Counter left behind without a TTL, as after a failed EXPIRE.
	key := "rl:debug:0.0.0.0"
	require.NoError(t, mr.Set(key, "1"))
	require.Zero(t, mr.TTL(key))

	app := fiber.New()
	app.Get("/debug", RateLimit(cache, "debug", 5), okHandler)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/debug", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, rateLimitWindow, mr.TTL(key))

	mr.FastForward(rateLimitWindow + time.Second)
	assert.False(t, mr.Exists(key))
}

func TestRateLimitFailsOpen(t *testing.T) {
	app := fiber.New()
	app.Get("/nil", RateLimit(nil, "debug", 1), okHandler)

	cache, _, cleanup := setupRedis(t)
	cleanup()
	app.Get("/down", RateLimit(cache, "debug", 1), okHandler)

	for _, path := range []string{"/nil", "/nil", "/down", "/down"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil), -1)
		require.NoError(t, err, path)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}
}

func TestDebugKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/debug", DebugKey(string(hash)), okHandler)

	cases := map[string]int{
		"":            fiber.StatusUnauthorized,
		"wrong":       fiber.StatusUnauthorized,
		"open-sesame": fiber.StatusOK,
	}
	for key, want := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/debug", nil)
		if key != "" {
			req.Header.Set(DebugKeyHeader, key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "key %q", key)
	}
}
