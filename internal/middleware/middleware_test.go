package middleware

import (
	"ProjectVision/pkg/utils"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRequestIDMiddleware(t *testing.T) {
	m := New(quietLogger(), 50, 100, utils.New(0, 0))

	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(m.GetRequestID(c))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	generated := resp.Header.Get(RequestIDKey)
	assert.Len(t, generated, 26)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, generated, string(body))

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(RequestIDKey, "client-id")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "client-id", resp.Header.Get(RequestIDKey))
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	m := New(quietLogger(), 0, 0, nil)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(m.GetRequestID(c))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "unknown", string(body))
}

func TestRateLimiter(t *testing.T) {
	m := New(quietLogger(), 0.001, 2, nil)

	app := fiber.New()
	app.Use(m.NewRateLimiter)
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Too many requests"}`, string(body))
}

func TestAllowSharesBucketWithRateLimiter(t *testing.T) {
	m := New(quietLogger(), 0.001, 2, nil)

	assert.True(t, m.Allow("10.0.0.7"))
	assert.True(t, m.Allow("10.0.0.7"))
	assert.False(t, m.Allow("10.0.0.7"))
	assert.True(t, m.Allow("10.0.0.8"))
}

func TestResponseStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler fiber.Handler
		status  int
	}{
		{"written status", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) }, fiber.StatusCreated},
		{"fiber error", func(c *fiber.Ctx) error { return fiber.ErrUpgradeRequired }, fiber.StatusUpgradeRequired},
		{"plain error", func(c *fiber.Ctx) error { return assert.AnError }, fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				err := c.Next()
				got = responseStatus(c, err)
				return err
			})
			app.Get("/", tt.handler)

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.status, got)
		})
	}
}

func TestGetLimiterFromReusesBucket(t *testing.T) {
	limiter := newRateLimiter(1, 1)
	assert.Same(t, limiter.GetLimiterFrom("10.0.0.1"), limiter.GetLimiterFrom("10.0.0.1"))
	assert.NotSame(t, limiter.GetLimiterFrom("10.0.0.1"), limiter.GetLimiterFrom("10.0.0.2"))
}

func TestSanitizeRequestBody(t *testing.T) {
	got := sanitizeRequestBody(fiber.MIMEApplicationJSON, []byte(`{"image":"data:image/png;base64,AAAA"}`))
	assert.JSONEq(t, `{"image":"[image data: 26 chars]"}`, got)

	got = sanitizeRequestBody(fiber.MIMEApplicationJSON, []byte(`{"image":42,"note":"hi"}`))
	assert.JSONEq(t, `{"image":"[image data]","note":"hi"}`, got)

	got = sanitizeRequestBody(fiber.MIMEMultipartForm+"; boundary=xyz", []byte("--xyz\r\n..."))
	assert.Equal(t, "[multipart body: 10 bytes]", got)

	got = sanitizeRequestBody(fiber.MIMETextPlain, []byte("hello"))
	assert.Equal(t, "[non-JSON body: 5 bytes]", got)
}
