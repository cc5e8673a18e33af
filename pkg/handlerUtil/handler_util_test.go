package handlerUtil

import (
	"ProjectVision/internal/api/detection"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	handler := New(logger)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"client error", detection.ErrNoImageFile, fiber.StatusBadRequest, "No image file"},
		{"wrapped client error", fmt.Errorf("read upload: %w", detection.ErrImageTooLarge), fiber.StatusRequestEntityTooLarge, "Image too large"},
		{"unsupported type", detection.ErrUnsupportedImageType, fiber.StatusUnsupportedMediaType, "Unsupported image type"},
		{"decode", &detection.DecodeError{Err: errors.New("illegal base64 data at input byte 4")}, fiber.StatusInternalServerError, detection.MessageInvalidImage},
		{"inference", &detection.InferenceError{Err: errors.New("cv::dnn blob mismatch")}, fiber.StatusInternalServerError, detection.MessageInferenceFailed},
		{"deadline", fmt.Errorf("detect: %w", context.DeadlineExceeded), fiber.StatusRequestTimeout, "Request Timeout"},
		{"unknown", errors.New("disk full"), fiber.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return handler.Handle(c, "req-1", tt.err, c.Path(), "test")
			})

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)

			var body detection.ErrorResponse
			require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, tt.message, Message(tt.err))
		})
	}
}

func TestHandleValidationError(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	handler := New(logger)

	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		return handler.HandleValidationError(c, "req-2", errors.New("Key: 'Image' failed on the 'required' tag"), c.Path(), detection.ErrNoImageData)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"No image data provided"}`, string(raw))
}
