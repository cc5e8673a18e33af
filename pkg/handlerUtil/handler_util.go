package handlerUtil

import (
	"ProjectVision/internal/api/detection"
	"ProjectVision/pkg/log"
	"ProjectVision/pkg/response"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Handle writes the response for err. Only fixed messages reach the client;
// the underlying cause is logged with the request id.
func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}

	var respErr *response.Error
	if errors.As(err, &respErr) {
		fields["code"] = respErr.Code
		h.logger.WithFields(fields).Warn("Operation failed with error response")
		return c.Status(respErr.Code).JSON(detection.ErrorResponse{Error: respErr.Error()})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.WithFields(fields).Warn("Request deadline exceeded")
		return h.HandleRequestTimeout(c)
	}

	var decodeErr *detection.DecodeError
	if errors.As(err, &decodeErr) {
		h.logger.WithFields(fields).Error("Image decoding failed")
		return c.Status(fiber.StatusInternalServerError).JSON(detection.ErrorResponse{
			Error: detection.MessageInvalidImage,
		})
	}

	var inferenceErr *detection.InferenceError
	if errors.As(err, &inferenceErr) {
		h.logger.WithFields(fields).Error("Inference failed")
		return c.Status(fiber.StatusInternalServerError).JSON(detection.ErrorResponse{
			Error: detection.MessageInferenceFailed,
		})
	}

	h.logger.WithFields(fields).Error("Unexpected error")

	return c.Status(fiber.StatusInternalServerError).JSON(detection.ErrorResponse{
		Error: "An unexpected error occurred",
	})
}

// HandleValidationError answers with the client error the caller picked for a
// failed struct validation. The validator output is logged, not returned.
func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string, clientErr error) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return h.Handle(c, requestID, clientErr, path, "validate_request")
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestTimeout).JSON(detection.ErrorResponse{
		Error: utils.StatusMessage(fiber.StatusRequestTimeout),
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}

// Message returns the client-facing text for err, the same text Handle
// would write. Streaming transports use it to build their error frames.
func Message(err error) string {
	var respErr *response.Error
	var decodeErr *detection.DecodeError
	var inferenceErr *detection.InferenceError

	switch {
	case errors.As(err, &respErr):
		return respErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return utils.StatusMessage(fiber.StatusRequestTimeout)
	case errors.As(err, &decodeErr):
		return detection.MessageInvalidImage
	case errors.As(err, &inferenceErr):
		return detection.MessageInferenceFailed
	default:
		return "An unexpected error occurred"
	}
}
