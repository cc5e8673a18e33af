package detection

import (
	"ProjectVision/pkg/response"
	"net/http"
)

var (
	ErrNoImageFile          = response.NewError(http.StatusBadRequest, "No image file")
	ErrNoImageData          = response.NewError(http.StatusBadRequest, "No image data provided")
	ErrInvalidRequestBody   = response.NewError(http.StatusBadRequest, "Invalid request body")
	ErrImageTooLarge        = response.NewError(http.StatusRequestEntityTooLarge, "Image too large")
	ErrUnsupportedImageType = response.NewError(http.StatusUnsupportedMediaType, "Unsupported image type")
)

const (
	MessageInvalidImage    = "Failed to process image: invalid image data"
	MessageInferenceFailed = "Failed to process image: inference failed"
)

// DecodeError wraps a failure to turn request bytes into pixels.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// InferenceError wraps a failure raised by the detection model.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
