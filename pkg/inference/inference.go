// Package inference is the boundary to the pretrained detection model.
//
// A Detector is built once at startup and shared by every request, so each
// implementation must be safe for concurrent use. Calls are independent
// forward passes: nothing is cached, batched or retried.
package inference

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrUnreadableImage marks input the model backend could not decode.
	ErrUnreadableImage = errors.New("image could not be read")
	// ErrModelNotFound is returned when the model artifact is missing at startup.
	ErrModelNotFound = errors.New("model artifact not found")
)

// Box is one detection in source image pixels.
type Box struct {
	ClassID    int
	Confidence float32
	Rect       [4]float32 // x1, y1, x2, y2
}

type Detector interface {
	// Name identifies the backend in logs and the health endpoint.
	Name() string
	// DetectFile runs the model on an image stored at path.
	DetectFile(ctx context.Context, path string, conf float32) ([]Box, error)
	// DetectImage runs the model on an already decoded image.
	DetectImage(ctx context.Context, img image.Image, conf float32) ([]Box, error)
	// ClassName maps a class index to its label.
	ClassName(id int) string
	Close() error
}
