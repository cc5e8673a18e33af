package onnx

import (
	"io"
	"path/filepath"
	"testing"

	"ProjectVision/pkg/inference"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewMissingModel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := New(Options{ModelPath: filepath.Join(t.TempDir(), "best.onnx")}, logger)
	assert.ErrorIs(t, err, inference.ErrModelNotFound)
}

func TestSuppressKeepsOverlapsFromDifferentClasses(t *testing.T) {
	d := &Detector{opts: Options{IOUThreshold: 0.5}}

	boxes := d.suppress([]inference.Box{
		{ClassID: 0, Confidence: 0.9, Rect: [4]float32{10, 10, 110, 110}},
		{ClassID: 0, Confidence: 0.6, Rect: [4]float32{12, 12, 112, 112}},
		{ClassID: 1, Confidence: 0.8, Rect: [4]float32{10, 10, 110, 110}},
	}, 0.25)

	if assert.Len(t, boxes, 2) {
		assert.InDelta(t, 0.9, boxes[0].Confidence, 1e-6)
		assert.Equal(t, 1, boxes[1].ClassID)
	}

	assert.Empty(t, d.suppress(nil, 0.25))
}

func TestSuppressSeparatesClassesOnLargeImages(t *testing.T) {
	d := &Detector{opts: Options{IOUThreshold: 0.5}}

	// With a fixed 4096 px shift, class 1 at (4,4) would land on class 0.
	boxes := d.suppress([]inference.Box{
		{ClassID: 0, Confidence: 0.9, Rect: [4]float32{4100, 4100, 4200, 4200}},
		{ClassID: 1, Confidence: 0.8, Rect: [4]float32{4, 4, 104, 104}},
	}, 0.25)

	assert.Len(t, boxes, 2)
}
