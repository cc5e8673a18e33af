package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// head lays anchors out as [1, 4+classes, anchors], padding with empty anchors
// so the anchor axis stays the longer one as in real exports.
func head(anchors [][]float32) ([]float32, []int) {
	attrs := len(anchors[0])
	for len(anchors) <= attrs {
		anchors = append(anchors, make([]float32, attrs))
	}
	data := make([]float32, attrs*len(anchors))
	for i, anchor := range anchors {
		for a, v := range anchor {
			data[a*len(anchors)+i] = v
		}
	}
	return data, []int{1, attrs, len(anchors)}
}

func TestDecodeYOLOv8(t *testing.T) {
	data, dims := head([][]float32{
		{100, 100, 40, 20, 0.10, 0.90},
		{300, 200, 60, 60, 0.20, 0.10},
		{50, 50, 200, 200, 0.60, 0.30},
	})

	boxes, err := DecodeYOLOv8(data, dims, 0.25, 2, 1, 1000, 1000)
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	assert.Equal(t, 1, boxes[0].ClassID)
	assert.InDelta(t, 0.90, boxes[0].Confidence, 1e-6)
	assert.Equal(t, [4]float32{160, 90, 240, 110}, boxes[0].Rect)

	assert.Equal(t, 0, boxes[1].ClassID)
	assert.Equal(t, [4]float32{0, 0, 300, 150}, boxes[1].Rect, "clipped to the source image")
}

func TestDecodeYOLOv8Transposed(t *testing.T) {
	anchors := [][]float32{
		{10, 10, 4, 4, 0.8},
		{20, 20, 4, 4, 0.1},
		{30, 30, 4, 4, 0.5},
		{40, 40, 4, 4, 0.05},
		{50, 50, 4, 4, 0.3},
		{60, 60, 4, 4, 0.7},
	}
	var data []float32
	for _, anchor := range anchors {
		data = append(data, anchor...)
	}

	boxes, err := DecodeYOLOv8(data, []int{1, len(anchors), 5}, 0.5, 1, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, boxes, 3)
	assert.Equal(t, [4]float32{8, 8, 12, 12}, boxes[0].Rect)
	assert.InDelta(t, 0.5, boxes[1].Confidence, 1e-6)
	assert.InDelta(t, 0.7, boxes[2].Confidence, 1e-6)
}

func TestDecodeYOLOv8RejectsBadShapes(t *testing.T) {
	_, err := DecodeYOLOv8(make([]float32, 10), []int{84, 8400}, 0.25, 1, 1, 0, 0)
	assert.Error(t, err)

	_, err = DecodeYOLOv8(make([]float32, 10), []int{1, 84, 8400}, 0.25, 1, 1, 0, 0)
	assert.Error(t, err, "data shorter than the declared shape")

	_, err = DecodeYOLOv8(make([]float32, 8), []int{1, 4, 2}, 0.25, 1, 1, 0, 0)
	assert.Error(t, err, "no class scores")
}
