package inference

import (
	"fmt"
)

// DecodeYOLOv8 turns the raw head of a YOLOv8 style export into candidate boxes.
//
// dims is the output tensor shape, either [1, 4+C, N] (the default Ultralytics
// export) or its transpose [1, N, 4+C]. Each anchor holds cx, cy, w, h in model
// input pixels followed by C class scores. Only the best class per anchor is
// kept and anchors scoring below conf are dropped. scaleX and scaleY map model
// input pixels back to the source image, whose size clips the boxes.
// The result is not suppressed; callers run NMS.
func DecodeYOLOv8(data []float32, dims []int, conf, scaleX, scaleY float32, width, height int) ([]Box, error) {
	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}

	attrs, anchors := dims[1], dims[2]
	transposed := false
	if attrs > anchors {
		attrs, anchors = anchors, attrs
		transposed = true
	}

	if attrs <= 4 {
		return nil, fmt.Errorf("output shape %v has no class scores", dims)
	}
	if len(data) < attrs*anchors {
		return nil, fmt.Errorf("output holds %d values, shape %v needs %d", len(data), dims, attrs*anchors)
	}

	at := func(attr, anchor int) float32 {
		if transposed {
			return data[anchor*attrs+attr]
		}
		return data[attr*anchors+anchor]
	}

	var boxes []Box
	for i := 0; i < anchors; i++ {
		bestClass, bestScore := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if score := at(c, i); score > bestScore {
				bestClass, bestScore = c-4, score
			}
		}
		if bestClass < 0 || bestScore < conf {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		boxes = append(boxes, Box{
			ClassID:    bestClass,
			Confidence: bestScore,
			Rect: [4]float32{
				clamp((cx-w/2)*scaleX, float32(width)),
				clamp((cy-h/2)*scaleY, float32(height)),
				clamp((cx+w/2)*scaleX, float32(width)),
				clamp((cy+h/2)*scaleY, float32(height)),
			},
		})
	}

	return boxes, nil
}

func clamp(v, limit float32) float32 {
	if v < 0 {
		return 0
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}
