package detectionService

import (
	"ProjectVision/internal/api/detection"
	"ProjectVision/pkg/inference"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPredictionsKeepsModelOrder(t *testing.T) {
	boxes := []inference.Box{
		{ClassID: 14, Confidence: 0.31},
		{ClassID: 0, Confidence: 0.99},
		{ClassID: 14, Confidence: 0.55},
	}

	predictions := FormatPredictions(boxes, inference.CocoClassNames(), detection.ScaleFraction)

	classes := make([]string, 0, len(predictions))
	for _, p := range predictions {
		classes = append(classes, p.Class)
	}
	assert.Equal(t, []string{"bird", "person", "bird"}, classes)
	assert.Equal(t, 0.31, predictions[0].Confidence)
}

func TestFormatPredictionsRounding(t *testing.T) {
	boxes := []inference.Box{
		{ClassID: 1, Confidence: 0.126},
		{ClassID: 1, Confidence: 0.994},
		{ClassID: 1, Confidence: 0.005},
		{ClassID: 1, Confidence: 1.2},
		{ClassID: 1, Confidence: -0.1},
	}

	for _, scale := range []detection.ConfidenceScale{detection.ScaleFraction, detection.ScalePercent} {
		predictions := FormatPredictions(boxes, inference.CocoClassNames(), scale)
		for _, p := range predictions {
			assert.GreaterOrEqual(t, p.Confidence, 0.0)
			assert.LessOrEqual(t, p.Confidence, scale.Factor())
			assert.InDelta(t, p.Confidence, math.Round(p.Confidence*100)/100, 1e-9, "two decimals at most")
		}
	}

	fraction := FormatPredictions(boxes[:2], inference.CocoClassNames(), detection.ScaleFraction)
	assert.Equal(t, 0.13, fraction[0].Confidence)
	assert.Equal(t, 0.99, fraction[1].Confidence)

	percent := FormatPredictions(boxes[:2], inference.CocoClassNames(), detection.ScalePercent)
	assert.Equal(t, 12.6, percent[0].Confidence)
	assert.Equal(t, 99.4, percent[1].Confidence)
}

func TestFormatPredictionsEmpty(t *testing.T) {
	predictions := FormatPredictions(nil, inference.CocoClassNames(), detection.ScaleFraction)
	assert.NotNil(t, predictions)
	assert.Empty(t, predictions)
}
