package detectionService

import (
	"ProjectVision/internal/api/detection"
	"ProjectVision/pkg/inference"
	"math"
)

type classNamer interface {
	ClassName(id int) string
}

// FormatPredictions maps raw boxes to the public shape in model order.
// Confidence is clamped to [0,1], scaled, then rounded to two decimals.
func FormatPredictions(boxes []inference.Box, names classNamer, scale detection.ConfidenceScale) []detection.Prediction {
	predictions := make([]detection.Prediction, 0, len(boxes))
	factor := scale.Factor()

	for _, box := range boxes {
		confidence := math.Min(math.Max(float64(box.Confidence), 0), 1)
		prediction := detection.Prediction{
			Class:      names.ClassName(box.ClassID),
			Confidence: round2(confidence * factor),
		}

		if box.Rect != ([4]float32{}) {
			prediction.BBox = &[4]float64{
				round2(float64(box.Rect[0])),
				round2(float64(box.Rect[1])),
				round2(float64(box.Rect[2])),
				round2(float64(box.Rect[3])),
			}
		}

		predictions = append(predictions, prediction)
	}

	return predictions
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
