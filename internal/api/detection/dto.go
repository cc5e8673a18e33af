package detection

type PredictFrameRequest struct {
	Image string `json:"image" validate:"required"`
}

type Prediction struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	BBox       *[4]float64 `json:"bbox,omitempty"`
}

type PredictionResponse struct {
	Predictions []Prediction `json:"predictions"`
	ImageURL    string       `json:"image_url,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Backend string `json:"backend"`
}

// ConfidenceScale selects how confidences are reported on every endpoint.
type ConfidenceScale string

const (
	ScaleFraction ConfidenceScale = "fraction"
	ScalePercent  ConfidenceScale = "percent"
)

func (s ConfidenceScale) Factor() float64 {
	if s == ScalePercent {
		return 100
	}
	return 1
}
