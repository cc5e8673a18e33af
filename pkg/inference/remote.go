package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Detection is one box as exchanged with remote inference services.
type Detection struct {
	ClassID    int        `json:"class_id"`
	Confidence float32    `json:"confidence"`
	Box        [4]float32 `json:"box"`
}

// DetectionResponse is the reply body of a remote inference service.
type DetectionResponse struct {
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// Boxes converts the reply into Boxes, dropping any below conf.
func (r DetectionResponse) Boxes(conf float32) []Box {
	boxes := make([]Box, 0, len(r.Detections))
	for _, det := range r.Detections {
		if det.Confidence < conf {
			continue
		}
		boxes = append(boxes, Box{
			ClassID:    det.ClassID,
			Confidence: det.Confidence,
			Rect:       det.Box,
		})
	}
	return boxes
}

type RemoteDetector struct {
	inferenceURL string
	timeout      time.Duration
	names        ClassNames
	log          *logrus.Logger
}

// NewRemote builds a Detector that forwards images to an inference service
// over HTTP. The service receives a multipart form with an "image" file and a
// "conf" field and answers with {"detections": [...]}.
func NewRemote(inferenceURL string, names ClassNames, timeout time.Duration, log *logrus.Logger) (*RemoteDetector, error) {
	if _, err := url.ParseRequestURI(inferenceURL); err != nil {
		return nil, fmt.Errorf("invalid inference URL %q: %w", inferenceURL, err)
	}
	if names == nil {
		names = CocoClassNames()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteDetector{
		inferenceURL: inferenceURL,
		timeout:      timeout,
		names:        names,
		log:          log,
	}, nil
}

func (r *RemoteDetector) Name() string {
	return "remote"
}

func (r *RemoteDetector) ClassName(id int) string {
	return r.names.ClassName(id)
}

func (r *RemoteDetector) Close() error {
	return nil
}

// CheckHealth probes GET /health on the inference host.
func (r *RemoteDetector) CheckHealth() error {
	u, err := url.Parse(r.inferenceURL)
	if err != nil {
		return err
	}
	u.Path = "/health"
	u.RawQuery = ""

	code, _, errs := fiber.Get(u.String()).Timeout(5 * time.Second).Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", code)
	}
	return nil
}

func (r *RemoteDetector) DetectFile(ctx context.Context, path string, conf float32) ([]Box, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return r.predict(ctx, filepath.Base(path), data, conf)
}

func (r *RemoteDetector) DetectImage(ctx context.Context, img image.Image, conf float32) ([]Box, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrUnreadableImage, err)
	}
	return r.predict(ctx, "frame.jpg", buf.Bytes(), conf)
}

func (r *RemoteDetector) predict(ctx context.Context, filename string, data []byte, conf float32) ([]Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("conf", strconv.FormatFloat(float64(conf), 'f', -1, 32))

	agent := fiber.Post(r.inferenceURL).
		FileData(&fiber.FormFile{Fieldname: "image", Name: filename, Content: data}).
		MultipartForm(args).
		Timeout(timeout)

	start := time.Now()
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("send request: %w", errors.Join(errs...))
	}

	switch code {
	case fiber.StatusOK:
	case fiber.StatusUnprocessableEntity, fiber.StatusUnsupportedMediaType:
		return nil, fmt.Errorf("%w: inference service rejected input with status %d", ErrUnreadableImage, code)
	default:
		return nil, fmt.Errorf("inference failed with status: %d", code)
	}

	var result DetectionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	boxes := result.Boxes(conf)

	r.log.WithFields(logrus.Fields{
		"detections": len(boxes),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Remote inference finished")

	return boxes, nil
}

var _ Detector = (*RemoteDetector)(nil)
