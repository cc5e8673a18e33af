package config

import (
	"ProjectVision/internal/api/detection"
	"ProjectVision/pkg/utils"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
	BackendStream = "stream"
)

// AppConfig is the process configuration, read once from the environment.
type AppConfig struct {
	Port    string `validate:"required,numeric"`
	Env     string
	LogDir  string
	Backend string `validate:"oneof=onnx remote stream"`

	ModelPath      string `validate:"required_if=Backend onnx"`
	NamesPath      string
	InferenceURL   string `validate:"required_if=Backend remote,omitempty,url"`
	InferenceWSURL string `validate:"required_if=Backend stream,omitempty,url"`
	InputSize      int    `validate:"gt=0"`

	UploadConfidence float32                   `validate:"gte=0,lte=1"`
	FrameConfidence  float32                   `validate:"gte=0,lte=1"`
	IOUThreshold     float32                   `validate:"gt=0,lte=1"`
	ConfidenceScale  detection.ConfidenceScale `validate:"oneof=fraction percent"`

	ScratchDir     string `validate:"required"`
	ScratchRetain  bool
	MaxUploadBytes int64         `validate:"gt=0"`
	MaxImagePixels int64         `validate:"gt=0"`
	BodyLimit      int           `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	RateLimit      float64       `validate:"gt=0"`
	RateBurst      int           `validate:"gt=0"`

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSBucketName      string
	AWSPrefix          string
}

// LoadAppConfig reads the environment, applies defaults and validates the
// result.
func LoadAppConfig(validate *validator.Validate) (*AppConfig, error) {
	cfg := &AppConfig{
		Port:    getEnv("APP_PORT", "5000"),
		Env:     getEnv("APP_ENV", "development"),
		LogDir:  getEnv("LOG_DIR", "./storage/logs"),
		Backend: strings.ToLower(getEnv("INFERENCE_BACKEND", BackendONNX)),

		ModelPath:      getEnv("MODEL_PATH", "best.onnx"),
		NamesPath:      getEnv("NAMES_PATH", ""),
		InferenceURL:   getEnv("INFERENCE_URL", ""),
		InferenceWSURL: getEnv("INFERENCE_WS_URL", ""),

		ConfidenceScale: detection.ConfidenceScale(strings.ToLower(getEnv("CONFIDENCE_SCALE", string(detection.ScaleFraction)))),
		ScratchDir:      getEnv("SCRATCH_DIR", "uploads"),

		AWSRegion:          getEnv("AWS_REGION", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSBucketName:      getEnv("AWS_BUCKET_NAME", ""),
		AWSPrefix:          getEnv("AWS_PREFIX", "uploads"),
	}

	var err error
	if cfg.InputSize, err = getEnvInt("INPUT_SIZE", 640); err != nil {
		return nil, err
	}
	if cfg.UploadConfidence, err = getEnvFloat32("UPLOAD_CONFIDENCE", 0.25); err != nil {
		return nil, err
	}
	if cfg.FrameConfidence, err = getEnvFloat32("FRAME_CONFIDENCE", 0.25); err != nil {
		return nil, err
	}
	if cfg.IOUThreshold, err = getEnvFloat32("IOU_THRESHOLD", 0.7); err != nil {
		return nil, err
	}
	if cfg.ScratchRetain, err = getEnvBool("SCRATCH_RETAIN", false); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024); err != nil {
		return nil, err
	}
	if cfg.MaxImagePixels, err = getEnvInt64("MAX_IMAGE_PIXELS", utils.DefaultMaxImagePixels); err != nil {
		return nil, err
	}
	if cfg.BodyLimit, err = getEnvInt("BODY_LIMIT", 20*1024*1024); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getEnvFloat64("RATE_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = getEnvInt("RATE_BURST", 100); err != nil {
		return nil, err
	}

	if validate == nil {
		validate = NewValidator()
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ArchiveEnabled reports whether uploads are copied to S3.
func (c *AppConfig) ArchiveEnabled() bool {
	return c.AWSBucketName != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getEnvFloat64(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getEnvFloat32(key string, fallback float32) (float32, error) {
	value, err := getEnvFloat64(key, float64(fallback))
	return float32(value), err
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}
