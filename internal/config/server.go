package config

import (
	detectionHandler "ProjectVision/internal/api/detection/handler"
	detectionService "ProjectVision/internal/api/detection/service"
	"ProjectVision/internal/middleware"
	"ProjectVision/pkg/inference"
	"ProjectVision/pkg/inference/onnx"
	"ProjectVision/pkg/s3"
	"ProjectVision/pkg/scratch"
	"ProjectVision/pkg/utils"
	websocketPkg "ProjectVision/pkg/websocket"
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine     *fiber.App
	log        *logrus.Logger
	cfg        *AppConfig
	middleware middleware.Middleware
	validator  *validator.Validate
	utils      utils.IUtils
	detector   inference.Detector
	scratch    scratch.IScratch
	s3Client   s3.ItfS3
	handlers   []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if server.detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if server.scratch == nil {
		return nil, fmt.Errorf("scratch directory is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New(server.cfg.MaxUploadBytes, server.cfg.MaxImagePixels)
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log, server.cfg.RateLimit, server.cfg.RateBurst, server.utils)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithConfig(cfg *AppConfig) ServerOption {
	return func(s *Server) error {
		s.cfg = cfg
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		if s.cfg == nil {
			return fmt.Errorf("config must be loaded before utils")
		}
		s.utils = utils.New(s.cfg.MaxUploadBytes, s.cfg.MaxImagePixels)
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		if s.cfg == nil {
			return fmt.Errorf("config must be loaded before middleware")
		}
		s.middleware = middleware.New(s.log, s.cfg.RateLimit, s.cfg.RateBurst, s.utils)
		return nil
	}
}

// WithDetector installs a ready detector, bypassing backend selection.
func WithDetector(detector inference.Detector) ServerOption {
	return func(s *Server) error {
		s.detector = detector
		return nil
	}
}

// WithInferenceBackend builds the detector named by INFERENCE_BACKEND. A
// missing model is an error. An unreachable remote service only warns since
// it may come up after this process.
func WithInferenceBackend() ServerOption {
	return func(s *Server) error {
		if s.log == nil || s.cfg == nil {
			return fmt.Errorf("logger and config must be initialized before the detector")
		}

		names, err := inference.LoadClassNames(s.cfg.NamesPath)
		if err != nil {
			return err
		}

		switch s.cfg.Backend {
		case BackendRemote:
			remote, err := inference.NewRemote(s.cfg.InferenceURL, names, s.cfg.RequestTimeout, s.log)
			if err != nil {
				return err
			}
			if err := remote.CheckHealth(); err != nil {
				s.log.WithFields(logrus.Fields{
					"inference_url": s.cfg.InferenceURL,
					"error":         err.Error(),
				}).Warn("Inference service is not reachable yet")
			}
			s.detector = remote
		case BackendStream:
			s.detector = websocketPkg.NewStreamDetector(websocketPkg.Options{
				URL:         s.cfg.InferenceWSURL,
				Names:       names,
				ReadTimeout: s.cfg.RequestTimeout,
			}, s.log)
		default:
			detector, err := onnx.New(onnx.Options{
				ModelPath:    s.cfg.ModelPath,
				InputSize:    s.cfg.InputSize,
				IOUThreshold: s.cfg.IOUThreshold,
				Names:        names,
			}, s.log)
			if err != nil {
				if errors.Is(err, inference.ErrModelNotFound) {
					s.log.Errorf("Model artifact not found at %s", s.cfg.ModelPath)
				}
				return fmt.Errorf("failed to load detection model: %w", err)
			}
			s.detector = detector
		}

		return nil
	}
}

func WithScratch() ServerOption {
	return func(s *Server) error {
		if s.cfg == nil {
			return fmt.Errorf("config must be loaded before scratch storage")
		}
		dir, err := scratch.New(s.cfg.ScratchDir, s.log)
		if err != nil {
			return fmt.Errorf("failed to prepare scratch directory: %w", err)
		}
		s.scratch = dir
		return nil
	}
}

// WithS3Client enables the upload archive when a bucket is configured.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if s.cfg == nil || !s.cfg.ArchiveEnabled() {
			return nil
		}

		client, err := s3.New(s3.Config{
			Region:          s.cfg.AWSRegion,
			AccessKeyID:     s.cfg.AWSAccessKeyID,
			SecretAccessKey: s.cfg.AWSSecretAccessKey,
			BucketName:      s.cfg.AWSBucketName,
			Prefix:          s.cfg.AWSPrefix,
		})
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func (s *Server) RegisterHandler() {
	detectionServices := detectionService.NewDetectionService(
		s.log,
		s.detector,
		s.scratch,
		s.s3Client,
		s.utils,
		detectionService.Options{
			UploadConfidence: s.cfg.UploadConfidence,
			FrameConfidence:  s.cfg.FrameConfidence,
			Scale:            s.cfg.ConfidenceScale,
			RetainUploads:    s.cfg.ScratchRetain,
		},
	)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.cfg.RequestTimeout, int64(s.cfg.BodyLimit))

	s.engine.Use(recover.New())
	s.engine.Use(cors.New())
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(middleware.LoggerConfig())

	s.handlers = append(s.handlers, detectionHandlers)
	s.setupHealthCheck(detectionHandlers)

	for _, h := range s.handlers {
		h.Start(s.engine)
		h.Start(s.engine.Group("/api"))
	}
}

func (s *Server) Run() error {
	s.log.WithFields(logrus.Fields{
		"port":    s.cfg.Port,
		"backend": s.detector.Name(),
	}).Info("Starting detection server")

	return s.engine.Listen(fmt.Sprintf(":%s", s.cfg.Port))
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the detector.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.engine.ShutdownWithContext(ctx)
	if closeErr := s.detector.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

func (s *Server) setupHealthCheck(h *detectionHandler.DetectionHandler) {
	s.engine.Get("/", h.Health)
}
