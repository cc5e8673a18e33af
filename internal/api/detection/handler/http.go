package detectionHandler

import (
	detectionService "ProjectVision/internal/api/detection/service"
	"ProjectVision/internal/middleware"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second

	clientIPKey = "client_ip"
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	requestTimeout   time.Duration
	maxMessageBytes  int64
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	requestTimeout time.Duration,
	maxMessageBytes int64,
) *DetectionHandler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if maxMessageBytes <= 0 {
		maxMessageBytes = 20 * 1024 * 1024
	}

	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		requestTimeout:   requestTimeout,
		maxMessageBytes:  maxMessageBytes,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals(clientIPKey, c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Get("/health", h.Health)
	srv.Post("/predict", h.middleware.NewRateLimiter, h.Predict)
	srv.Post("/predict-frame", h.middleware.NewRateLimiter, h.PredictFrame)
	srv.Get("/predict-frame/ws", h.middleware.NewRateLimiter, wsMiddleware, websocket.New(h.handleFrameWebSocket))
}
