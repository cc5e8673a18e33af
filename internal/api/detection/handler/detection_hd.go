package detectionHandler

import (
	"ProjectVision/internal/api/detection"
	"ProjectVision/internal/middleware"
	contextPkg "ProjectVision/pkg/context"
	"ProjectVision/pkg/handlerUtil"
	"ProjectVision/pkg/log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

func (h *DetectionHandler) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(detection.HealthResponse{
		Status:  "ok",
		Message: "Object detection API is running",
		Backend: h.detectionService.Backend(),
	})
}

func (h *DetectionHandler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing upload prediction request")

	file, err := ctx.FormFile("image")
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrNoImageFile, ctx.Path(), "read_form_file")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"file_name":  file.Filename,
		"file_size":  file.Size,
	}).Debug("Processing file upload")

	result, err := h.detectionService.PredictUpload(c, file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "predict_upload")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":  requestID,
			"path":        ctx.Path(),
			"predictions": len(result.Predictions),
		}).Info("Upload prediction successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *DetectionHandler) PredictFrame(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing frame prediction request")

	var req detection.PredictFrameRequest
	if err := ctx.BodyParser(&req); err != nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Debug("Frame body could not be parsed")
		return errHandler.Handle(ctx, requestID, detection.ErrInvalidRequestBody, ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path(), detection.ErrNoImageData)
	}

	result, err := h.detectionService.PredictFrame(c, req.Image)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "predict_frame")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":  requestID,
			"path":        ctx.Path(),
			"predictions": len(result.Predictions),
		}).Debug("Frame prediction successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *DetectionHandler) handleFrameWebSocket(c *websocket.Conn) {
	requestID, ok := c.Locals(middleware.RequestIDKey).(string)
	if !ok || requestID == "" {
		requestID = "unknown"
	}

	clientIP, _ := c.Locals(clientIPKey).(string)

	h.log.WithFields(log.Fields{"request_id": requestID, "ip": clientIP}).Info("Frame WebSocket client connected")
	defer h.log.WithFields(log.Fields{"request_id": requestID}).Info("Frame WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		h.log.Debug("Received ping, sending pong")
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	// Oversized messages fail the read and close the connection with 1009.
	c.SetReadLimit(h.maxMessageBytes)

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Frame WebSocket error: %v", err)
			} else {
				h.log.Info("Frame WebSocket connection closed")
			}
			break
		}

		var reply interface{}
		var result *detection.PredictionResponse
		if h.middleware.Allow(clientIP) {
			result, err = h.predictMessage(requestID, messageType, message)
		} else {
			err = middleware.ErrTooManyRequests
		}
		if err != nil {
			h.log.WithFields(log.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Error processing frame")
			reply = detection.ErrorResponse{Error: handlerUtil.Message(err)}
		} else {
			reply = result
		}

		if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			h.log.Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(reply); err != nil {
			h.log.Errorf("Error writing JSON response: %v", err)
			break
		}

		if err := c.SetWriteDeadline(time.Time{}); err != nil {
			h.log.Errorf("Error resetting write deadline: %v", err)
			break
		}
	}
}

func (h *DetectionHandler) predictMessage(requestID string, messageType int, message []byte) (*detection.PredictionResponse, error) {
	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), h.requestTimeout)
	defer cancel()

	switch messageType {
	case websocket.BinaryMessage:
		return h.detectionService.PredictFrameBytes(ctx, message)
	case websocket.TextMessage:
		return h.detectionService.PredictFrame(ctx, string(message))
	default:
		return nil, detection.ErrInvalidRequestBody
	}
}
