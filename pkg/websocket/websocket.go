package websocketPkg

import (
	"ProjectVision/pkg/inference"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNotConnected = errors.New("not connected to inference stream")

type frameRequest struct {
	Image string  `json:"image"`
	Conf  float32 `json:"conf"`
}

type Options struct {
	URL          string
	Names        inference.ClassNames
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StreamDetector sends frames over one long lived websocket to an inference
// service. Each request is a JSON text message {"image": <base64>, "conf": x}
// answered by one {"detections": [...]} message, so round trips are
// serialized on the connection.
type StreamDetector struct {
	conn *websocket.Conn
	mu   sync.Mutex
	// roundTrip pairs each request with its reply.
	roundTrip sync.Mutex
	opts      Options
	log       *logrus.Logger
	closed    bool
}

func NewStreamDetector(opts Options, log *logrus.Logger) *StreamDetector {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Names == nil {
		opts.Names = inference.CocoClassNames()
	}

	client := &StreamDetector{
		opts: opts,
		log:  log,
	}

	go client.connectInBackground()

	return client
}

func (c *StreamDetector) Name() string {
	return "stream"
}

func (c *StreamDetector) ClassName(id int) string {
	return c.opts.Names.ClassName(id)
}

func (c *StreamDetector) connectInBackground() {
	if err := c.connect(); err != nil {
		c.log.WithFields(logrus.Fields{
			"url":   c.opts.URL,
			"error": err.Error(),
		}).Warn("Initial connection to inference stream failed, will retry on demand")
		return
	}
	c.log.WithField("url", c.opts.URL).Info("Connected to inference stream")
}

func (c *StreamDetector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// connect dials only when there is no live connection.
func (c *StreamDetector) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	return c.dialLocked()
}

// Reconnect replaces the current connection with a fresh one.
func (c *StreamDetector) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return c.dialLocked()
}

func (c *StreamDetector) dialLocked() error {
	if c.closed {
		return ErrNotConnected
	}
	if c.opts.URL == "" {
		return fmt.Errorf("inference stream URL not configured")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.opts.URL, err)
	}

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteTimeout)); err != nil {
			c.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	c.conn = conn

	go c.keepAlive(conn)

	return nil
}

// Close drops the connection; later calls fail with ErrNotConnected.
func (c *StreamDetector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *StreamDetector) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.opts.WriteTimeout))
		if err != nil {
			c.log.Warnf("Ping failed, marking inference stream as dead: %v", err)
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

func (c *StreamDetector) getConnection() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// drop forgets conn if it is still the current connection.
func (c *StreamDetector) drop(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

func (c *StreamDetector) DetectFile(ctx context.Context, path string, conf float32) ([]inference.Box, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrUnreadableImage, err)
	}
	return c.process(ctx, data, conf)
}

func (c *StreamDetector) DetectImage(ctx context.Context, img image.Image, conf float32) ([]inference.Box, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", inference.ErrUnreadableImage, err)
	}
	return c.process(ctx, buf.Bytes(), conf)
}

func (c *StreamDetector) process(ctx context.Context, frame []byte, conf float32) ([]inference.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.roundTrip.Lock()
	defer c.roundTrip.Unlock()

	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("cannot connect to inference stream: %w", err)
	}
	conn, err := c.getConnection()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(frameRequest{
		Image: base64.StdEncoding.EncodeToString(frame),
		Conf:  conf,
	})
	if err != nil {
		return nil, fmt.Errorf("encode frame request: %w", err)
	}

	writeDeadline := time.Now().Add(c.opts.WriteTimeout)
	readDeadline := time.Now().Add(c.opts.ReadTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		if deadline.Before(writeDeadline) {
			writeDeadline = deadline
		}
		if deadline.Before(readDeadline) {
			readDeadline = deadline
		}
	}

	_ = conn.SetWriteDeadline(writeDeadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.drop(conn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	_ = conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.drop(conn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("error reading inference reply: %w", err)
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	var result inference.DetectionResponse
	if err := json.Unmarshal(message, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling inference reply: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("inference stream: %s", result.Error)
	}

	boxes := result.Boxes(conf)

	c.log.WithFields(logrus.Fields{
		"frame_bytes": len(frame),
		"detections":  len(boxes),
	}).Debug("Received reply from inference stream")

	return boxes, nil
}

var _ inference.Detector = (*StreamDetector)(nil)
