package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"ProjectVision/pkg/inference"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

type Options struct {
	ModelPath    string
	InputSize    int
	IOUThreshold float32
	Names        inference.ClassNames
}

// Detector runs a YOLOv8 ONNX export through the OpenCV DNN module.
// gocv.Net is not safe for concurrent use, so forward passes are serialized.
type Detector struct {
	mu    sync.Mutex
	net   gocv.Net
	opts  Options
	log   *logrus.Logger
	ready bool
}

// New loads the model. A missing artifact is reported as
// inference.ErrModelNotFound so startup can treat it as fatal.
func New(opts Options, log *logrus.Logger) (*Detector, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", inference.ErrModelNotFound, opts.ModelPath)
		}
		return nil, fmt.Errorf("stat model %s: %w", opts.ModelPath, err)
	}

	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}
	if opts.IOUThreshold <= 0 {
		opts.IOUThreshold = 0.7
	}
	if opts.Names == nil {
		opts.Names = inference.CocoClassNames()
	}

	net := gocv.ReadNetFromONNX(opts.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", opts.ModelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	log.WithFields(logrus.Fields{
		"model":      opts.ModelPath,
		"input_size": opts.InputSize,
		"classes":    len(opts.Names),
	}).Info("Detection network initialized successfully")

	return &Detector{
		net:   net,
		opts:  opts,
		log:   log,
		ready: true,
	}, nil
}

func (d *Detector) Name() string {
	return "onnx"
}

func (d *Detector) ClassName(id int) string {
	return d.opts.Names.ClassName(id)
}

func (d *Detector) DetectFile(ctx context.Context, path string, conf float32) ([]inference.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("%w: %s", inference.ErrUnreadableImage, path)
	}

	return d.detect(ctx, mat, conf)
}

func (d *Detector) DetectImage(ctx context.Context, img image.Image, conf float32) ([]inference.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrUnreadableImage, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("%w: empty frame", inference.ErrUnreadableImage)
	}

	return d.detect(ctx, mat, conf)
}

func (d *Detector) detect(ctx context.Context, mat gocv.Mat, conf float32) ([]inference.Box, error) {
	size := d.opts.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	// The output may alias network memory, so the lock covers decoding too.
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready {
		return nil, errors.New("detection network is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read network output: %w", err)
	}

	scaleX := float32(mat.Cols()) / float32(size)
	scaleY := float32(mat.Rows()) / float32(size)
	candidates, err := inference.DecodeYOLOv8(data, output.Size(), conf, scaleX, scaleY, mat.Cols(), mat.Rows())
	if err != nil {
		return nil, err
	}

	boxes := d.suppress(candidates, conf)

	d.log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"detections": len(boxes),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Inference finished")

	return boxes, nil
}

// suppress runs class-aware non-max suppression; survivors come back in
// descending confidence order.
func (d *Detector) suppress(candidates []inference.Box, conf float32) []inference.Box {
	if len(candidates) == 0 {
		return []inference.Box{}
	}

	// Shifting each class past the largest coordinate keeps a single NMS
	// pass from suppressing overlaps across classes.
	extent := 0
	for _, c := range candidates {
		for _, v := range c.Rect {
			extent = max(extent, int(v))
		}
	}
	classOffset := extent + 1

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		offset := c.ClassID * classOffset
		rects[i] = image.Rect(
			int(c.Rect[0])+offset, int(c.Rect[1])+offset,
			int(c.Rect[2])+offset, int(c.Rect[3])+offset,
		)
		scores[i] = c.Confidence
	}

	indices := gocv.NMSBoxes(rects, scores, conf, d.opts.IOUThreshold)

	boxes := make([]inference.Box, 0, len(indices))
	for _, idx := range indices {
		boxes = append(boxes, candidates[idx])
	}
	return boxes
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready {
		return nil
	}
	d.ready = false
	return d.net.Close()
}

var _ inference.Detector = (*Detector)(nil)
