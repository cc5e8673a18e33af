package detectionService

import (
	"ProjectVision/internal/api/detection"
	contextPkg "ProjectVision/pkg/context"
	"ProjectVision/pkg/inference"
	"ProjectVision/pkg/utils"
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

func (s *detectionService) PredictUpload(ctx context.Context, file *multipart.FileHeader) (*detection.PredictionResponse, error) {
	if file == nil {
		return nil, detection.ErrNoImageFile
	}

	data, contentType, err := s.utils.ReadImageFile(file)
	if err != nil {
		return nil, uploadError(err)
	}

	path, err := s.scratch.Save(s.utils.SanitizeFilename(file.Filename), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if !s.opts.RetainUploads {
		defer s.scratch.Remove(path)
	}

	boxes, err := s.detector.DetectFile(ctx, path, s.opts.UploadConfidence)
	if err != nil {
		return nil, classify(err)
	}

	resp := &detection.PredictionResponse{
		Predictions: FormatPredictions(boxes, s.detector, s.opts.Scale),
	}

	if s.archive != nil {
		resp.ImageURL = s.archiveUpload(ctx, filepath.Base(path), data, contentType)
	}

	s.log.WithFields(logrus.Fields{
		"request_id":   contextPkg.GetRequestID(ctx),
		"file":         filepath.Base(path),
		"content_type": contentType,
		"size":         len(data),
		"predictions":  len(resp.Predictions),
	}).Info("Upload prediction finished")

	return resp, nil
}

func (s *detectionService) PredictFrame(ctx context.Context, dataURL string) (*detection.PredictionResponse, error) {
	if strings.TrimSpace(dataURL) == "" {
		return nil, detection.ErrNoImageData
	}

	frame, err := s.utils.DecodeDataURL(dataURL)
	if err != nil {
		return nil, &detection.DecodeError{Err: err}
	}

	return s.PredictFrameBytes(ctx, frame)
}

func (s *detectionService) PredictFrameBytes(ctx context.Context, frame []byte) (*detection.PredictionResponse, error) {
	if len(frame) == 0 {
		return nil, detection.ErrNoImageData
	}

	img, format, err := s.utils.DecodeImage(frame)
	if err != nil {
		return nil, &detection.DecodeError{Err: err}
	}

	boxes, err := s.detector.DetectImage(ctx, img, s.opts.FrameConfidence)
	if err != nil {
		return nil, classify(err)
	}

	resp := &detection.PredictionResponse{
		Predictions: FormatPredictions(boxes, s.detector, s.opts.Scale),
	}

	s.log.WithFields(logrus.Fields{
		"request_id":  contextPkg.GetRequestID(ctx),
		"format":      format,
		"width":       img.Bounds().Dx(),
		"height":      img.Bounds().Dy(),
		"predictions": len(resp.Predictions),
	}).Debug("Frame prediction finished")

	return resp, nil
}

// archiveUpload copies the upload to S3 and returns a presigned URL. Archive
// failures never fail the prediction.
func (s *detectionService) archiveUpload(ctx context.Context, key string, data []byte, contentType string) string {
	location, err := s.archive.UploadImage(ctx, key, bytes.NewReader(data), contentType)
	if err == nil {
		var presigned string
		presigned, err = s.archive.PresignUrl(location)
		if err == nil {
			return presigned
		}
	}

	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"key":        key,
		"error":      err.Error(),
	}).Warn("Failed to archive upload")
	return ""
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, utils.ErrNoFile):
		return detection.ErrNoImageFile
	case errors.Is(err, utils.ErrFileTooLarge):
		return detection.ErrImageTooLarge
	case errors.Is(err, utils.ErrUnsupportedImageType):
		return detection.ErrUnsupportedImageType
	case errors.Is(err, utils.ErrTooManyPixels):
		return detection.ErrImageTooLarge
	case errors.Is(err, utils.ErrInvalidImage):
		return &detection.DecodeError{Err: err}
	default:
		return err
	}
}

// classify sorts a detector failure into the public error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, inference.ErrUnreadableImage):
		return &detection.DecodeError{Err: err}
	default:
		return &detection.InferenceError{Err: err}
	}
}
