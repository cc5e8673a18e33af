package detectionService

import (
	"ProjectVision/internal/api/detection"
	"ProjectVision/pkg/inference"
	"ProjectVision/pkg/s3"
	"ProjectVision/pkg/scratch"
	"ProjectVision/pkg/utils"
	"context"
	"mime/multipart"

	"github.com/sirupsen/logrus"
)

type IDetectionService interface {
	PredictUpload(ctx context.Context, file *multipart.FileHeader) (*detection.PredictionResponse, error)
	PredictFrame(ctx context.Context, dataURL string) (*detection.PredictionResponse, error)
	PredictFrameBytes(ctx context.Context, frame []byte) (*detection.PredictionResponse, error)
	Backend() string
}

type Options struct {
	UploadConfidence float32
	FrameConfidence  float32
	Scale            detection.ConfidenceScale
	RetainUploads    bool
}

type detectionService struct {
	log      *logrus.Logger
	detector inference.Detector
	scratch  scratch.IScratch
	archive  s3.ItfS3
	utils    utils.IUtils
	opts     Options
}

// NewDetectionService wires the request flow around a shared detector.
// archive may be nil, in which case uploads are not copied to S3.
func NewDetectionService(
	log *logrus.Logger,
	detector inference.Detector,
	scratchDir scratch.IScratch,
	archive s3.ItfS3,
	utils utils.IUtils,
	opts Options,
) IDetectionService {
	if opts.Scale == "" {
		opts.Scale = detection.ScaleFraction
	}

	return &detectionService{
		log:      log,
		detector: detector,
		scratch:  scratchDir,
		archive:  archive,
		utils:    utils,
		opts:     opts,
	}
}

func (s *detectionService) Backend() string {
	return s.detector.Name()
}
