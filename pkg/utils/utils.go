package utils

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNoFile               = errors.New("no file uploaded")
	ErrFileTooLarge         = errors.New("file size exceeds limit")
	ErrUnsupportedImageType = errors.New("uploaded file is not a supported image")
	ErrInvalidBase64        = errors.New("invalid base64 payload")
	ErrInvalidImage         = errors.New("invalid image data")
	ErrTooManyPixels        = fmt.Errorf("%w: pixel count exceeds limit", ErrInvalidImage)
)

// DefaultMaxImagePixels bounds width × height of accepted images.
const DefaultMaxImagePixels = 40_000_000

// AllowedImageTypes are the sniffed content types accepted for uploads.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/bmp"}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

const fallbackFilename = "image"

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	SanitizeFilename(name string) string
	ValidateImageFile(file *multipart.FileHeader) error
	ReadImageFile(file *multipart.FileHeader) ([]byte, string, error)
	DetectImageType(data []byte) (string, error)
	CheckDimensions(data []byte) (image.Config, error)
	DecodeDataURL(dataURL string) ([]byte, error)
	DecodeImage(data []byte) (image.Image, string, error)
}

type utils struct {
	maxFileSize int64
	maxPixels   int64
}

func New(maxFileSize, maxPixels int64) IUtils {
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}
	return &utils{
		maxFileSize: maxFileSize,
		maxPixels:   maxPixels,
	}
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// SanitizeFilename reduces a client supplied name to a flat ASCII filename:
// compatibility decomposition, non-ASCII dropped, path separators and runs of
// whitespace turned into underscores, anything outside [A-Za-z0-9_.-] removed
// and leading or trailing dots and underscores trimmed.
func (u *utils) SanitizeFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		if r == '/' || r == '\\' {
			return ' '
		}
		return r
	}, name)

	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	if name == "" {
		return fallbackFilename
	}
	return name
}

func (u *utils) ValidateImageFile(file *multipart.FileHeader) error {
	if file == nil {
		return ErrNoFile
	}

	if file.Size > u.maxFileSize {
		return ErrFileTooLarge
	}

	return nil
}

// ReadImageFile validates and reads an uploaded file. The returned content type
// is sniffed from the bytes; the client supplied header is not trusted.
func (u *utils) ReadImageFile(file *multipart.FileHeader) ([]byte, string, error) {
	if err := u.ValidateImageFile(file); err != nil {
		return nil, "", err
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, u.maxFileSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read uploaded file: %w", err)
	}
	if int64(len(data)) > u.maxFileSize {
		return nil, "", ErrFileTooLarge
	}

	contentType, err := u.DetectImageType(data)
	if err != nil {
		return nil, "", err
	}

	if _, err := u.CheckDimensions(data); err != nil {
		return nil, "", err
	}

	return data, contentType, nil
}

func (u *utils) DetectImageType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNoFile
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), AllowedImageTypes...) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImageType, mtype.String())
	}

	return mtype.String(), nil
}

// DecodeDataURL returns the payload of a "data:<type>;base64,<payload>" string.
// Everything up to the first comma is discarded; a string without a comma is
// taken as bare base64.
func (u *utils) DecodeDataURL(dataURL string) ([]byte, error) {
	payload := dataURL
	if _, after, found := strings.Cut(dataURL, ","); found {
		payload = after
	}

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrInvalidBase64
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	return data, nil
}

// CheckDimensions reads only the image header, so an oversized declared
// size is rejected before any pixel buffer is allocated.
func (u *utils) CheckDimensions(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > u.maxPixels {
		return image.Config{}, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	return cfg, nil
}

func (u *utils) DecodeImage(data []byte) (image.Image, string, error) {
	if _, err := u.CheckDimensions(data); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	return img, format, nil
}
