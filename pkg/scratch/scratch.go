package scratch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxNameAttempts bounds retries when a generated name already exists.
const maxNameAttempts = 3

type IScratch interface {
	Dir() string
	Save(filename string, src io.Reader) (string, error)
	Remove(path string) error
}

type scratchDir struct {
	dir string
	log *logrus.Logger
}

// New prepares dir for transient uploads, creating it when absent.
func New(dir string, log *logrus.Logger) (IScratch, error) {
	if dir == "" {
		return nil, errors.New("scratch directory is required")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory %s: %w", dir, err)
	}

	return &scratchDir{dir: dir, log: log}, nil
}

func (s *scratchDir) Dir() string {
	return s.dir
}

// Save writes src to <dir>/<uuid>_<filename>. filename must already be
// sanitized. The file is created exclusively, so two saves never share a path.
func (s *scratchDir) Save(filename string, src io.Reader) (string, error) {
	var (
		file *os.File
		err  error
	)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		path := filepath.Join(s.dir, UniqueName(filename))
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create scratch file: %w", err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}

	path := file.Name()
	if _, err := io.Copy(file, src); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("write scratch file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close scratch file: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"path": path,
	}).Debug("Stored upload in scratch directory")

	return path, nil
}

func (s *scratchDir) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.WithFields(logrus.Fields{
			"path":  path,
			"error": err.Error(),
		}).Warn("Failed to remove scratch file")
		return err
	}
	return nil
}

func UniqueName(filename string) string {
	return uuid.NewString() + "_" + filename
}
