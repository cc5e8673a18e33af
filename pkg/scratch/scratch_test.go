package scratch

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScratch(t *testing.T) IScratch {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := New(filepath.Join(t.TempDir(), "uploads"), logger)
	require.NoError(t, err)
	return s
}

func TestNewCreatesDirectory(t *testing.T) {
	s := newTestScratch(t)

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveNamesFileWithRandomPrefix(t *testing.T) {
	s := newTestScratch(t)

	path, err := s.Save("cat.png", strings.NewReader("pixels"))
	require.NoError(t, err)

	assert.Equal(t, s.Dir(), filepath.Dir(path))
	base := filepath.Base(path)
	assert.True(t, strings.HasSuffix(base, "_cat.png"), base)
	assert.Len(t, strings.TrimSuffix(base, "_cat.png"), 36)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(content))
}

func TestConcurrentSavesWithSameNameDoNotCollide(t *testing.T) {
	s := newTestScratch(t)

	const uploads = 16
	paths := make([]string, uploads)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := s.Save("same.jpg", strings.NewReader("frame"))
			assert.NoError(t, err)
			paths[i] = path
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, uploads)
	for _, path := range paths {
		assert.False(t, seen[path], "duplicate path %s", path)
		seen[path] = true
	}

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, uploads)
}

func TestRemove(t *testing.T) {
	s := newTestScratch(t)

	path, err := s.Save("dog.jpg", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Remove(path), "removing twice is not an error")
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("", logrus.New())
	assert.Error(t, err)
}
