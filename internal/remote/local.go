package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// LocalSource reads images from a directory, e.g. a mounted share
type LocalSource struct {
	baseDir string
}

var _ Source = (*LocalSource)(nil)

// NewLocalSource creates a source over baseDir
func NewLocalSource(baseDir string) (*LocalSource, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSessionFailure, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", pipeline.ErrSessionFailure, baseDir)
	}
	return &LocalSource{baseDir: baseDir}, nil
}

// List returns image files in the directory, sorted by name
func (s *LocalSource) List(ctx context.Context) ([]pipeline.RemoteImage, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, err)
	}

	var images []pipeline.RemoteImage
	for _, e := range entries {
		if e.IsDir() || !pipeline.IsImage(e.Name()) {
			continue
		}
		images = append(images, pipeline.RemoteImage{
			Name:       e.Name(),
			RemotePath: filepath.Join(s.baseDir, e.Name()),
		})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })

	return images, nil
}

// Open opens the named file
func (s *LocalSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes the named file
func (s *LocalSource) Delete(ctx context.Context, name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeleteFailure, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeleteFailure, err)
	}
	return nil
}

func (s *LocalSource) resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid name: %q", name)
	}
	return filepath.Join(s.baseDir, name), nil
}
