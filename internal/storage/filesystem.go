package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store
var ErrNotFound = errors.New("file not found")

// ErrInvalidKey is returned for keys that escape the store directory
var ErrInvalidKey = errors.New("invalid key")

// FilesystemStorage reads one flat archival store directory
type FilesystemStorage struct {
	baseDir string
}

var _ Lister = (*FilesystemStorage)(nil)

// NewFilesystemStorage creates a store reader, creating baseDir if needed
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStorage{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the store directory
func (fs *FilesystemStorage) BaseDir() string {
	return fs.baseDir
}

// GetReader returns a reader for the file at the given key
func (fs *FilesystemStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// GetMetadata returns metadata for the file at the given key
func (fs *FilesystemStorage) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return &Metadata{
		Size:        info.Size(),
		ContentType: "image/jpeg",
	}, nil
}

// List returns the regular files in the store, sorted by name
func (fs *FilesystemStorage) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// resolve maps a key to a path inside baseDir, rejecting traversal
func (fs *FilesystemStorage) resolve(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	path := filepath.Join(fs.baseDir, key)
	rel, err := filepath.Rel(filepath.Clean(fs.baseDir), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidKey)
	}

	return path, nil
}
