// Package testhelpers provides in-memory collaborators for pipeline tests.
package testhelpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// MemorySource is a remote share held in memory
type MemorySource struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string

	// ListErr, when set, is returned by List
	ListErr error
	// OpenErr maps a name to the error Open returns for it
	OpenErr map[string]error
	// DeleteErr maps a name to the error Delete returns for it
	DeleteErr map[string]error
}

// NewMemorySource creates an empty share
func NewMemorySource() *MemorySource {
	return &MemorySource{
		files:     make(map[string][]byte),
		OpenErr:   make(map[string]error),
		DeleteErr: make(map[string]error),
	}
}

// Put places a file on the share, replacing any previous content
func (s *MemorySource) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = append([]byte(nil), data...)
}

// Has reports whether name is on the share
func (s *MemorySource) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

// Deleted returns the names deleted so far, in order
func (s *MemorySource) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// List returns image files on the share, sorted by name
func (s *MemorySource) List(ctx context.Context) ([]pipeline.RemoteImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, s.ListErr)
	}

	var images []pipeline.RemoteImage
	for name := range s.files {
		if pipeline.IsImage(name) {
			images = append(images, pipeline.RemoteImage{Name: name, RemotePath: "mem://" + name})
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

// Open returns the content of name
func (s *MemorySource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.OpenErr[name]; err != nil {
		return nil, err
	}
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: file not found", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes name from the share
func (s *MemorySource) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.DeleteErr[name]; err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeleteFailure, err)
	}
	if _, ok := s.files[name]; !ok {
		return fmt.Errorf("%w: %s not found", pipeline.ErrDeleteFailure, name)
	}
	delete(s.files, name)
	s.deleted = append(s.deleted, name)
	return nil
}
