package storage

import (
	"context"
	"io"
)

// Reader provides read access to an archival store
type Reader interface {
	// GetReader returns a reader for the file at the given key
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// GetMetadata returns size and content type of the file at the given key
	GetMetadata(ctx context.Context, key string) (*Metadata, error)
}

// Metadata contains storage object metadata
type Metadata struct {
	Size        int64
	ContentType string
}

// Lister enumerates the keys of a store
type Lister interface {
	Reader

	// List returns all keys in the store
	List(ctx context.Context) ([]string, error)
}
