// Package remote adapts the share the capture device writes into.
package remote

import (
	"context"
	"io"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// Source lists, reads and deletes candidate images on the remote share
type Source interface {
	// List returns the image files currently on the share
	List(ctx context.Context) ([]pipeline.RemoteImage, error)

	// Open returns a reader for the named image
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the named image from the share
	Delete(ctx context.Context, name string) error
}
