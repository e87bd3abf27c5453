package workflows

import (
	"context"
	"io"

	"github.com/tendant/detect-archive-pipeline/internal/staging"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// Source is the part of the remote share a workflow reads and clears
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// Allocator hands out fresh staging batches
type Allocator interface {
	Allocate() (*staging.Batch, error)
}

// Router moves a classified image into its archival store
type Router interface {
	Route(src string, positive bool) (*pipeline.ArchivedImage, error)
}

// Mirror publishes archived images to a secondary content store
type Mirror interface {
	Publish(ctx context.Context, img *pipeline.ArchivedImage) (string, error)
}

// Workflow processes one job to a terminal outcome
type Workflow interface {
	// Run never returns an error: every failure is reported in the outcome
	Run(ctx context.Context, job pipeline.Job) pipeline.Outcome

	// Name returns the workflow name
	Name() string
}
