package workflows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/classifier"
	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// ArchiveWorkflow stages, classifies, archives and clears one remote image
type ArchiveWorkflow struct {
	source     Source
	allocator  Allocator
	classifier classifier.Classifier
	router     Router
	mirror     Mirror
	logger     *zap.Logger
}

var _ Workflow = (*ArchiveWorkflow)(nil)

// Option configures an ArchiveWorkflow
type Option func(*ArchiveWorkflow)

// WithMirror publishes positive archives to m
func WithMirror(m Mirror) Option {
	return func(w *ArchiveWorkflow) { w.mirror = m }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(w *ArchiveWorkflow) { w.logger = logger }
}

// NewArchiveWorkflow creates the per-image workflow
func NewArchiveWorkflow(source Source, allocator Allocator, c classifier.Classifier, router Router, opts ...Option) *ArchiveWorkflow {
	w := &ArchiveWorkflow{
		source:     source,
		allocator:  allocator,
		classifier: c,
		router:     router,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrNop(w.logger)
	return w
}

// Name returns the workflow name
func (w *ArchiveWorkflow) Name() string {
	return "ArchiveWorkflow"
}

// Run processes job and stops at the first failing step. The remote file is
// deleted only after the image is safely archived.
func (w *ArchiveWorkflow) Run(ctx context.Context, job pipeline.Job) pipeline.Outcome {
	logger := logging.WithOperation(w.logger, "archive", job.CycleID).With(zap.String("image", job.Name))
	out := pipeline.Outcome{Name: job.Name, Fingerprint: job.Fingerprint}

	fail := func(state string, err error) pipeline.Outcome {
		logger.Warn("archive step failed", zap.String("state", state), zap.Error(err))
		out.State = state
		out.Err = err.Error()
		return out
	}

	// Step 1: allocate a staging batch and copy the remote bytes into it
	batch, err := w.allocator.Allocate()
	if err != nil {
		return fail(pipeline.StateFailedStaging, err)
	}
	imagePath := batch.ImagePath(job.Name)
	if err := w.stage(ctx, job.Name, imagePath); err != nil {
		return fail(pipeline.StateFailedStaging, err)
	}
	logger.Debug("image staged", zap.String("batch", batch.Name))

	// Step 2: classify
	result := w.classifier.Classify(ctx, batch, job.Name)
	if !result.Success {
		err := result.Err
		if err == nil {
			err = pipeline.ErrClassificationFailure
		}
		return fail(pipeline.StateFailedClassification, err)
	}

	// Step 3: route by label presence
	archived, err := w.router.Route(imagePath, result.Positive)
	if err != nil {
		return fail(pipeline.StateFailedRouting, err)
	}
	out.Store = archived.Store
	out.ArchivePath = archived.Path

	// Step 4: mirror positives, failures are not fatal
	if w.mirror != nil && archived.Store == pipeline.StorePositive {
		if contentID, err := w.mirror.Publish(ctx, archived); err != nil {
			logger.Warn("mirror publish failed", zap.Error(err))
		} else {
			logger.Debug("mirrored", zap.String("content_id", contentID))
		}
	}

	// Step 5: clear the remote copy
	if err := w.source.Delete(ctx, job.Name); err != nil {
		if !errors.Is(err, pipeline.ErrDeleteFailure) {
			err = fmt.Errorf("%w: %v", pipeline.ErrDeleteFailure, err)
		}
		return fail(pipeline.StateFailedDelete, err)
	}

	logger.Info("image processed",
		zap.String("store", archived.Store),
		zap.String("archived", archived.Name),
	)
	out.State = pipeline.StateArchived
	return out
}

// stage copies the remote image into the batch
func (w *ArchiveWorkflow) stage(ctx context.Context, name, dst string) error {
	rc, err := w.source.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", pipeline.ErrStagingFailure, name, err)
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrStagingFailure, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return fmt.Errorf("%w: copy %s: %v", pipeline.ErrStagingFailure, name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrStagingFailure, err)
	}
	return nil
}
