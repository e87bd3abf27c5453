package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/internal/workflows"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// Dispatcher runs every job of a cycle and blocks until all have finished.
// Outcomes are returned in job order.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []pipeline.Job) []pipeline.Outcome
}

// Recoverer is implemented by dispatchers whose jobs can outlive the
// process. Recover blocks until every job left over from a previous run has
// finished and returns their outcomes.
type Recoverer interface {
	Recover(ctx context.Context) ([]pipeline.Outcome, error)
}

// PoolDispatcher runs jobs on at most limit goroutines
type PoolDispatcher struct {
	workflow workflows.Workflow
	limit    int
	logger   *zap.Logger
}

var _ Dispatcher = (*PoolDispatcher)(nil)

// NewPoolDispatcher creates a bounded in-process dispatcher
func NewPoolDispatcher(wf workflows.Workflow, limit int, logger *zap.Logger) *PoolDispatcher {
	if limit < 1 {
		limit = 1
	}
	return &PoolDispatcher{workflow: wf, limit: limit, logger: logging.OrNop(logger)}
}

// Dispatch runs jobs concurrently. A panicking job is reported as a failed
// classification and never affects its siblings.
func (d *PoolDispatcher) Dispatch(ctx context.Context, jobs []pipeline.Job) []pipeline.Outcome {
	outcomes := make([]pipeline.Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = d.runSafely(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *PoolDispatcher) runSafely(ctx context.Context, job pipeline.Job) (out pipeline.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("workflow panicked",
				zap.String("workflow", d.workflow.Name()),
				zap.String("image", job.Name),
				zap.Any("panic", r),
			)
			out = pipeline.Outcome{
				Name:        job.Name,
				Fingerprint: job.Fingerprint,
				State:       pipeline.StateFailedClassification,
				Err:         fmt.Sprintf("%v: panic: %v", pipeline.ErrClassificationFailure, r),
			}
		}
	}()
	return d.workflow.Run(ctx, job)
}
