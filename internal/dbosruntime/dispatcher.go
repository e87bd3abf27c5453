package dbosruntime

import (
	"context"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/internal/workflows"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// WorkflowName is the registered name of the archive workflow. It must stay
// stable across releases so pending runs are recovered.
const WorkflowName = "ArchiveWorkflow"

// resultHandle is the part of a DBOS workflow handle the dispatcher waits on
type resultHandle interface {
	GetWorkflowID() string
	GetResult(opts ...dbos.GetResultOption) (pipeline.Outcome, error)
}

// engine starts archive workflows and finds the ones left unfinished
type engine interface {
	Enqueue(job pipeline.Job) (resultHandle, error)
	Unfinished() ([]resultHandle, error)
}

// Dispatcher runs each job as a durable DBOS workflow on the runtime queue.
// A job interrupted by a crash is resumed by DBOS recovery on the next launch.
type Dispatcher struct {
	engine   engine
	workflow workflows.Workflow
	logger   *zap.Logger
}

// NewDispatcher registers wf with the runtime. Call before Runtime.Launch.
func NewDispatcher(rt *Runtime, wf workflows.Workflow, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		workflow: wf,
		logger:   logging.OrNop(logger),
	}
	dbos.RegisterWorkflow(rt.Context(), d.archive, dbos.WithWorkflowName(WorkflowName))
	d.engine = &dbosEngine{runtime: rt, fn: d.archive}
	return d
}

// WorkflowID is the durable ID of job. It is stable for a cycle so a
// recovered run never processes the same job twice.
func WorkflowID(job pipeline.Job) string {
	return fmt.Sprintf("%s-%s", job.CycleID, job.Name)
}

// Recover waits for archive workflows that a previous process left pending
// or enqueued. It must complete before the first cycle so a recovered run
// never overlaps a new one.
func (d *Dispatcher) Recover(ctx context.Context) ([]pipeline.Outcome, error) {
	handles, err := d.engine.Unfinished()
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished workflows: %w", err)
	}
	if len(handles) == 0 {
		return nil, nil
	}

	d.logger.Info("waiting for recovered workflows", zap.Int("count", len(handles)))

	outcomes := make([]pipeline.Outcome, 0, len(handles))
	for _, handle := range handles {
		out, err := handle.GetResult()
		if err != nil {
			// the job never produced an outcome, the next cycle decides again
			d.logger.Error("recovered workflow failed",
				zap.String("workflow_id", handle.GetWorkflowID()),
				zap.Error(err),
			)
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// Dispatch enqueues every job and waits for all results
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []pipeline.Job) []pipeline.Outcome {
	outcomes := make([]pipeline.Outcome, len(jobs))
	handles := make([]resultHandle, len(jobs))

	for i, job := range jobs {
		handle, err := d.engine.Enqueue(job)
		if err != nil {
			d.logger.Error("failed to enqueue workflow", zap.String("image", job.Name), zap.Error(err))
			outcomes[i] = pipeline.Outcome{
				Name:        job.Name,
				Fingerprint: job.Fingerprint,
				State:       pipeline.StateFailedStaging,
				Err:         fmt.Sprintf("%v: enqueue: %v", pipeline.ErrStagingFailure, err),
			}
			continue
		}
		handles[i] = handle
	}

	for i, handle := range handles {
		if handle == nil {
			continue
		}
		out, err := handle.GetResult()
		if err != nil {
			d.logger.Error("workflow failed", zap.String("workflow_id", handle.GetWorkflowID()), zap.Error(err))
			out = pipeline.Outcome{
				Name:        jobs[i].Name,
				Fingerprint: jobs[i].Fingerprint,
				State:       pipeline.StateFailedClassification,
				Err:         fmt.Sprintf("%v: %v", pipeline.ErrClassificationFailure, err),
			}
		}
		outcomes[i] = out
	}

	return outcomes
}

// archive is the registered DBOS workflow function
func (d *Dispatcher) archive(dbosCtx dbos.DBOSContext, job pipeline.Job) (out pipeline.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("workflow panicked", zap.String("image", job.Name), zap.Any("panic", r))
			out = pipeline.Outcome{
				Name:        job.Name,
				Fingerprint: job.Fingerprint,
				State:       pipeline.StateFailedClassification,
				Err:         fmt.Sprintf("%v: panic: %v", pipeline.ErrClassificationFailure, r),
			}
			err = nil
		}
	}()

	// DBOSContext implements context.Context
	return d.workflow.Run(dbosCtx, job), nil
}

// dbosEngine drives the real DBOS runtime
type dbosEngine struct {
	runtime *Runtime
	fn      dbos.Workflow[pipeline.Job, pipeline.Outcome]
}

func (e *dbosEngine) Enqueue(job pipeline.Job) (resultHandle, error) {
	handle, err := dbos.RunWorkflow(
		e.runtime.Context(),
		e.fn,
		job,
		dbos.WithWorkflowID(WorkflowID(job)),
		dbos.WithQueue(e.runtime.QueueName()),
	)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (e *dbosEngine) Unfinished() ([]resultHandle, error) {
	statuses, err := dbos.ListWorkflows(e.runtime.Context(),
		dbos.WithName(WorkflowName),
		dbos.WithQueueName(e.runtime.QueueName()),
		dbos.WithStatus([]dbos.WorkflowStatusType{dbos.WorkflowStatusPending, dbos.WorkflowStatusEnqueued}),
		dbos.WithLoadInput(false),
	)
	if err != nil {
		return nil, err
	}

	handles := make([]resultHandle, 0, len(statuses))
	for _, st := range statuses {
		handle, err := dbos.RetrieveWorkflow[pipeline.Outcome](e.runtime.Context(), st.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve workflow %s: %w", st.ID, err)
		}
		handles = append(handles, handle)
	}
	return handles, nil
}
