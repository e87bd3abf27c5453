package dbosruntime

import (
	"context"
	"errors"
	"testing"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

type fakeHandle struct {
	id  string
	out pipeline.Outcome
	err error
}

func (h fakeHandle) GetWorkflowID() string { return h.id }

func (h fakeHandle) GetResult(...dbos.GetResultOption) (pipeline.Outcome, error) {
	return h.out, h.err
}

type fakeEngine struct {
	enqueued   []string
	enqueueErr map[string]error
	resultErr  map[string]error
	unfinished []resultHandle
	listErr    error
}

func (e *fakeEngine) Enqueue(job pipeline.Job) (resultHandle, error) {
	if err := e.enqueueErr[job.Name]; err != nil {
		return nil, err
	}
	e.enqueued = append(e.enqueued, WorkflowID(job))
	return fakeHandle{
		id:  WorkflowID(job),
		out: pipeline.Outcome{Name: job.Name, Fingerprint: job.Fingerprint, State: pipeline.StateArchived},
		err: e.resultErr[job.Name],
	}, nil
}

func (e *fakeEngine) Unfinished() ([]resultHandle, error) {
	return e.unfinished, e.listErr
}

func newTestDispatcher(e *fakeEngine) *Dispatcher {
	return &Dispatcher{engine: e, logger: zap.NewNop()}
}

func TestDispatchWaitsForEveryJob(t *testing.T) {
	e := &fakeEngine{
		enqueueErr: map[string]error{"b.jpg": errors.New("queue closed")},
		resultErr:  map[string]error{"c.jpg": errors.New("workflow cancelled")},
	}
	jobs := []pipeline.Job{
		{CycleID: "c1", Name: "a.jpg", Fingerprint: "fa"},
		{CycleID: "c1", Name: "b.jpg", Fingerprint: "fb"},
		{CycleID: "c1", Name: "c.jpg", Fingerprint: "fc"},
	}

	outcomes := newTestDispatcher(e).Dispatch(context.Background(), jobs)
	require.Len(t, outcomes, 3)

	assert.Equal(t, []string{"c1-a.jpg", "c1-c.jpg"}, e.enqueued)
	assert.Equal(t, pipeline.StateArchived, outcomes[0].State)
	assert.Equal(t, pipeline.StateFailedStaging, outcomes[1].State)
	assert.Equal(t, "fb", outcomes[1].Fingerprint)
	assert.Contains(t, outcomes[1].Err, "queue closed")
	assert.Equal(t, pipeline.StateFailedClassification, outcomes[2].State)
	assert.Equal(t, "c.jpg", outcomes[2].Name)
}

func TestRecoverDrainsUnfinishedWorkflows(t *testing.T) {
	e := &fakeEngine{unfinished: []resultHandle{
		fakeHandle{id: "old-a.jpg", out: pipeline.Outcome{Name: "a.jpg", Fingerprint: "fa", State: pipeline.StateArchived}},
		fakeHandle{id: "old-b.jpg", err: errors.New("workflow cancelled")},
		fakeHandle{id: "old-c.jpg", out: pipeline.Outcome{Name: "c.jpg", Fingerprint: "fc", State: pipeline.StateFailedDelete}},
	}}

	outcomes, err := newTestDispatcher(e).Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a.jpg", outcomes[0].Name)
	assert.Equal(t, pipeline.StateFailedDelete, outcomes[1].State)
	assert.Empty(t, e.enqueued)
}

func TestRecoverNothingPending(t *testing.T) {
	outcomes, err := newTestDispatcher(&fakeEngine{}).Recover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRecoverListFailure(t *testing.T) {
	e := &fakeEngine{listErr: errors.New("connection refused")}
	_, err := newTestDispatcher(e).Recover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
