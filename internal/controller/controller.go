// Package controller drives the poll loop: list the remote share, skip
// unchanged files, dispatch the rest and wait for the cycle to finish.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/dedupe"
	"github.com/tendant/detect-archive-pipeline/internal/fingerprint"
	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/internal/metrics"
	"github.com/tendant/detect-archive-pipeline/internal/remote"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// DefaultInterval is the pause between cycles
const DefaultInterval = 5 * time.Second

// Report summarizes one cycle
type Report struct {
	CycleID  string
	Outcomes []pipeline.Outcome
	// Recovered holds outcomes of jobs resumed from a previous process
	Recovered []pipeline.Outcome
	Elapsed   time.Duration
}

// Count returns the number of outcomes in state
func (r *Report) Count(state string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Controller runs poll cycles
type Controller struct {
	source     remote.Source
	tracker    *dedupe.Tracker
	dispatcher Dispatcher
	interval   time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
	recovered  bool
}

// Option configures a Controller
type Option func(*Controller)

// WithInterval sets the pause between cycles
func WithInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithMetrics records cycle and outcome metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// New creates a controller
func New(source remote.Source, tracker *dedupe.Tracker, dispatcher Dispatcher, opts ...Option) *Controller {
	c := &Controller{
		source:     source,
		tracker:    tracker,
		dispatcher: dispatcher,
		interval:   DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// Run loops cycles until ctx is cancelled. A running cycle is always
// allowed to finish.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller started", zap.Duration("interval", c.interval))

	for {
		// cycle errors are logged and retried on the next interval
		_, _ = c.RunCycle(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			c.logger.Info("controller stopped")
			return nil
		case <-time.After(c.interval):
		}
	}
}

// RunCycle performs one poll cycle
func (c *Controller) RunCycle(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{CycleID: uuid.New().String()}
	logger := logging.WithOperation(c.logger, "cycle", report.CycleID)

	// Step 0: finish jobs a previous process left behind before listing, so
	// a resumed job never races a fresh one for the same file
	if !c.recovered {
		recovered, err := c.recover(ctx, logger)
		if err != nil {
			logger.Error("recovery failed, skipping cycle", zap.Error(err))
			report.Elapsed = time.Since(start)
			c.metrics.ObserveCycle(metrics.CycleRecovery, report.Elapsed)
			return report, err
		}
		report.Recovered = recovered
		c.recovered = true
	}

	// Step 1: list the share
	images, err := c.source.List(ctx)
	if err != nil {
		logger.Error("remote listing failed, skipping cycle", zap.Error(err))
		report.Elapsed = time.Since(start)
		c.metrics.ObserveCycle(metrics.CycleUnavailable, report.Elapsed)
		return report, err
	}

	// Step 2: fingerprint and filter; tracker mutation stays on this goroutine
	var jobs []pipeline.Job
	for _, img := range images {
		job, outcome, ok := c.admit(ctx, logger, report.CycleID, img)
		if !ok {
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}
		jobs = append(jobs, job)
	}

	// Step 3: process and wait for every job
	c.metrics.SetInFlight(len(jobs))
	outcomes := c.dispatcher.Dispatch(ctx, jobs)
	c.metrics.SetInFlight(0)

	// Step 4: under the success policy only archived files become "seen"
	if c.tracker.Policy() == dedupe.RecordOnSuccess {
		for i, out := range outcomes {
			if !out.Archived() {
				continue
			}
			if err := c.tracker.Record(ctx, jobs[i].Name, jobs[i].Fingerprint); err != nil {
				logger.Warn("dedupe record failed", zap.String("image", jobs[i].Name), zap.Error(err))
			}
		}
	}

	report.Outcomes = append(report.Outcomes, outcomes...)
	report.Elapsed = time.Since(start)

	for _, out := range report.Recovered {
		c.metrics.ObserveOutcome(out.State)
	}
	for _, out := range report.Outcomes {
		c.metrics.ObserveOutcome(out.State)
	}
	c.metrics.ObserveCycle(metrics.CycleCompleted, report.Elapsed)

	logger.Info("cycle finished",
		zap.Int("listed", len(images)),
		zap.Int("dispatched", len(jobs)),
		zap.Int("recovered", len(report.Recovered)),
		zap.Int("archived", report.Count(pipeline.StateArchived)),
		zap.Int("skipped", report.Count(pipeline.StateSkipped)),
		zap.Int("failed_classification", report.Count(pipeline.StateFailedClassification)),
		zap.Int("failed_routing", report.Count(pipeline.StateFailedRouting)),
		zap.Int("failed_delete", report.Count(pipeline.StateFailedDelete)),
		zap.Duration("elapsed", report.Elapsed),
	)

	return report, nil
}

// admit decides whether img is dispatched this cycle. When it is not, the
// returned outcome says why.
func (c *Controller) admit(ctx context.Context, logger *zap.Logger, cycleID string, img pipeline.RemoteImage) (pipeline.Job, pipeline.Outcome, bool) {
	logger = logger.With(zap.String("image", img.Name))

	fp, err := c.fingerprint(ctx, img.Name)
	if err != nil {
		logger.Warn("fingerprint failed, retrying next cycle", zap.Error(err))
		return pipeline.Job{}, pipeline.Outcome{Name: img.Name, State: pipeline.StateFailedFingerprint, Err: err.Error()}, false
	}

	process, err := c.tracker.ShouldProcess(ctx, img.Name, fp)
	if err != nil {
		logger.Warn("dedupe lookup failed, retrying next cycle", zap.Error(err))
		return pipeline.Job{}, pipeline.Outcome{Name: img.Name, State: pipeline.StateFailedFingerprint, Err: err.Error()}, false
	}
	if !process {
		logger.Debug("unchanged, skipping")
		return pipeline.Job{}, pipeline.Outcome{Name: img.Name, State: pipeline.StateSkipped}, false
	}

	if c.tracker.Policy() == dedupe.RecordOnSubmit {
		if err := c.tracker.Record(ctx, img.Name, fp); err != nil {
			logger.Warn("dedupe record failed, retrying next cycle", zap.Error(err))
			return pipeline.Job{}, pipeline.Outcome{Name: img.Name, State: pipeline.StateFailedFingerprint, Err: err.Error()}, false
		}
	}

	return pipeline.Job{
		CycleID:     cycleID,
		Name:        img.Name,
		RemotePath:  img.RemotePath,
		Fingerprint: fp,
	}, pipeline.Outcome{}, true
}

// recover drains the dispatcher's leftover jobs and marks their files seen
// under the active policy.
func (c *Controller) recover(ctx context.Context, logger *zap.Logger) ([]pipeline.Outcome, error) {
	r, ok := c.dispatcher.(Recoverer)
	if !ok {
		return nil, nil
	}

	outcomes, err := r.Recover(ctx)
	if err != nil {
		return nil, err
	}

	for _, out := range outcomes {
		if out.Fingerprint == "" {
			continue
		}
		if c.tracker.Policy() == dedupe.RecordOnSuccess && !out.Archived() {
			continue
		}
		if err := c.tracker.Record(ctx, out.Name, out.Fingerprint); err != nil {
			logger.Warn("dedupe record failed", zap.String("image", out.Name), zap.Error(err))
		}
	}

	if len(outcomes) > 0 {
		logger.Info("recovered jobs finished", zap.Int("count", len(outcomes)))
	}
	return outcomes, nil
}

func (c *Controller) fingerprint(ctx context.Context, name string) (string, error) {
	rc, err := c.source.Open(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", pipeline.ErrHashFailure, name, err)
	}
	defer rc.Close()

	return fingerprint.Reader(rc)
}
