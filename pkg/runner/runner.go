// Package runner assembles the pipeline from configuration.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"
	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/classifier"
	"github.com/tendant/detect-archive-pipeline/internal/config"
	"github.com/tendant/detect-archive-pipeline/internal/controller"
	"github.com/tendant/detect-archive-pipeline/internal/dbosruntime"
	"github.com/tendant/detect-archive-pipeline/internal/dedupe"
	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/internal/metrics"
	"github.com/tendant/detect-archive-pipeline/internal/remote"
	"github.com/tendant/detect-archive-pipeline/internal/router"
	"github.com/tendant/detect-archive-pipeline/internal/staging"
	"github.com/tendant/detect-archive-pipeline/internal/storage"
	"github.com/tendant/detect-archive-pipeline/internal/workflows"
)

// Mirror uploads run as a fixed owner and tenant
var (
	MirrorOwnerID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	MirrorTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// ShutdownTimeout bounds DBOS shutdown
const ShutdownTimeout = 10 * time.Second

// Runner owns every pipeline component and their cleanup
type Runner struct {
	controller *controller.Controller
	metrics    *metrics.Metrics
	runtime    *dbosruntime.Runtime
	logger     *zap.Logger
	cleanups   []func()
}

// New opens the remote share and builds the pipeline. A remote that cannot
// be reached is returned as an error wrapping pipeline.ErrSessionFailure.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Runner, err error) {
	r := &Runner{
		metrics: metrics.New(),
		logger:  logging.OrNop(logger),
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	source, err := r.openSource(ctx, cfg.Remote)
	if err != nil {
		return nil, err
	}

	store, err := r.openDedupeStore(ctx, cfg.Dedupe)
	if err != nil {
		return nil, err
	}
	policy, err := dedupe.ParsePolicy(cfg.Dedupe.Policy)
	if err != nil {
		return nil, err
	}

	detector, err := classifier.NewDetector(classifier.DetectorConfig{
		Command: cfg.DetectorCommand(),
		Weights: cfg.Detector.Weights,
	}, r.logger)
	if err != nil {
		return nil, err
	}

	allocator, err := staging.NewAllocator(cfg.Detector.Root)
	if err != nil {
		return nil, err
	}

	rt, err := router.New(cfg.Stores.Positive, cfg.Stores.Negative, r.logger)
	if err != nil {
		return nil, err
	}

	opts := []workflows.Option{workflows.WithLogger(r.logger)}
	if cfg.ContentMirrorDir != "" {
		svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(cfg.ContentMirrorDir))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize content mirror: %w", err)
		}
		r.cleanups = append(r.cleanups, cleanup)
		opts = append(opts, workflows.WithMirror(storage.NewContentMirror(svc, MirrorOwnerID, MirrorTenantID)))
		r.logger.Info("content mirror enabled", zap.String("dir", cfg.ContentMirrorDir))
	}
	wf := workflows.NewArchiveWorkflow(source, allocator, detector, rt, opts...)

	dispatcher, err := r.newDispatcher(ctx, cfg, wf)
	if err != nil {
		return nil, err
	}

	r.controller = controller.New(source, dedupe.NewTracker(store, policy), dispatcher,
		controller.WithInterval(cfg.PollInterval),
		controller.WithMetrics(r.metrics),
		controller.WithLogger(r.logger),
	)

	r.logger.Info("pipeline ready",
		zap.String("remote", cfg.Remote.Kind),
		zap.String("dedupe", cfg.Dedupe.Backend),
		zap.String("policy", string(policy)),
		zap.Int("workers", cfg.Workers),
		zap.Bool("durable", cfg.DurableDispatch()),
		zap.String("positive_store", cfg.Stores.Positive),
		zap.String("negative_store", cfg.Stores.Negative),
	)
	return r, nil
}

// Run polls until ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	return r.controller.Run(ctx)
}

// RunOnce performs a single cycle
func (r *Runner) RunOnce(ctx context.Context) (*controller.Report, error) {
	return r.controller.RunCycle(ctx)
}

// Metrics returns the pipeline metrics
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Close releases every component in reverse order of creation
func (r *Runner) Close() {
	if r.runtime != nil {
		r.runtime.Shutdown(ShutdownTimeout)
		r.runtime = nil
	}
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

func (r *Runner) openSource(ctx context.Context, cfg config.RemoteConfig) (remote.Source, error) {
	switch cfg.Kind {
	case config.RemoteSMB:
		src, err := remote.DialSMB(ctx, remote.SMBConfig{
			Addr:     cfg.SMB.Addr,
			Share:    cfg.SMB.Share,
			Dir:      cfg.SMB.Dir,
			User:     cfg.SMB.User,
			Password: cfg.SMB.Password,
			Domain:   cfg.SMB.Domain,
		})
		if err != nil {
			return nil, err
		}
		r.cleanups = append(r.cleanups, func() { r.closeQuietly("smb session", src.Close) })
		return src, nil
	case config.RemoteS3:
		return remote.NewS3Source(ctx, remote.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
	case config.RemoteLocal:
		return remote.NewLocalSource(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Kind)
	}
}

func (r *Runner) openDedupeStore(ctx context.Context, cfg config.DedupeConfig) (dedupe.Store, error) {
	switch cfg.Backend {
	case config.DedupePostgres:
		store, err := dedupe.OpenPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		r.cleanups = append(r.cleanups, func() { r.closeQuietly("postgres dedupe store", store.Close) })
		return store, nil
	case config.DedupeRedis:
		store, err := dedupe.OpenRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		r.cleanups = append(r.cleanups, func() { r.closeQuietly("redis dedupe store", store.Close) })
		return store, nil
	case config.DedupeMemory:
		return dedupe.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown dedupe backend %q", cfg.Backend)
	}
}

func (r *Runner) newDispatcher(ctx context.Context, cfg *config.Config, wf workflows.Workflow) (controller.Dispatcher, error) {
	if !cfg.DurableDispatch() {
		return controller.NewPoolDispatcher(wf, cfg.Workers, r.logger), nil
	}

	rt, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL: cfg.DBOS.DatabaseURL,
		QueueName:   cfg.DBOS.QueueName,
		Concurrency: cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	// Register before launch so pending workflows are recovered
	dispatcher := dbosruntime.NewDispatcher(rt, wf, r.logger)
	if err := rt.Launch(); err != nil {
		rt.Shutdown(ShutdownTimeout)
		return nil, err
	}
	r.runtime = rt

	r.logger.Info("DBOS runtime initialized",
		zap.String("queue", rt.QueueName()),
		zap.Int("concurrency", rt.Concurrency()),
	)
	return dispatcher, nil
}

func (r *Runner) closeQuietly(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		r.logger.Warn("close failed", zap.String("component", what), zap.Error(err))
	}
}
