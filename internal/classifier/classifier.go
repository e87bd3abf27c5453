// Package classifier invokes the external object detector on staged images.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/internal/staging"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// Result is the verdict for one image. Positive is meaningful only when Success is true.
type Result struct {
	Success  bool
	Positive bool
	Err      error
}

// Classifier runs detection on an image already staged inside batch
type Classifier interface {
	Classify(ctx context.Context, batch *staging.Batch, imageName string) Result
}

// DetectorConfig describes the detector command line
type DetectorConfig struct {
	// Command is the program and leading arguments, e.g. ["python", "yolov5/detect.py"]
	Command []string

	// Weights is the model weights file passed with --weights
	Weights string
}

// Detector runs a YOLO-style detect script as a child process
type Detector struct {
	cfg    DetectorConfig
	logger *zap.Logger
}

var _ Classifier = (*Detector)(nil)

// NewDetector creates a detector classifier
func NewDetector(cfg DetectorConfig, logger *zap.Logger) (*Detector, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("detector command is required")
	}
	return &Detector{cfg: cfg, logger: logging.OrNop(logger)}, nil
}

// Args returns the argument list passed to the detector for one image
func (d *Detector) Args(batch *staging.Batch, imageName string) []string {
	args := append([]string{}, d.cfg.Command[1:]...)
	return append(args,
		"--source", batch.ImagePath(imageName),
		"--weights", d.cfg.Weights,
		"--save-txt",
		"--save-conf",
		"--project", batch.Root,
		"--name", batch.Name,
		"--exist-ok",
	)
}

// Classify runs the detector and waits for it to exit. The child process is
// not tied to ctx: a running detection is never interrupted.
func (d *Detector) Classify(ctx context.Context, batch *staging.Batch, imageName string) Result {
	logger := d.logger.With(zap.String("image", imageName), zap.String("batch", batch.Name))

	cmd := exec.Command(d.cfg.Command[0], d.Args(batch, imageName)...)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	logger.Debug("detector finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.ByteString("output", out),
	)
	if err != nil {
		logger.Warn("detector failed", zap.Error(err))
		return Result{Err: fmt.Errorf("%w: %s: %v", pipeline.ErrClassificationFailure, imageName, err)}
	}

	positive := batch.HasLabel(imageName)
	logger.Info("detector succeeded", zap.Bool("positive", positive))
	return Result{Success: true, Positive: positive}
}
