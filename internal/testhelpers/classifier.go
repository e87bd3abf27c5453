package testhelpers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/tendant/detect-archive-pipeline/internal/classifier"
	"github.com/tendant/detect-archive-pipeline/internal/staging"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// Verdict is a scripted classifier response
type Verdict int

const (
	// Negative succeeds without writing a label
	Negative Verdict = iota
	// Positive succeeds and writes a label artifact
	Positive
	// Fail reports a non-zero exit
	Fail
	// Panic panics inside Classify
	Panic
)

// ScriptedClassifier returns verdicts keyed by image content. Images whose
// bytes contain "pothole" default to Positive, everything else to Negative.
type ScriptedClassifier struct {
	mu       sync.Mutex
	verdicts map[string]Verdict
	calls    []string
}

var _ classifier.Classifier = (*ScriptedClassifier)(nil)

// NewScriptedClassifier creates a classifier with no overrides
func NewScriptedClassifier() *ScriptedClassifier {
	return &ScriptedClassifier{verdicts: make(map[string]Verdict)}
}

// Set overrides the verdict for an image name
func (c *ScriptedClassifier) Set(name string, v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[name] = v
}

// Calls returns the image names classified so far
func (c *ScriptedClassifier) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Classify writes a label for positive verdicts, like the real detector
func (c *ScriptedClassifier) Classify(ctx context.Context, batch *staging.Batch, imageName string) classifier.Result {
	c.mu.Lock()
	c.calls = append(c.calls, imageName)
	v, ok := c.verdicts[imageName]
	c.mu.Unlock()

	if !ok {
		data, _ := os.ReadFile(batch.ImagePath(imageName))
		if bytes.Contains(data, []byte("pothole")) {
			v = Positive
		}
	}

	switch v {
	case Fail:
		return classifier.Result{Err: pipeline.ErrClassificationFailure}
	case Panic:
		panic("detector crashed on " + imageName)
	case Positive:
		if err := os.MkdirAll(batch.LabelsDir(), 0o755); err != nil {
			return classifier.Result{Err: err}
		}
		label := filepath.Join(batch.LabelsDir(), pipeline.Stem(imageName)+".txt")
		if err := os.WriteFile(label, []byte("0 0.5 0.5 0.2 0.2 0.9\n"), 0o644); err != nil {
			return classifier.Result{Err: err}
		}
	}
	return classifier.Result{Success: true, Positive: batch.HasLabel(imageName)}
}
