// Package staging allocates the per-invocation working directories the detector
// writes into. Directories are named exp, exp1, exp2, ... under a run root and
// are never reused.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

const (
	batchPrefix = "exp"
	labelsDir   = "labels"
	labelExt    = ".txt"
)

// Batch is one staging directory
type Batch struct {
	Root string
	Name string
	Dir  string
}

// ImagePath returns the path of file inside the batch
func (b *Batch) ImagePath(file string) string {
	return filepath.Join(b.Dir, file)
}

// LabelsDir returns the directory the detector writes label artifacts into
func (b *Batch) LabelsDir() string {
	return filepath.Join(b.Dir, labelsDir)
}

// HasLabel reports whether the detector left a label artifact for file
func (b *Batch) HasLabel(file string) bool {
	_, err := os.Stat(filepath.Join(b.LabelsDir(), pipeline.Stem(file)+labelExt))
	return err == nil
}

// Allocator hands out fresh batches under a run root
type Allocator struct {
	root string

	mu   sync.Mutex
	next int
}

// NewAllocator creates an allocator rooted at root
func NewAllocator(root string) (*Allocator, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}
	return &Allocator{root: root}, nil
}

// Root returns the run root
func (a *Allocator) Root() string {
	return a.root
}

// Allocate claims the first free batch name with an atomic mkdir per candidate
func (a *Allocator) Allocate() (*Batch, error) {
	a.mu.Lock()
	start := a.next
	a.mu.Unlock()

	for i := start; ; i++ {
		name := batchName(i)
		dir := filepath.Join(a.root, name)

		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", pipeline.ErrStagingFailure, dir, err)
		}

		a.mu.Lock()
		if i+1 > a.next {
			a.next = i + 1
		}
		a.mu.Unlock()

		return &Batch{Root: a.root, Name: name, Dir: dir}, nil
	}
}

func batchName(i int) string {
	if i == 0 {
		return batchPrefix
	}
	return fmt.Sprintf("%s%d", batchPrefix, i)
}
