// Package router moves classified images into the positive or negative
// archival store under a collision-free name.
package router

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

var errNameTaken = errors.New("name taken")

// Router writes staged images into the archival stores
type Router struct {
	positiveDir string
	negativeDir string
	logger      *zap.Logger
}

// New creates a router, creating both store directories if needed
func New(positiveDir, negativeDir string, logger *zap.Logger) (*Router, error) {
	for _, dir := range []string{positiveDir, negativeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store %s: %w", dir, err)
		}
	}
	return &Router{
		positiveDir: positiveDir,
		negativeDir: negativeDir,
		logger:      logging.OrNop(logger),
	}, nil
}

// Route moves src into the store picked by positive. The first free name of
// <stem>.jpg, <stem>,1.jpg, <stem>,2.jpg, ... is claimed atomically, so
// concurrent routes into one store never overwrite each other.
func (r *Router) Route(src string, positive bool) (*pipeline.ArchivedImage, error) {
	store, dir := pipeline.StoreNegative, r.negativeDir
	if positive {
		store, dir = pipeline.StorePositive, r.positiveDir
	}

	stem := pipeline.Stem(src)
	for n := 0; ; n++ {
		name := candidate(stem, n)
		dst := filepath.Join(dir, name)

		err := place(src, dst)
		if errors.Is(err, errNameTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s -> %s: %v", pipeline.ErrRouteFailure, src, dst, err)
		}

		r.logger.Info("image archived",
			zap.String("store", store),
			zap.String("name", name),
		)
		return &pipeline.ArchivedImage{Store: store, Name: name, Path: dst}, nil
	}
}

func candidate(stem string, n int) string {
	if n == 0 {
		return stem + pipeline.ArchiveExt
	}
	return stem + "," + strconv.Itoa(n) + pipeline.ArchiveExt
}

// place moves src to dst only if dst does not exist. A hard link claims the
// name on the same volume; otherwise dst is created exclusively and filled
// with a full copy before the staging file is removed.
func place(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		removeStaged(src)
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return errNameTaken
	}
	if errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// cross-device or hard links unsupported
	return copyExclusive(src, dst)
}

func copyExclusive(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return errNameTaken
	}
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	in.Close()
	removeStaged(src)
	return nil
}

// removeStaged drops the staging copy; a leftover copy is harmless.
func removeStaged(src string) {
	_ = os.Remove(src)
}
