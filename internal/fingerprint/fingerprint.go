// Package fingerprint computes content digests used to detect unchanged files.
package fingerprint

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

const chunkSize = 4096

// Reader folds r into a digest in fixed-size chunks and returns it as hex
func Reader(r io.Reader) (string, error) {
	h := xxhash.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("%w: %v", pipeline.ErrHashFailure, err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// File returns the digest of the file at path
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pipeline.ErrHashFailure, err)
	}
	defer f.Close()

	return Reader(f)
}
