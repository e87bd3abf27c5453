package handlers

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// ThumbnailQuality is the JPEG quality of rendered thumbnails
const ThumbnailQuality = 80

// RenderThumbnail decodes an image and fits it into width x height using
// Lanczos resampling, preserving aspect ratio. The result is JPEG encoded.
func RenderThumbnail(r io.Reader, width, height int) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	thumbnail := imaging.Fit(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG, imaging.JPEGQuality(ThumbnailQuality)); err != nil {
		return nil, fmt.Errorf("JPEG encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
