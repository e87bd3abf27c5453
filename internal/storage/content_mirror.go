package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// ContentUploader is the part of simplecontent.Service the mirror needs
type ContentUploader interface {
	UploadContent(ctx context.Context, req simplecontent.UploadContentRequest) (*simplecontent.Content, error)
}

// ContentMirror publishes archived images to a simple-content service
type ContentMirror struct {
	service  ContentUploader
	ownerID  uuid.UUID
	tenantID uuid.UUID
}

// NewContentMirror creates a mirror that uploads as ownerID within tenantID
func NewContentMirror(service ContentUploader, ownerID, tenantID uuid.UUID) *ContentMirror {
	return &ContentMirror{
		service:  service,
		ownerID:  ownerID,
		tenantID: tenantID,
	}
}

// Publish uploads an archived image and returns its content ID
func (m *ContentMirror) Publish(ctx context.Context, img *pipeline.ArchivedImage) (string, error) {
	f, err := os.Open(img.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open archived image: %w", err)
	}
	defer f.Close()

	tags := []string{"detection", img.Store}
	if marker, ok := pipeline.ParseMarker(img.Name); ok {
		tags = append(tags, "lat:"+marker.Latitude, "lon:"+marker.Longitude)
	}

	content, err := m.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      m.ownerID,
		TenantID:     m.tenantID,
		Name:         pipeline.Stem(img.Name),
		DocumentType: "image/jpeg",
		Reader:       f,
		FileName:     img.Name,
		Tags:         tags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}

	return content.ID.String(), nil
}
