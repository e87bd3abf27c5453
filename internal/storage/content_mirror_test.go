package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-content/pkg/simplecontent"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

type stubUploader struct {
	req  simplecontent.UploadContentRequest
	body []byte
	id   uuid.UUID
	err  error
}

func (s *stubUploader) UploadContent(ctx context.Context, req simplecontent.UploadContentRequest) (*simplecontent.Content, error) {
	s.req = req
	s.body, _ = io.ReadAll(req.Reader)
	if s.err != nil {
		return nil, s.err
	}
	return &simplecontent.Content{ID: s.id}, nil
}

func TestContentMirrorPublish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "37.1000,127.0000,1.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

	owner, tenant := uuid.New(), uuid.New()
	up := &stubUploader{id: uuid.New()}
	m := NewContentMirror(up, owner, tenant)

	id, err := m.Publish(context.Background(), &pipeline.ArchivedImage{
		Store: pipeline.StorePositive,
		Name:  "37.1000,127.0000,1.jpg",
		Path:  path,
	})
	require.NoError(t, err)
	assert.Equal(t, up.id.String(), id)

	assert.Equal(t, owner, up.req.OwnerID)
	assert.Equal(t, tenant, up.req.TenantID)
	assert.Equal(t, "37.1000,127.0000,1", up.req.Name)
	assert.Equal(t, "image/jpeg", up.req.DocumentType)
	assert.Equal(t, []string{"detection", "positive", "lat:37.1000", "lon:127.0000"}, up.req.Tags)
	assert.Equal(t, "jpeg", string(up.body))
}

func TestContentMirrorErrors(t *testing.T) {
	m := NewContentMirror(&stubUploader{err: errors.New("storage full")}, uuid.New(), uuid.New())

	_, err := m.Publish(context.Background(), &pipeline.ArchivedImage{Path: filepath.Join(t.TempDir(), "missing.jpg")})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "a,b.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err = m.Publish(context.Background(), &pipeline.ArchivedImage{Name: "a,b.jpg", Path: path})
	assert.ErrorContains(t, err, "storage full")
}
