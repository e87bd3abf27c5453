package remote

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// S3Config identifies a bucket prefix used as the remote share
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// S3Source lists and deletes images under a bucket prefix
type S3Source struct {
	api    *minio.Client
	bucket string
	prefix string
}

var _ Source = (*S3Source)(nil)

// NewS3Source creates the client and verifies the bucket is reachable
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSessionFailure, err)
	}

	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSessionFailure, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: bucket %q not found", pipeline.ErrSessionFailure, cfg.Bucket)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3Source{api: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// List returns image objects directly under the prefix
func (s *S3Source) List(ctx context.Context) ([]pipeline.RemoteImage, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: false,
	}

	var images []pipeline.RemoteImage
	for obj := range s.api.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		if name == "" || strings.HasSuffix(name, "/") || !pipeline.IsImage(name) {
			continue
		}
		images = append(images, pipeline.RemoteImage{
			Name:       name,
			RemotePath: "s3://" + path.Join(s.bucket, obj.Key),
		})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })

	return images, nil
}

// Open streams the named object
func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, s.prefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", name, err)
	}
	return obj, nil
}

// Delete removes the named object. A missing object is reported as a failure.
func (s *S3Source) Delete(ctx context.Context, name string) error {
	key := s.prefix + name
	if _, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeleteFailure, err)
	}
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeleteFailure, err)
	}
	return nil
}
