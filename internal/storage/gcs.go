package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"docregistry/internal/config"
)

const gcsPublicBase = "https://storage.googleapis.com/"

type gcsStorage struct {
	client    *gcs.Client
	bucket    *gcs.BucketHandle
	name      string
	publicURL string
}

// NewGCS creates a Storage backed by a Google Cloud Storage bucket.
// Credentials come from GCS_CREDENTIALS_FILE or application default credentials.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	cli, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = gcsPublicBase + cfg.Bucket
	}
	return &gcsStorage{client: cli, bucket: cli.Bucket(cfg.Bucket), name: cfg.Bucket, publicURL: base}, nil
}

// Put writes the object only if it does not exist yet. An existing object under
// the same key is reported as stored: keys embed a fresh uuid, so a 412 means
// an earlier at-least-once attempt already landed.
func (g *gcsStorage) Put(ctx context.Context, key string, r io.Reader, size int64, opt PutObjectOptions) (ObjectInfo, error) {
	w := g.bucket.Object(key).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = opt.ContentType
	w.Metadata = opt.Metadata

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return ObjectInfo{}, fmt.Errorf("%w: write %s: %v", ErrUnavailable, key, err)
	}
	if err := w.Close(); err != nil && !isPreconditionFailed(err) {
		return ObjectInfo{}, fmt.Errorf("%w: finalize %s: %v", ErrUnavailable, key, err)
	}
	if size < 0 {
		size = n
	}
	info := ObjectInfo{
		Key:         key,
		URL:         joinURL(g.publicURL, key),
		Size:        size,
		ContentType: opt.ContentType,
		Metadata:    opt.Metadata,
	}
	if attrs := w.Attrs(); attrs != nil {
		info.ETag = attrs.Etag
	}
	return info, nil
}

func (g *gcsStorage) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (g *gcsStorage) Ping(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("%w: bucket %s: %v", ErrUnavailable, g.name, err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
