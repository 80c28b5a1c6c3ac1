package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/intakedesk/apiserver/config"
	"google.golang.org/api/option"
)

// GCSBackend keeps documents in a Google Cloud Storage bucket.
type GCSBackend struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	name      string
	projectID string
}

// NewGCSBackend builds a client from explicit credentials when
// GCS_CREDENTIALS_FILE is set and from the ambient environment otherwise.
func NewGCSBackend(ctx context.Context, cfg config.GCSConfig) (*GCSBackend, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &GCSBackend{
		client:    client,
		bucket:    client.Bucket(name),
		name:      name,
		projectID: strings.TrimSpace(cfg.ProjectID),
	}, nil
}

// EnsureBucket creates the bucket when it is missing. Creation needs
// GCS_PROJECT_ID.
func (g *GCSBackend) EnsureBucket(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if g.projectID == "" {
		return fmt.Errorf("bucket %s does not exist and GCS_PROJECT_ID is unset", g.name)
	}
	return g.bucket.Create(ctx, g.projectID, &storage.BucketAttrs{
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
	})
}

// Put streams obj into key. Cancelling the writer's context before Close
// abandons the upload, so a failed copy leaves no partial object behind.
func (g *GCSBackend) Put(ctx context.Context, key string, obj Object) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = documentCacheControl
	if obj.Checksum != "" {
		w.Metadata = map[string]string{checksumMetadataKey: obj.Checksum}
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCSBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (g *GCSBackend) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	return err
}

// Close releases the SDK client.
func (g *GCSBackend) Close() error { return g.client.Close() }

func (g *GCSBackend) Bucket() string { return g.name }

func (g *GCSBackend) Scheme() string { return "gs" }
