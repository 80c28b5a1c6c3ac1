package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/intakedesk/apiserver/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend keeps documents in a MinIO or S3 compatible bucket.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend validates cfg and builds the SDK client. No request is
// made until the first operation.
func NewMinioBackend(cfg config.MinioConfig) (*MinioBackend, error) {
	var missing []error
	if strings.TrimSpace(cfg.Endpoint) == "" {
		missing = append(missing, errors.New("MINIO_ENDPOINT is required"))
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		missing = append(missing, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required"))
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		missing = append(missing, errors.New("MINIO_BUCKET is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioBackend{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioBackend) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	switch {
	case err != nil:
		return err
	case exists:
		return nil
	}
	err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	if minioCode(err) == "BucketAlreadyOwnedByYou" {
		return nil
	}
	return err
}

// Put writes obj with its checksum attached as user metadata. Documents
// are never cached by intermediaries.
func (m *MinioBackend) Put(ctx context.Context, key string, obj Object) error {
	opts := minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		CacheControl: documentCacheControl,
	}
	if obj.Checksum != "" {
		opts.UserMetadata = map[string]string{checksumMetadataKey: obj.Checksum}
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, obj.Body, obj.Size, opts)
	return err
}

// Get opens key. GetObject is lazy, so the object is stat'ed first to
// surface a missing key as ErrObjectNotFound.
func (m *MinioBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.translate(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, m.translate(err)
	}
	return obj, nil
}

// Delete removes key. MinIO reports success for keys that do not exist.
func (m *MinioBackend) Delete(ctx context.Context, key string) error {
	return m.translate(m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}))
}

func (m *MinioBackend) Bucket() string { return m.bucket }

func (m *MinioBackend) Scheme() string { return "minio" }

func (m *MinioBackend) translate(err error) error {
	if minioCode(err) == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return err
}

func minioCode(err error) string {
	if err == nil {
		return ""
	}
	return minio.ToErrorResponse(err).Code
}
