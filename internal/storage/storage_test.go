package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakedesk/apiserver/config"
)

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStorage("docs")
	s := NewStorage(backend, "/profiles/")

	locator, err := s.PutFile(ctx, "7/../7/abc.pdf", []byte("hello"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "mem://docs/profiles/7/abc.pdf", locator)

	rc, err := s.OpenFile(ctx, locator)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.DeleteFile(ctx, locator))
	require.NoError(t, s.DeleteFile(ctx, locator))
	assert.Equal(t, 0, backend.Len())

	_, err = s.OpenFile(ctx, locator)
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestStorageRejectsForeignLocators(t *testing.T) {
	s := NewStorage(NewMemoryStorage("docs"), "")

	for _, locator := range []string{
		"s3://docs/a.pdf",
		"mem://other/a.pdf",
		"mem://docs/",
		"",
	} {
		err := s.DeleteFile(context.Background(), locator)
		assert.True(t, errors.Is(err, ErrForeignLocator), locator)
	}
}

func TestStorageRejectsEmptyPathHint(t *testing.T) {
	s := NewStorage(NewMemoryStorage(""), "")
	_, err := s.PutFile(context.Background(), "  ", []byte("x"), "")
	assert.Error(t, err)
	assert.Equal(t, "documents", s.Bucket())
}

func TestOpenMemoryBackend(t *testing.T) {
	cfg := config.Config{StorageBackend: "memory"}
	cfg.Minio.Bucket = "intake"

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	locator, err := s.PutFile(context.Background(), "1/x.txt", []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(locator, "mem://intake/"))

	_, err = Open(context.Background(), config.Config{StorageBackend: "ftp"})
	assert.Error(t, err)
}

func TestPutFileRecordsChecksum(t *testing.T) {
	backend := NewMemoryStorage("docs")
	s := NewStorage(backend, "")

	_, err := s.PutFile(context.Background(), "3/a.txt", []byte("abc"), "text/plain")
	require.NoError(t, err)

	sum, ok := backend.Checksum("3/a.txt")
	require.True(t, ok)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestNewMinioBackendReportsMissingSettings(t *testing.T) {
	_, err := NewMinioBackend(config.MinioConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINIO_ENDPOINT")
	assert.Contains(t, err.Error(), "MINIO_BUCKET")

	backend, err := NewMinioBackend(config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "intake",
	})
	require.NoError(t, err)
	assert.Equal(t, "intake", backend.Bucket())
	assert.Equal(t, "minio", backend.Scheme())
}

func TestNewGCSBackendRequiresBucket(t *testing.T) {
	_, err := NewGCSBackend(context.Background(), config.GCSConfig{})
	assert.EqualError(t, err, "GCS_BUCKET is required")
}
