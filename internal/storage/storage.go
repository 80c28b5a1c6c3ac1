package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/intakedesk/apiserver/config"
)

// ErrObjectNotFound is returned by backends when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrForeignLocator is returned for locators minted by another backend or bucket.
var ErrForeignLocator = errors.New("locator does not belong to this storage")

const (
	checksumMetadataKey  = "sha256"
	documentCacheControl = "private, no-store"
)

// Object is one upload handed to a backend.
type Object struct {
	Body        io.Reader
	Size        int64
	ContentType string
	// Checksum is the hex SHA-256 of Body, stored as object metadata.
	Checksum string
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, obj Object) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	Scheme() string
}

// Storage wraps an ObjectStorage backend with a stable API. Files are
// addressed by locators of the form scheme://bucket/key, which callers
// store verbatim and never parse.
type Storage struct {
	backend ObjectStorage
	prefix  string
}

// NewStorage constructs a Storage wrapper for the provided backend.
// Keys are written under prefix when it is non-empty.
func NewStorage(backend ObjectStorage, prefix string) *Storage {
	return &Storage{backend: backend, prefix: strings.Trim(prefix, "/")}
}

// Open builds the backend selected by cfg.StorageBackend and makes sure
// its bucket exists.
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	var backend ObjectStorage
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "minio", "":
		client, err := NewMinioBackend(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := NewGCSBackend(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("connect gcs: %w", err)
		}
		backend = client
	case "memory":
		backend = NewMemoryStorage(cfg.Minio.Bucket)
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	s := NewStorage(backend, cfg.StoragePrefix)
	if err := s.EnsureBucket(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return s, nil
}

// Close releases the backend client when it holds one.
func (s *Storage) Close() error {
	if closer, ok := s.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// PutFile uploads data under a key derived from pathHint and returns the
// locator to store on the document record.
func (s *Storage) PutFile(ctx context.Context, pathHint string, data []byte, contentType string) (string, error) {
	key, err := s.key(pathHint)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	obj := Object{
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    hex.EncodeToString(sum[:]),
	}
	if err := s.backend.Put(ctx, key, obj); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.locator(key), nil
}

// OpenFile opens a reader for the file behind locator.
func (s *Storage) OpenFile(ctx context.Context, locator string) (io.ReadCloser, error) {
	key, err := s.parse(locator)
	if err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, key)
}

// DeleteFile removes the file behind locator. Deleting a file that is
// already gone succeeds.
func (s *Storage) DeleteFile(ctx context.Context, locator string) error {
	key, err := s.parse(locator)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

func (s *Storage) key(pathHint string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(pathHint))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", errors.New("empty path hint")
	}
	if s.prefix != "" {
		clean = s.prefix + "/" + clean
	}
	return clean, nil
}

func (s *Storage) locator(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.backend.Scheme(), s.backend.Bucket(), key)
}

func (s *Storage) parse(locator string) (string, error) {
	want := fmt.Sprintf("%s://%s/", s.backend.Scheme(), s.backend.Bucket())
	if !strings.HasPrefix(locator, want) {
		return "", fmt.Errorf("%w: %s", ErrForeignLocator, locator)
	}
	key := strings.TrimPrefix(locator, want)
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignLocator, locator)
	}
	return key, nil
}
