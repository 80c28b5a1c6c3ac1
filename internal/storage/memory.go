package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStorage keeps objects in process memory. It backs local
// development and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	checksum    string
}

// NewMemoryStorage constructs an empty in-memory bucket.
func NewMemoryStorage(bucket string) *MemoryStorage {
	if bucket == "" {
		bucket = "documents"
	}
	return &MemoryStorage{bucket: bucket, objects: make(map[string]memoryObject)}
}

// EnsureBucket is a no-op; the bucket always exists.
func (m *MemoryStorage) EnsureBucket(context.Context) error {
	return nil
}

// Put stores a copy of the object's contents under key.
func (m *MemoryStorage) Put(ctx context.Context, key string, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: obj.ContentType, checksum: obj.Checksum}
	m.mu.Unlock()
	return nil
}

// Get returns a reader over the stored object.
func (m *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete removes key.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

// Bucket returns the bucket name.
func (m *MemoryStorage) Bucket() string {
	return m.bucket
}

// Scheme identifies in-memory locators.
func (m *MemoryStorage) Scheme() string {
	return "mem"
}

// Len reports how many objects are stored.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Checksum returns the stored SHA-256 of key and whether it exists.
func (m *MemoryStorage) Checksum(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.checksum, ok
}
