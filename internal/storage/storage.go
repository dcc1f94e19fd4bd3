// Package storage is the blob store behind captured receipt images: an S3
// implementation for real deployments and an in-memory one for tests and
// local runs.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// BlobStorageError is the typed infrastructure failure for blob operations.
type BlobStorageError struct {
	Op    string
	Key   string
	Cause error
}

func (e *BlobStorageError) Error() string {
	return fmt.Sprintf("blob %s %q: %v", e.Op, e.Key, e.Cause)
}

func (e *BlobStorageError) Unwrap() error { return e.Cause }

// BlobStore stores receipt images by key. Get returns (nil, nil) for a
// missing key; only infrastructure failures are errors.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// validateKey rejects storage keys containing path traversal segments.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty storage key")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return fmt.Errorf("path traversal detected in storage key")
		}
	}
	return nil
}

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is a map-backed BlobStore.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return &BlobStorageError{Op: "put", Key: key, Cause: err}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.objects[key] = memoryObject{data: cp, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}
