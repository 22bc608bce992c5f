// Package memory stores published artifacts in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Object is a stored artifact together with its content type.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore stores artifacts in-memory and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	puts    int
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]Object),
	}
}

// PutObject stores a copy of data under key and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = Object{
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	s.puts++
	return "memory://" + key, nil
}

// Object returns the stored artifact for key.
func (s *BlobStore) Object(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return Object{}, false
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, true
}

// Keys returns the number of distinct keys held.
func (s *BlobStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Puts returns how many successful writes the store accepted.
func (s *BlobStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
