package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// FailPut, when set, makes Put fail for matching keys.
	FailPut func(key string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return Object{}, err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: data, contentType: contentType}
	return Object{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, Object{}, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), Object{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Keys lists stored keys in order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
