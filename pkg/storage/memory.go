package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryStore keeps objects in memory keyed by their full location
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Open returns a reader over a copy of the stored object
func (s *MemoryStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Put stores a copy of data
func (s *MemoryStore) Put(_ context.Context, location string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[location] = bytes.Clone(data)

	return nil
}

// Locations lists stored locations in sorted order
func (s *MemoryStore) Locations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.objects))
	for loc := range s.objects {
		out = append(out, loc)
	}

	sort.Strings(out)

	return out
}
