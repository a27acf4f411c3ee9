package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and for ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// Error injection for tests.
	GetError    error
	PutError    error
	DeleteError error
	ListError   error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// GetBatch returns the stored values for the given keys.
func (s *MemoryStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if val, ok := s.data[key]; ok {
			cp := make([]byte, len(val))
			copy(cp, val)
			result[key] = cp
		}
	}
	return result, nil
}

// PutBatch stores all entries.
func (s *MemoryStore) PutBatch(ctx context.Context, entries map[string][]byte) error {
	if s.PutError != nil {
		return s.PutError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, val := range entries {
		cp := make([]byte, len(val))
		copy(cp, val)
		s.data[key] = cp
	}
	return nil
}

// DeleteBatch removes the given keys.
func (s *MemoryStore) DeleteBatch(ctx context.Context, keys []string) error {
	if s.DeleteError != nil {
		return s.DeleteError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// List returns all keys starting with prefix, sorted.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key starting with prefix.
func (s *MemoryStore) Clear(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored entries, for test assertions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
