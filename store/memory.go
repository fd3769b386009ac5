package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryKV is an in-memory implementation of KV. Suitable for development and
// testing, and the default backend for the single-process coordination core.
type MemoryKV struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	closed  bool
}

// NewMemoryKV creates a new in-memory key-value store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{buckets: make(map[string]map[string][]byte)}
}

// Put stores value under (bucket, key).
func (s *MemoryKV) Put(ctx context.Context, bucket, key string, value any) error {
	if bucket == "" || key == "" {
		return ErrInvalidInput
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = data
	return nil
}

// Get loads the record at (bucket, key) into out.
func (s *MemoryKV) Get(ctx context.Context, bucket, key string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	data, ok := s.buckets[bucket][key]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, out)
}

// Delete removes the record at (bucket, key).
func (s *MemoryKV) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.buckets[bucket], key)
	return nil
}

// Keys lists all keys in a bucket.
func (s *MemoryKV) Keys(ctx context.Context, bucket string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	return keys, nil
}

// Ping checks if the store is healthy.
func (s *MemoryKV) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store.
func (s *MemoryKV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ KV = (*MemoryKV)(nil)
