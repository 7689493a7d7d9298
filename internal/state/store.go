// Package state defines the key-value store the runtime commits to.
package state

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Write is one mutation of a committed batch. Delete wins over Value.
type Write struct {
	Key    string
	Value  []byte
	Delete bool
}

// Store is the persistent key-value state. Apply must be atomic: either every
// write in the batch is visible afterwards or none is.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Apply(ctx context.Context, writes []Write) error
}

// Scanner is implemented by stores that can enumerate a key prefix.
type Scanner interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) Apply(_ context.Context, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.Delete {
			delete(s.data, w.Key)
			continue
		}
		v := make([]byte, len(w.Value))
		copy(v, w.Value)
		s.data[w.Key] = v
	}
	return nil
}

// Keys returns the sorted keys under prefix.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports the number of keys held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
