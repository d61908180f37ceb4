package cache

import (
	"context"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-telemed-client/internal/errors"
)

// ErrNotFound is returned by a Store on a miss.
var ErrNotFound = errs.ErrNotFound

// Entry is a cached successful response.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	DataType  DataType  `json:"data_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the storage backend behind a Cache.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	DeleteByType(ctx context.Context, dataType DataType) error
	Clear(ctx context.Context) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a thread-safe bounded in-memory Store. When full, the oldest
// entry is evicted.
type MemoryStore struct {
	entries    map[string]*Entry
	maxEntries int
	mu         sync.RWMutex
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries entries
// (unbounded when maxEntries <= 0).
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *MemoryStore) Set(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	copied := *entry
	s.entries[entry.Key] = &copied
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) DeleteByType(_ context.Context, dataType DataType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.DataType == dataType {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// DeleteOlderThan drops entries created before cutoff.
func (s *MemoryStore) DeleteOlderThan(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// caller holds s.mu
func (s *MemoryStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range s.entries {
		if oldestKey == "" || e.CreatedAt.Before(oldest) {
			oldestKey, oldest = k, e.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}
