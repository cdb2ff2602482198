package store

import (
	"context"
	"sync"
)

// MemoryStore 进程内产出存储（单进程部署与测试）。
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]Result // key: fingerprint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]Result)}
}

func (s *MemoryStore) SaveResult(ctx context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.Fingerprint]; !ok {
		s.results[r.Fingerprint] = r
	}
	return nil
}

func (s *MemoryStore) HasResult(ctx context.Context, fingerprint string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[fingerprint]
	return r.ResultRef, ok, nil
}

func (s *MemoryStore) Close() error { return nil }
