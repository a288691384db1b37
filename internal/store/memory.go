package store

import (
	"sync"

	"github.com/subwatch/subwatch/internal/model"
)

// MemoryStore is an in-process SessionStore for check mode and tests:
// nothing survives the process.
type MemoryStore struct {
	mu     sync.Mutex
	bundle *model.SessionBundle
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*model.SessionBundle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bundle == nil {
		return nil, false, nil
	}
	b := *s.bundle
	return &b, true, nil
}

func (s *MemoryStore) Save(bundle *model.SessionBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := *bundle
	s.bundle = &b
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundle = nil
	return nil
}
