package builtin

import (
	"context"
	"sync"
)

// Settings is the persisted toggle accessor the behaviors read and flip.
type Settings interface {
	Bool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
}

// MemorySettings keeps toggles in process memory.
type MemorySettings struct {
	mu     sync.RWMutex
	values map[string]bool
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{values: make(map[string]bool)}
}

func (s *MemorySettings) Bool(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *MemorySettings) SetBool(_ context.Context, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
