package store

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory ContentStore for tests and ephemeral use.
type MemStore struct {
	mu       sync.RWMutex
	payloads map[string][]byte

	// WriteErr, when set, is returned by every Write. Lets tests exercise
	// the delivery-failure path.
	WriteErr error
}

var _ ContentStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{payloads: make(map[string][]byte)}
}

func (s *MemStore) Read(ctx context.Context, handle string, maxBytes int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.payloads[handle]
	if !ok {
		return nil, fmt.Errorf("no content for handle %q", handle)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemStore) Write(ctx context.Context, handle string, data []byte) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(data))
	copy(out, data)
	s.payloads[handle] = out
	return nil
}

// Get returns the stored bytes for handle, for test assertions.
func (s *MemStore) Get(handle string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.payloads[handle]
	return data, ok
}
