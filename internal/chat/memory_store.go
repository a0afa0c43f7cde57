package chat

import (
	"context"
	"sync"

	"github.com/huijing/sgtechonline/internal/domain"
)

// MemoryStore keeps histories for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]domain.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]domain.ChatMessage)}
}

func (s *MemoryStore) Append(ctx context.Context, key string, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[key] = append(s.logs[key], msg)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatMessage, len(s.logs[key]))
	copy(out, s.logs[key])
	return out, nil
}

func (s *MemoryStore) Destroy(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
