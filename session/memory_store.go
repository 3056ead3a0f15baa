package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/adaptive-rag/errors"
	"github.com/sweetpotato0/adaptive-rag/message"
)

// MemoryStore keeps thread logs in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]*message.Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string][]*message.Message)}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, threadID string, msgs ...*message.Message) error {
	if !validThread(threadID) {
		return fmt.Errorf("%w: thread id cannot be empty", errors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		s.threads[threadID] = append(s.threads[threadID], message.Clone(msg))
	}
	return nil
}

// Messages implements Store.
func (s *MemoryStore) Messages(ctx context.Context, threadID string) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.CloneMessages(s.threads[threadID]), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
	return nil
}
