package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
)

// InMemory keeps threads in process memory. It backs tests and lets the
// server run without provider credentials; threads are lost on restart.
type InMemory struct {
	mu      sync.RWMutex
	threads map[string][]conversation.Message
}

// NewInMemory returns an empty in-process thread store.
func NewInMemory() *InMemory {
	return &InMemory{threads: make(map[string][]conversation.Message)}
}

// CreateThread allocates a new empty thread.
func (m *InMemory) CreateThread(_ context.Context) (string, error) {
	ref := "thread_" + uuid.NewString()

	m.mu.Lock()
	m.threads[ref] = make([]conversation.Message, 0, 16)
	m.mu.Unlock()

	return ref, nil
}

// AppendMessage adds a turn to the end of the thread.
func (m *InMemory) AppendMessage(_ context.Context, threadRef, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs, ok := m.threads[threadRef]
	if !ok {
		return ErrThreadNotFound
	}
	m.threads[threadRef] = append(msgs, conversation.Message{Role: role, Content: content})
	return nil
}

// ListMessages returns the thread's turns in append order.
func (m *InMemory) ListMessages(_ context.Context, threadRef string) ([]conversation.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs, ok := m.threads[threadRef]
	if !ok {
		return nil, ErrThreadNotFound
	}

	copied := make([]conversation.Message, len(msgs))
	copy(copied, msgs)
	return copied, nil
}
