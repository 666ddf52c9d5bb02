package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the log in process memory.
type MemoryStore struct {
	opts options

	mu       sync.Mutex
	messages []Message
	nextID   int64
	closed   bool
}

// NewMemoryStore creates an empty in-memory log.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:   buildOptions(opts),
		nextID: 1,
	}
}

// Append records a message.
func (s *MemoryStore) Append(_ context.Context, direction Direction, payload string) (Message, error) {
	if err := validateAppend(DriverMemory, direction); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, newStoreError(DriverMemory, "append", ErrClosed)
	}

	msg := Message{
		ID:        s.nextID,
		Direction: direction,
		Payload:   payload,
		Timestamp: s.opts.timeProvider.Now(),
		SessionID: s.opts.sessionID,
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Query returns matching records ordered by id.
func (s *MemoryStore) Query(_ context.Context, filter Filter) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, newStoreError(DriverMemory, "query", ErrClosed)
	}

	result := make([]Message, 0)
	for _, m := range s.messages {
		if !filter.matches(m) {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
