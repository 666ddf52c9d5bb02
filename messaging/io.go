package messaging

import (
	"context"
	"io"
)

// InputSource supplies outbound message text one message at a time.
type InputSource interface {
	// Next returns the next message. It returns io.EOF at end of input and
	// ctx.Err() if ctx is cancelled while waiting.
	Next(ctx context.Context) (string, error)
}

// OutputSink surfaces each completed inbound message.
type OutputSink interface {
	Deliver(payload string) error
}

// SinkFunc adapts a function to OutputSink.
type SinkFunc func(payload string) error

// Deliver calls f(payload).
func (f SinkFunc) Deliver(payload string) error {
	return f(payload)
}

// SliceSource replays a fixed list of messages then reports io.EOF.
type SliceSource struct {
	messages []string
	next     int
}

// NewSliceSource creates a source over messages.
func NewSliceSource(messages ...string) *SliceSource {
	return &SliceSource{messages: messages}
}

// Next returns the next message or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.messages) {
		return "", io.EOF
	}
	msg := s.messages[s.next]
	s.next++
	return msg, nil
}
