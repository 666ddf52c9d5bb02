package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMessageSize is the largest payload carried by one frame.
	MaxMessageSize = 4096

	// MaxLineBuffer is the read buffer for line-oriented input. Longer lines
	// are read in fragments.
	MaxLineBuffer = 64 * 1024

	// MaxProcessingBuffer is the absolute maximum for any payload or line.
	// This prevents memory exhaustion from hostile length prefixes (1MB limit)
	MaxProcessingBuffer = 1024 * 1024

	// FrameHeaderSize is the length prefix preceding every payload on the wire.
	FrameHeaderSize = 4
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// EffectiveMax clamps a configured frame limit into (0, MaxProcessingBuffer].
// Zero or negative values select MaxMessageSize.
func EffectiveMax(configured int) int {
	if configured <= 0 {
		return MaxMessageSize
	}
	if configured > MaxProcessingBuffer {
		return MaxProcessingBuffer
	}
	return configured
}
