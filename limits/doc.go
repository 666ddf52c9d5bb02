// Package limits provides centralized message size constants and validation functions
// for btchat. Framing, console input and the message store all check payloads
// against the same bounds.
//
// # Size Hierarchy
//
//   - MaxMessageSize (4096 bytes): the largest payload a single frame may carry.
//     Console lines longer than this are discarded before they reach the wire.
//
//   - MaxLineBuffer (64KB): the read buffer for line-oriented input.
//
//   - MaxProcessingBuffer (1MB): the absolute maximum for any payload or line.
//     Configured limits are clamped to it, and untrusted length prefixes larger
//     than the configured limit are rejected before any allocation.
//
// # Validation
//
//	max := limits.EffectiveMax(cfg.MaxMessageSize)
//	if err := limits.ValidateMessageSize(payload, max); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
package limits
