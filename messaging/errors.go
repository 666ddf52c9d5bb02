package messaging

import (
	"errors"
	"fmt"

	"github.com/opd-ai/btchat/store"
)

var (
	// ErrPeerClosed reports that the peer closed the stream in an orderly way.
	// It ends the inbound worker but is not a failure.
	ErrPeerClosed = errors.New("peer closed connection")

	// ErrInputEnded reports that the input source signalled end-of-input.
	ErrInputEnded = errors.New("input ended")

	// ErrShutdown reports that a worker was stopped because its sibling
	// terminated or the channel's context was cancelled.
	ErrShutdown = errors.New("channel shut down")

	// ErrAlreadyRunning is returned by a second call to Channel.Run.
	ErrAlreadyRunning = errors.New("channel already running")
)

// StreamError reports a failed read or write on an established stream, or a
// failed input source. It terminates only the worker that hit it.
type StreamError struct {
	Direction store.Direction
	Op        string // "read", "write", "input", "frame"
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Direction, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
