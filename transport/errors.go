package transport

import (
	"errors"
	"fmt"
)

// Common errors for endpoint establishment and framing
var (
	// ErrUnsupportedNetwork indicates a network this build cannot open
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrInvalidAddress indicates a malformed peer or local address
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidChannel indicates a channel number outside the network's range
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrAlreadyEstablished indicates Establish was called twice on one endpoint
	ErrAlreadyEstablished = errors.New("endpoint already established")

	// ErrFrameTooLarge indicates a length prefix above the configured limit
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrEmptyFrame indicates a zero-length frame on the wire
	ErrEmptyFrame = errors.New("empty frame")
)

// ConnectionError reports a failure to establish a connection.
// It is fatal for the session that hit it.
type ConnectionError struct {
	Op      string // "resolve", "dial", "listen", "accept"
	Network Network
	Addr    string // address if relevant
	Err     error  // underlying error
}

func (e *ConnectionError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Network, e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Network, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// newConnectionError creates a new ConnectionError
func newConnectionError(op string, network Network, addr string, err error) *ConnectionError {
	return &ConnectionError{
		Op:      op,
		Network: network,
		Addr:    addr,
		Err:     err,
	}
}

// IsConnectionError reports whether err is or wraps a *ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
