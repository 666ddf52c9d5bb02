package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
)

// Role is the side of the connection an endpoint plays.
type Role uint8

const (
	// RoleInitiator connects out to a known peer.
	RoleInitiator Role = iota
	// RoleResponder listens and accepts a single peer.
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole accepts "initiator"/"responder" and the sender/receiver aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiator", "sender", "client":
		return RoleInitiator, nil
	case "responder", "receiver", "server":
		return RoleResponder, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// State is the lifecycle state of an endpoint's connection.
type State int32

const (
	// StateDisconnected is the initial state.
	StateDisconnected State = iota
	// StateListening means a Responder is bound and waiting for its peer.
	StateListening
	// StateConnecting means an Initiator is dialing.
	StateConnecting
	// StateConnected means the stream is established.
	StateConnected
	// StateClosed is terminal: the stream was closed or establishment failed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is an established bidirectional byte stream.
type Conn interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Endpoint establishes exactly one connection in its role.
type Endpoint interface {
	Role() Role
	State() State
	Establish(ctx context.Context) (Conn, error)
}

// NewEndpoint returns an Initiator or Responder for role. For an Initiator
// host is the peer; for a Responder it is the local bind address.
func NewEndpoint(role Role, network Network, host string, channel uint16) (Endpoint, error) {
	switch role {
	case RoleInitiator:
		return NewInitiator(network, host, channel), nil
	case RoleResponder:
		return NewResponder(network, host, channel), nil
	default:
		return nil, fmt.Errorf("unknown role %v", role)
	}
}

// acceptor is a bound, listening socket that yields one connection.
type acceptor interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// endpointState tracks the lifecycle shared by both roles.
type endpointState struct {
	state       atomic.Int32
	established atomic.Bool
}

func (e *endpointState) State() State {
	return State(e.state.Load())
}

func (e *endpointState) setState(s State) {
	e.state.Store(int32(s))
}

// begin claims the endpoint for its single establishment attempt.
func (e *endpointState) begin() bool {
	return e.established.CompareAndSwap(false, true)
}

// trackedConn moves its endpoint to StateClosed when closed and closes the
// underlying stream at most once.
type trackedConn struct {
	Conn
	owner *endpointState
	once  sync.Once
	err   error
}

func newTrackedConn(c Conn, owner *endpointState) *trackedConn {
	owner.setState(StateConnected)
	return &trackedConn{Conn: c, owner: owner}
}

// Close closes the underlying stream. Later calls return the first result.
func (c *trackedConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
		c.owner.setState(StateClosed)
	})
	return c.err
}
