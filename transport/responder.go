package transport

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
)

// Backlog is the listen queue length used by a Responder. Only one peer is
// ever served, so only one pending connection is allowed.
const Backlog = 1

// Responder binds a channel on the local adapter and accepts a single peer.
type Responder struct {
	endpointState

	network Network
	host    string
	channel uint16

	// OnListening, if set, is called with the bound address once the socket
	// is listening and before Establish blocks in accept.
	OnListening func(addr net.Addr)
}

// NewResponder creates a Responder bound to host (empty for any adapter)
// on channel.
func NewResponder(network Network, host string, channel uint16) *Responder {
	return &Responder{network: network, host: host, channel: channel}
}

// Role implements Endpoint.
func (r *Responder) Role() Role {
	return RoleResponder
}

// Establish binds, listens, and blocks until one peer connects. The
// listening socket is closed as soon as that peer is accepted, so no second
// peer is queued.
func (r *Responder) Establish(ctx context.Context) (Conn, error) {
	if !r.begin() {
		return nil, newConnectionError("listen", r.network, r.host, ErrAlreadyEstablished)
	}

	laddr, err := ResolveAddr(r.network, r.host, r.channel)
	if err != nil {
		r.setState(StateClosed)
		return nil, newConnectionError("resolve", r.network, r.host, err)
	}

	ln, err := listen(ctx, r.network, laddr)
	if err != nil {
		r.setState(StateClosed)
		return nil, newConnectionError("listen", r.network, laddr.String(), err)
	}
	defer func() {
		if cerr := ln.Close(); cerr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Responder.Establish",
				"error":    cerr.Error(),
			}).Debug("Listener close reported error")
		}
	}()

	r.setState(StateListening)

	logrus.WithFields(logrus.Fields{
		"function": "Responder.Establish",
		"network":  r.network,
		"addr":     ln.Addr().String(),
		"backlog":  Backlog,
	}).Info("Waiting for connection")

	if r.OnListening != nil {
		r.OnListening(ln.Addr())
	}

	conn, err := ln.Accept(ctx)
	if err != nil {
		r.setState(StateClosed)
		return nil, newConnectionError("accept", r.network, ln.Addr().String(), err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Responder.Establish",
		"peer":     conn.RemoteAddr().String(),
	}).Info("Accepted connection")

	return newTrackedConn(conn, &r.endpointState), nil
}

// listen binds laddr on network with a backlog of one.
func listen(ctx context.Context, network Network, laddr net.Addr) (acceptor, error) {
	switch addr := laddr.(type) {
	case *net.TCPAddr:
		return listenTCP(ctx, addr)
	case *RFCOMMAddr:
		return listenRFCOMM(ctx, addr)
	default:
		return nil, ErrUnsupportedNetwork
	}
}
