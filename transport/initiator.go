package transport

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
)

// Initiator connects to a peer at a known address and channel.
type Initiator struct {
	endpointState

	network Network
	peer    string
	channel uint16
}

// NewInitiator creates an Initiator for peer on channel. The peer is a
// Bluetooth address for NetworkRFCOMM or a host for NetworkTCP.
func NewInitiator(network Network, peer string, channel uint16) *Initiator {
	return &Initiator{network: network, peer: peer, channel: channel}
}

// Role implements Endpoint.
func (i *Initiator) Role() Role {
	return RoleInitiator
}

// Establish connects to the peer. A failure is returned as *ConnectionError
// and is not retried.
func (i *Initiator) Establish(ctx context.Context) (Conn, error) {
	if !i.begin() {
		return nil, newConnectionError("dial", i.network, i.peer, ErrAlreadyEstablished)
	}

	if i.peer == "" {
		i.setState(StateClosed)
		return nil, newConnectionError("resolve", i.network, "", ErrInvalidAddress)
	}

	raddr, err := ResolveAddr(i.network, i.peer, i.channel)
	if err != nil {
		i.setState(StateClosed)
		return nil, newConnectionError("resolve", i.network, i.peer, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Initiator.Establish",
		"network":  i.network,
		"peer":     raddr.String(),
	}).Info("Connecting to peer")

	i.setState(StateConnecting)

	conn, err := dial(ctx, i.network, raddr)
	if err != nil {
		i.setState(StateClosed)
		logrus.WithFields(logrus.Fields{
			"function": "Initiator.Establish",
			"network":  i.network,
			"peer":     raddr.String(),
			"error":    err.Error(),
		}).Error("Failed to connect")
		return nil, newConnectionError("dial", i.network, raddr.String(), err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Initiator.Establish",
		"peer":     raddr.String(),
	}).Info("Connected")

	return newTrackedConn(conn, &i.endpointState), nil
}

// dial opens a stream to raddr on network.
func dial(ctx context.Context, network Network, raddr net.Addr) (Conn, error) {
	switch addr := raddr.(type) {
	case *net.TCPAddr:
		return dialTCP(ctx, addr)
	case *RFCOMMAddr:
		return dialRFCOMM(ctx, addr)
	default:
		return nil, ErrUnsupportedNetwork
	}
}
