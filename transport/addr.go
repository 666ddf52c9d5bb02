package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Network selects the socket family an endpoint uses.
type Network string

const (
	// NetworkRFCOMM is Bluetooth RFCOMM (AF_BLUETOOTH, SOCK_STREAM, BTPROTO_RFCOMM).
	NetworkRFCOMM Network = "rfcomm"
	// NetworkTCP is TCP, where the channel number is the port.
	NetworkTCP Network = "tcp"
)

// MaxRFCOMMChannel is the highest usable RFCOMM channel.
const MaxRFCOMMChannel = 30

// ParseNetwork validates a network name.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case NetworkRFCOMM:
		return NetworkRFCOMM, nil
	case NetworkTCP:
		return NetworkTCP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, s)
	}
}

// BDAddr is a Bluetooth device address in display order (most significant octet first).
type BDAddr [6]byte

// BDAddrAny is the wildcard address used to bind the first available adapter.
var BDAddrAny = BDAddr{}

// ParseBDAddr parses six colon-separated hex octets, e.g. "60:E9:AA:46:FE:B4".
func ParseBDAddr(s string) (BDAddr, error) {
	var addr BDAddr
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != len(addr) {
		return BDAddr{}, fmt.Errorf("%w: %q is not a Bluetooth address", ErrInvalidAddress, s)
	}
	for i, part := range parts {
		if len(part) != 2 {
			return BDAddr{}, fmt.Errorf("%w: %q is not a Bluetooth address", ErrInvalidAddress, s)
		}
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return BDAddr{}, fmt.Errorf("%w: %q is not a Bluetooth address", ErrInvalidAddress, s)
		}
		addr[i] = byte(b)
	}
	return addr, nil
}

// String returns the upper-case colon form.
func (a BDAddr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// RFCOMMAddr implements net.Addr for an RFCOMM device and channel.
type RFCOMMAddr struct {
	BDAddr  BDAddr
	Channel uint8
}

// Network implements net.Addr.
func (a *RFCOMMAddr) Network() string {
	return string(NetworkRFCOMM)
}

// String implements net.Addr.
func (a *RFCOMMAddr) String() string {
	return fmt.Sprintf("%s/%d", a.BDAddr, a.Channel)
}

// ResolveAddr builds the socket address for host and channel on network.
// An empty host means "any local adapter" and is only meaningful when binding.
func ResolveAddr(network Network, host string, channel uint16) (net.Addr, error) {
	host = strings.TrimSpace(host)

	switch network {
	case NetworkRFCOMM:
		if channel < 1 || channel > MaxRFCOMMChannel {
			return nil, fmt.Errorf("%w: rfcomm channel %d outside 1..%d", ErrInvalidChannel, channel, MaxRFCOMMChannel)
		}
		bd := BDAddrAny
		if host != "" {
			parsed, err := ParseBDAddr(host)
			if err != nil {
				return nil, err
			}
			bd = parsed
		}
		return &RFCOMMAddr{BDAddr: bd, Channel: uint8(channel)}, nil

	case NetworkTCP:
		addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(int(channel))))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return addr, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}
