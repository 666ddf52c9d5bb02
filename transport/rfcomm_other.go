//go:build !linux

package transport

import "context"

func dialRFCOMM(context.Context, *RFCOMMAddr) (Conn, error) {
	return nil, ErrUnsupportedNetwork
}

func listenRFCOMM(context.Context, *RFCOMMAddr) (acceptor, error) {
	return nil, ErrUnsupportedNetwork
}
