package transport

import (
	"context"
	"errors"
	"net"
)

// dialTCP connects to raddr. No dial timeout is applied; ctx bounds the attempt.
func dialTCP(ctx context.Context, raddr *net.TCPAddr) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", raddr.String())
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// tcpAcceptor wraps a TCP listener. The listen queue is cut to Backlog where
// the platform allows it, and the listener is still closed after the first
// accept so a second peer is refused.
type tcpAcceptor struct {
	ln net.Listener
}

func listenTCP(ctx context.Context, laddr *net.TCPAddr) (acceptor, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", laddr.String())
	if err != nil {
		return nil, err
	}
	if err := setBacklog(ln, Backlog); err != nil {
		ln.Close()
		return nil, err
	}
	return &tcpAcceptor{ln: ln}, nil
}

// Accept waits for one connection or for ctx to be cancelled.
func (a *tcpAcceptor) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		a.ln.Close()
	})
	defer stop()

	conn, err := a.ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, net.ErrClosed) {
			return nil, ctxErr
		}
		return nil, err
	}
	return conn, nil
}

func (a *tcpAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

func (a *tcpAcceptor) Close() error {
	err := a.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
