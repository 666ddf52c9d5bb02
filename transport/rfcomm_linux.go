//go:build linux

package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// sockaddr converts to the kernel form, whose bdaddr is little-endian.
func (a *RFCOMMAddr) sockaddr() *unix.SockaddrRFCOMM {
	sa := &unix.SockaddrRFCOMM{Channel: a.Channel}
	for i := range a.BDAddr {
		sa.Addr[i] = a.BDAddr[len(a.BDAddr)-1-i]
	}
	return sa
}

// rfcommAddrFromSockaddr converts a kernel address back to display order.
// Unknown address types yield the wildcard address rather than nil.
func rfcommAddrFromSockaddr(sa unix.Sockaddr) *RFCOMMAddr {
	addr := &RFCOMMAddr{}
	if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
		for i := range addr.BDAddr {
			addr.BDAddr[i] = rc.Addr[len(rc.Addr)-1-i]
		}
		addr.Channel = rc.Channel
	}
	return addr
}

func rfcommSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	return fd, nil
}

// dialRFCOMM connects to raddr. A blocked connect is aborted on ctx
// cancellation by shutting the socket down.
func dialRFCOMM(ctx context.Context, raddr *RFCOMMAddr) (Conn, error) {
	fd, err := rfcommSocket()
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		unix.Shutdown(fd, unix.SHUT_RDWR)
	})
	err = unix.Connect(fd, raddr.sockaddr())
	if !stop() {
		unix.Close(fd)
		return nil, ctx.Err()
	}
	if err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("connect", err)
	}

	return newRFCOMMConn(fd, raddr)
}

// rfcommListener is a bound RFCOMM socket listening with a backlog of one.
type rfcommListener struct {
	fd    int
	laddr *RFCOMMAddr

	closeOnce sync.Once
	closeErr  error
}

func listenRFCOMM(_ context.Context, laddr *RFCOMMAddr) (acceptor, error) {
	fd, err := rfcommSocket()
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, laddr.sockaddr()); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	bound := laddr
	if sa, err := unix.Getsockname(fd); err == nil {
		bound = rfcommAddrFromSockaddr(sa)
	}
	return &rfcommListener{fd: fd, laddr: bound}, nil
}

// Accept blocks until a peer connects or ctx is cancelled.
func (l *rfcommListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		unix.Shutdown(l.fd, unix.SHUT_RDWR)
	})
	defer stop()

	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, os.NewSyscallError("accept", err)
		}
		return newRFCOMMConn(nfd, rfcommAddrFromSockaddr(sa))
	}
}

func (l *rfcommListener) Addr() net.Addr {
	return l.laddr
}

func (l *rfcommListener) Close() error {
	l.closeOnce.Do(func() {
		if err := unix.Close(l.fd); err != nil {
			l.closeErr = os.NewSyscallError("close", err)
		}
	})
	return l.closeErr
}

// rfcommConn is a connected RFCOMM socket. The descriptor is registered with
// the runtime poller, so Close unblocks a pending Read or Write.
type rfcommConn struct {
	f      *os.File
	local  net.Addr
	remote net.Addr
}

func newRFCOMMConn(fd int, remote *RFCOMMAddr) (*rfcommConn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}

	local := &RFCOMMAddr{}
	if sa, err := unix.Getsockname(fd); err == nil {
		local = rfcommAddrFromSockaddr(sa)
	}

	return &rfcommConn{
		f:      os.NewFile(uintptr(fd), "rfcomm:"+remote.String()),
		local:  local,
		remote: remote,
	}, nil
}

func (c *rfcommConn) Read(b []byte) (int, error) {
	return c.f.Read(b)
}

func (c *rfcommConn) Write(b []byte) (int, error) {
	return c.f.Write(b)
}

func (c *rfcommConn) Close() error {
	return c.f.Close()
}

func (c *rfcommConn) LocalAddr() net.Addr {
	return c.local
}

func (c *rfcommConn) RemoteAddr() net.Addr {
	return c.remote
}
