//go:build unix

package transport

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// setBacklog calls listen(2) again on the socket behind ln with the given
// queue length. The kernel accepts a repeated listen on a listening socket
// and only updates the backlog.
func setBacklog(ln net.Listener, backlog int) error {
	sc, ok := ln.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("set backlog: %w", err)
	}

	var listenErr error
	if err := raw.Control(func(fd uintptr) {
		listenErr = unix.Listen(int(fd), backlog)
	}); err != nil {
		return fmt.Errorf("set backlog: %w", err)
	}
	if listenErr != nil {
		return fmt.Errorf("set backlog: %w", listenErr)
	}
	return nil
}
