//go:build !unix

package transport

import "net"

// setBacklog leaves the runtime's default queue in place.
func setBacklog(net.Listener, int) error {
	return nil
}
