// Package transport establishes the single byte stream a btchat session runs on
// and defines how messages are framed on it.
//
// Two roles are supported:
//   - Initiator: connects out to a known peer address and channel.
//   - Responder: binds a channel on the local adapter, listens with a backlog
//     of one, accepts exactly one peer, then stops listening.
//
// Two networks are supported:
//   - "rfcomm": Bluetooth RFCOMM sockets (Linux only), addressed by a BD_ADDR
//     such as 60:E9:AA:46:FE:B4 and a channel in 1..30.
//   - "tcp": a TCP stand-in addressed by host and port, where the port plays
//     the role of the channel. Used on hosts without Bluetooth and in tests.
//
// Example:
//
//	responder := transport.NewResponder(transport.NetworkRFCOMM, "", 4)
//	conn, err := responder.Establish(ctx)
//	if err != nil {
//	    log.Fatal(err) // *transport.ConnectionError
//	}
//	defer conn.Close()
//
// # Framing
//
// A stream carries no message boundaries, so every payload is written as a
// 4-byte big-endian length followed by the payload bytes. ReadFrame uses
// io.ReadFull, which makes reassembly independent of how the kernel splits
// or coalesces reads.
//
// Establishment failures are reported as *ConnectionError and are never
// retried. No artificial timeouts are applied; cancelling the context passed
// to Establish aborts a pending connect or accept.
package transport
