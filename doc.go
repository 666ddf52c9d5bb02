// Package btchat implements a two-party text chat over a Bluetooth RFCOMM
// stream (or TCP, for testing and non-Bluetooth hosts).
//
// One side acts as Responder: it binds a channel, waits for exactly one
// peer, and stops listening once that peer connects. The other side acts as
// Initiator and connects to the Responder's device address. After that the
// two programs are symmetric: each sends whatever the user types and prints
// whatever the peer sends, and each records both directions in its own
// message log.
//
// # Getting Started
//
//	cfg := config.Default()
//	cfg.Role = transport.RoleInitiator
//	cfg.Peer = "60:E9:AA:46:FE:B4"
//
//	session, err := btchat.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := session.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Packages
//
//   - transport: Initiator and Responder endpoints, RFCOMM and TCP sockets,
//     and the length-prefixed frame codec.
//   - messaging: the duplex Channel and its console input and output.
//   - store: the append-only message log (SQLite, Redis, or memory).
//   - config: TOML configuration and validation.
//   - metrics: Prometheus counters and the /metrics endpoint.
//   - limits: message size bounds shared by the other packages.
//
// The cmd/btchat program wraps a Session with flags, logging setup, and
// signal handling.
package btchat
