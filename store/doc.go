// Package store provides the append-only message log shared by both directions
// of a btchat channel.
//
// Every message that crosses the wire is recorded once with its direction
// (Sent or Received). Records are never updated or deleted. The store assigns
// ids in strictly increasing order and stamps each record with a timestamp
// and the id of the session that produced it.
//
// # Drivers
//
//   - "sqlite" (default): a single table in a SQLite file via mattn/go-sqlite3.
//     The schema is created if absent; there are no migrations.
//   - "redis": a Redis list holding JSON records plus a sequence counter.
//   - "memory": a process-local log, used by tests and throwaway sessions.
//
// # Concurrency
//
// All drivers are safe for concurrent use. Appends are serialized inside the
// store so the inbound and outbound workers may record at the same time
// without corrupting the log; the relative order of Sent and Received records
// is whatever order the appends reached the store.
//
// # Failure Policy
//
// Append either returns after the record is durable or returns a *StoreError.
// Callers treat persistence as best-effort: a failed append is reported but
// does not undo or block the network operation it describes.
package store
