// Package messaging runs the duplex message loop of a btchat session.
//
// # Overview
//
// A [Channel] owns two workers that share one connected stream and one
// message log:
//
//   - The outbound worker takes text from an [InputSource], drops empty (and
//     oversize) messages, writes each remaining message as one frame, and
//     records it as Sent.
//   - The inbound worker reads frames, hands each payload to an [OutputSink],
//     and records it as Received.
//
// The stream is split by direction, so the two workers never race on reads
// or writes. Both append to the same store; the store serializes appends.
//
// # Usage
//
//	ch := messaging.NewChannel(st,
//	    messaging.NewLineSource(os.Stdin, messaging.WithPrompt(os.Stdout, messaging.DefaultPrompt)),
//	    messaging.NewPrinter(os.Stdout),
//	)
//	if err := ch.Run(ctx, conn); err != nil {
//	    log.Printf("channel failed: %v", err)
//	}
//
// # Shutdown
//
// Whichever worker stops first begins shutdown: the message log is sealed so
// no further appends start, the sibling's context is cancelled, and the
// stream is closed exactly once. Closing the stream is what unblocks a
// worker stuck in Read or Write; cancelling the context unblocks one waiting
// on input. Run returns after both workers have exited.
//
// Why each worker stopped is available from [Channel.Stats]:
//
//	Outbound: ErrInputEnded | ErrShutdown | *StreamError
//	Inbound:  ErrPeerClosed | ErrShutdown | *StreamError
//
// Only *StreamError values are returned from Run. An orderly peer close is
// not a failure.
//
// # Persistence
//
// Recording is best-effort relative to delivery. A message is written to
// the stream (or handed to the sink) first and recorded second; a failed
// append is logged and counted but neither undoes the delivery nor stops the
// worker. A message that crosses the wire after shutdown began is not
// recorded and shows up in [Stats.Unrecorded].
package messaging
