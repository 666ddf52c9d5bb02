package messaging

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/btchat/limits"
	"github.com/opd-ai/btchat/metrics"
	"github.com/opd-ai/btchat/store"
	"github.com/opd-ai/btchat/transport"
	"github.com/sirupsen/logrus"
)

// Stats is a snapshot of a channel's activity.
type Stats struct {
	Sent          uint64
	Received      uint64
	Discarded     uint64
	StoreFailures uint64
	// Unrecorded counts messages that crossed the wire after shutdown had
	// sealed the log, so no append was attempted.
	Unrecorded uint64

	// OutboundEnd and InboundEnd hold why each worker stopped: one of
	// ErrInputEnded, ErrPeerClosed, ErrShutdown, or a *StreamError.
	OutboundEnd error
	InboundEnd  error
}

// Option customizes a Channel.
type Option func(*Channel)

// WithMaxMessageSize bounds payloads in both directions.
func WithMaxMessageSize(n int) Option {
	return func(c *Channel) { c.maxSize = limits.EffectiveMax(n) }
}

// Channel runs the outbound and inbound workers over one connected stream.
type Channel struct {
	rec     *recorder
	input   InputSource
	output  OutputSink
	maxSize int

	running atomic.Bool

	sent          atomic.Uint64
	received      atomic.Uint64
	discarded     atomic.Uint64
	storeFailures atomic.Uint64
	unrecorded    atomic.Uint64

	mu          sync.Mutex
	outboundEnd error
	inboundEnd  error
}

// NewChannel creates a channel that logs to st, reads outbound text from in,
// and surfaces inbound messages to out.
func NewChannel(st store.Store, in InputSource, out OutputSink, opts ...Option) *Channel {
	c := &Channel{
		rec:     newRecorder(st),
		input:   in,
		output:  out,
		maxSize: limits.MaxMessageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns a snapshot of the channel's counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Sent:          c.sent.Load(),
		Received:      c.received.Load(),
		Discarded:     c.discarded.Load(),
		StoreFailures: c.storeFailures.Load(),
		Unrecorded:    c.unrecorded.Load(),
		OutboundEnd:   c.outboundEnd,
		InboundEnd:    c.inboundEnd,
	}
}

// shutdown closes the stream exactly once and seals the log before doing so.
type shutdown struct {
	conn   transport.Conn
	rec    *recorder
	cancel context.CancelFunc

	once     sync.Once
	started  atomic.Bool
	closeErr error
}

func (s *shutdown) begin(cause string) {
	s.once.Do(func() {
		s.started.Store(true)
		s.rec.seal()
		s.cancel()
		s.closeErr = s.conn.Close()

		logrus.WithFields(logrus.Fields{
			"function": "Channel.shutdown",
			"cause":    cause,
		}).Debug("Channel shutting down")
	})
}

// Run starts both workers on conn and blocks until both have terminated.
// The stream is closed exactly once, by whichever worker stops first or by
// ctx cancellation. Run returns nil when the channel ended in an orderly
// way (input ended, peer closed, or ctx cancelled) and the stream errors
// otherwise.
func (c *Channel) Run(ctx context.Context, conn transport.Conn) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sd := &shutdown{conn: conn, rec: c.rec, cancel: cancel}
	stop := context.AfterFunc(ctx, func() { sd.begin("context") })
	defer stop()

	logrus.WithFields(logrus.Fields{
		"function": "Channel.Run",
		"peer":     addrString(conn),
	}).Info("Channel started")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		end := c.runOutbound(ctx, conn, sd)
		c.setEnd(&c.outboundEnd, end)
		sd.begin("outbound")
	}()

	go func() {
		defer wg.Done()
		end := c.runInbound(ctx, conn, sd)
		c.setEnd(&c.inboundEnd, end)
		sd.begin("inbound")
	}()

	wg.Wait()

	stats := c.Stats()
	logrus.WithFields(logrus.Fields{
		"function":       "Channel.Run",
		"sent":           stats.Sent,
		"received":       stats.Received,
		"discarded":      stats.Discarded,
		"store_failures": stats.StoreFailures,
		"outbound_end":   errString(stats.OutboundEnd),
		"inbound_end":    errString(stats.InboundEnd),
	}).Info("Channel stopped")

	if sd.closeErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Channel.Run",
			"error":    sd.closeErr.Error(),
		}).Debug("Stream close reported error")
	}

	return errors.Join(streamFailure(stats.OutboundEnd), streamFailure(stats.InboundEnd))
}

func (c *Channel) setEnd(field *error, end error) {
	c.mu.Lock()
	*field = end
	c.mu.Unlock()
}

// runOutbound sends input messages until input ends, the channel shuts
// down, or a write fails.
func (c *Channel) runOutbound(ctx context.Context, conn transport.Conn, sd *shutdown) error {
	for {
		text, err := c.input.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logrus.WithFields(logrus.Fields{
					"function": "Channel.runOutbound",
				}).Info("Input ended")
				return ErrInputEnded
			case ctx.Err() != nil || sd.started.Load():
				return ErrShutdown
			default:
				logrus.WithFields(logrus.Fields{
					"function": "Channel.runOutbound",
					"error":    err.Error(),
				}).Error("Input source failed")
				return &StreamError{Direction: store.DirectionSent, Op: "input", Err: err}
			}
		}

		payload := []byte(text)
		if err := limits.ValidateMessageSize(payload, c.maxSize); err != nil {
			c.discard(err, len(payload))
			continue
		}

		if err := transport.WriteFrame(conn, payload, c.maxSize); err != nil {
			if sd.started.Load() {
				return ErrShutdown
			}
			logrus.WithFields(logrus.Fields{
				"function": "Channel.runOutbound",
				"error":    err.Error(),
			}).Error("Failed to send message")
			return &StreamError{Direction: store.DirectionSent, Op: "write", Err: err}
		}

		c.sent.Add(1)
		metrics.MessagesTotal.WithLabelValues(store.DirectionSent.String()).Inc()
		metrics.FrameBytesTotal.WithLabelValues(store.DirectionSent.String()).Add(float64(len(payload)))

		c.persist(ctx, store.DirectionSent, text)
	}
}

// runInbound reads frames until the peer closes, the channel shuts down,
// or a read fails.
func (c *Channel) runInbound(ctx context.Context, conn transport.Conn, sd *shutdown) error {
	for {
		payload, err := transport.ReadFrame(conn, c.maxSize)
		if err != nil {
			switch {
			case sd.started.Load():
				return ErrShutdown
			case errors.Is(err, io.EOF):
				logrus.WithFields(logrus.Fields{
					"function": "Channel.runInbound",
					"peer":     addrString(conn),
				}).Info("Peer disconnected")
				return ErrPeerClosed
			default:
				op := "read"
				if errors.Is(err, transport.ErrFrameTooLarge) || errors.Is(err, transport.ErrEmptyFrame) {
					op = "frame"
				}
				logrus.WithFields(logrus.Fields{
					"function": "Channel.runInbound",
					"op":       op,
					"error":    err.Error(),
				}).Error("Failed to read data")
				return &StreamError{Direction: store.DirectionReceived, Op: op, Err: err}
			}
		}

		text := string(payload)
		c.received.Add(1)
		metrics.MessagesTotal.WithLabelValues(store.DirectionReceived.String()).Inc()
		metrics.FrameBytesTotal.WithLabelValues(store.DirectionReceived.String()).Add(float64(len(payload)))

		if err := c.output.Deliver(text); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Channel.runInbound",
				"error":    err.Error(),
			}).Warn("Output sink rejected message")
		}

		c.persist(ctx, store.DirectionReceived, text)
	}
}

// persist records a message. Failures are logged and counted; they never
// stop the worker.
func (c *Channel) persist(ctx context.Context, direction store.Direction, text string) {
	msg, ok, err := c.rec.record(ctx, direction, text)
	if !ok {
		c.unrecorded.Add(1)
		logrus.WithFields(logrus.Fields{
			"function":  "Channel.persist",
			"direction": direction,
		}).Debug("Shutdown in progress, message not recorded")
		return
	}
	if err != nil {
		c.storeFailures.Add(1)
		metrics.StoreFailures.WithLabelValues(direction.String()).Inc()
		logrus.WithFields(logrus.Fields{
			"function":  "Channel.persist",
			"direction": direction,
			"error":     err.Error(),
		}).Warn("Failed to record message")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Channel.persist",
		"direction": direction,
		"id":        msg.ID,
		"size":      len(text),
	}).Debug("Message recorded")
}

func (c *Channel) discard(reason error, size int) {
	c.discarded.Add(1)

	label := "empty"
	if errors.Is(reason, limits.ErrMessageTooLarge) {
		label = "too_large"
		logrus.WithFields(logrus.Fields{
			"function": "Channel.runOutbound",
			"size":     size,
			"limit":    c.maxSize,
		}).Warn("Message too large, discarded")
	}
	metrics.MessagesDiscarded.WithLabelValues(label).Inc()
}

// streamFailure filters a worker's end reason down to real failures.
func streamFailure(end error) error {
	var streamErr *StreamError
	if errors.As(end, &streamErr) {
		return end
	}
	return nil
}

func addrString(conn transport.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
