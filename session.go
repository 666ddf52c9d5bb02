package btchat

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opd-ai/btchat/config"
	"github.com/opd-ai/btchat/messaging"
	"github.com/opd-ai/btchat/metrics"
	"github.com/opd-ai/btchat/store"
	"github.com/opd-ai/btchat/transport"
	"github.com/sirupsen/logrus"
)

// ErrSessionUsed is returned by a second call to Session.Run.
var ErrSessionUsed = errors.New("session already run")

// Session results reported to metrics.SessionsTotal.
const (
	resultOK              = "ok"
	resultConnectionError = "connection_error"
	resultStreamError     = "stream_error"
	resultStoreError      = "store_error"
)

// Option customizes a Session.
type Option func(*Session)

// WithInput replaces the default stdin line reader.
func WithInput(in messaging.InputSource) Option {
	return func(s *Session) { s.input = in }
}

// WithOutput replaces the default stdout printer.
func WithOutput(out messaging.OutputSink) Option {
	return func(s *Session) { s.output = out }
}

// WithStore supplies an already open store. The session takes ownership and
// closes it when Run returns.
func WithStore(st store.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithOnListening registers a callback that receives the bound address once
// a Responder is listening. It is ignored for an Initiator.
func WithOnListening(fn func(net.Addr)) Option {
	return func(s *Session) { s.onListening = fn }
}

// WithTimeProvider overrides the clock used to stamp stored messages.
func WithTimeProvider(tp store.TimeProvider) Option {
	return func(s *Session) { s.timeProvider = tp }
}

// WithStdio sets the reader and writer behind the default input and output.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Session) {
		s.stdin = in
		s.stdout = out
	}
}

// Session runs one btchat conversation: it opens the message log, connects
// in its role, and runs the message channel until it ends.
type Session struct {
	id  string
	cfg config.Config

	input        messaging.InputSource
	output       messaging.OutputSink
	store        store.Store
	onListening  func(net.Addr)
	timeProvider store.TimeProvider
	stdin        io.Reader
	stdout       io.Writer

	used    atomic.Bool
	channel atomic.Pointer[messaging.Channel]
}

// New validates cfg and creates a Session. Nothing is opened until Run.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session identifier stamped on every stored message.
func (s *Session) ID() string {
	return s.id
}

// Stats returns the channel counters. It is zero until the connection is
// established.
func (s *Session) Stats() messaging.Stats {
	if ch := s.channel.Load(); ch != nil {
		return ch.Stats()
	}
	return messaging.Stats{}
}

// Run executes the session and blocks until it ends. Only failures to start
// the session are returned: a store that cannot be opened, or a
// *transport.ConnectionError from establishment. A read or write failure on
// the established stream ends only the worker that hit it; it is logged,
// counted, and visible in Stats, and Run still returns nil. The store is
// closed before Run returns on every path.
func (s *Session) Run(ctx context.Context) error {
	if !s.used.CompareAndSwap(false, true) {
		return ErrSessionUsed
	}

	logger := logrus.WithFields(logrus.Fields{
		"function": "Session.Run",
		"session":  s.id,
		"role":     s.cfg.Role.String(),
		"network":  s.cfg.Network,
	})

	st, err := s.openStore(ctx)
	if err != nil {
		s.finish(resultStoreError)
		logger.WithField("error", err.Error()).Error("Failed to open message store")
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.WithField("error", cerr.Error()).Warn("Failed to close message store")
		}
	}()

	in, closeInput := s.inputSource()
	defer closeInput()

	conn, err := s.endpoint().Establish(ctx)
	if err != nil {
		s.finish(resultConnectionError)
		logger.WithField("error", err.Error()).Error("Failed to establish connection")
		return err
	}

	logger.WithFields(logrus.Fields{
		"local":  addrString(conn.LocalAddr()),
		"remote": addrString(conn.RemoteAddr()),
	}).Info("Connection established")

	ch := messaging.NewChannel(st, in, s.outputSink(),
		messaging.WithMaxMessageSize(s.cfg.MaxMessageSize))
	s.channel.Store(ch)

	if err := ch.Run(ctx, conn); err != nil {
		s.finish(resultStreamError)
		logger.WithField("error", err.Error()).Warn("Session ended after stream error")
		return nil
	}

	s.finish(resultOK)
	logger.Info("Session ended")
	return nil
}

func (s *Session) openStore(ctx context.Context) (store.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	opts := []store.Option{store.WithSessionID(s.id)}
	if s.timeProvider != nil {
		opts = append(opts, store.WithTimeProvider(s.timeProvider))
	}
	return store.Open(ctx, s.cfg.Store, opts...)
}

func (s *Session) endpoint() transport.Endpoint {
	if s.cfg.Role == transport.RoleResponder {
		r := transport.NewResponder(s.cfg.Network, s.cfg.Peer, s.cfg.Channel)
		r.OnListening = s.onListening
		return r
	}
	return transport.NewInitiator(s.cfg.Network, s.cfg.Peer, s.cfg.Channel)
}

func (s *Session) inputSource() (messaging.InputSource, func()) {
	if s.input != nil {
		return s.input, func() {}
	}

	opts := []messaging.LineSourceOption{messaging.WithMaxLineSize(s.cfg.MaxMessageSize)}
	if !s.cfg.Quiet && s.cfg.Prompt != "" {
		opts = append(opts, messaging.WithPrompt(s.stdout, s.cfg.Prompt))
	}
	src := messaging.NewLineSource(s.stdin, opts...)
	return src, func() { _ = src.Close() }
}

func (s *Session) outputSink() messaging.OutputSink {
	if s.output != nil {
		return s.output
	}
	return messaging.NewPrinter(s.stdout)
}

func (s *Session) finish(result string) {
	metrics.SessionsTotal.WithLabelValues(s.cfg.Role.String(), result).Inc()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
