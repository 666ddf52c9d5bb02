package btchat

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/btchat/config"
	"github.com/opd-ai/btchat/messaging"
	"github.com/opd-ai/btchat/metrics"
	"github.com/opd-ai/btchat/store"
	"github.com/opd-ai/btchat/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTimeProvider is a deterministic time provider for testing.
type MockTimeProvider struct {
	currentTime time.Time
}

// Now returns the mock time.
func (m *MockTimeProvider) Now() time.Time {
	return m.currentTime
}

type idleInput struct{}

func (idleInput) Next(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type collectOutput struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collectOutput) Deliver(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, payload)
	return nil
}

func (c *collectOutput) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func tcpConfig(t *testing.T, role transport.Role, peer string, port uint16) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Role = role
	cfg.Network = transport.NetworkTCP
	cfg.Peer = peer
	cfg.Channel = port
	cfg.Quiet = true
	cfg.Store.Path = filepath.Join(t.TempDir(), role.String()+".db")
	return cfg
}

// startResponder runs a Responder session on an ephemeral loopback port and
// returns the port along with a channel carrying Run's result.
func startResponder(t *testing.T, cfg config.Config, opts ...Option) (uint16, <-chan error) {
	t.Helper()

	listening := make(chan net.Addr, 1)
	opts = append(opts, WithOnListening(func(addr net.Addr) { listening <- addr }))

	session, err := New(cfg, opts...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()

	select {
	case addr := <-listening:
		return uint16(addr.(*net.TCPAddr).Port), done
	case err := <-done:
		t.Fatalf("responder stopped before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("responder did not start listening")
	}
	return 0, nil
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func readLog(t *testing.T, path string) []store.Message {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer st.Close()

	msgs, err := st.Query(context.Background(), store.Filter{})
	require.NoError(t, err)
	return msgs
}

func TestSessionHello(t *testing.T) {
	fixed := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	output := &collectOutput{}

	respCfg := tcpConfig(t, transport.RoleResponder, "127.0.0.1", 0)
	port, respDone := startResponder(t, respCfg,
		WithInput(idleInput{}),
		WithOutput(output),
		WithTimeProvider(&MockTimeProvider{currentTime: fixed}),
	)

	initCfg := tcpConfig(t, transport.RoleInitiator, "127.0.0.1", port)
	initiator, err := New(initCfg,
		WithInput(messaging.NewSliceSource("hello")),
		WithOutput(&collectOutput{}),
	)
	require.NoError(t, err)

	require.NoError(t, initiator.Run(context.Background()))
	require.NoError(t, waitErr(t, respDone))

	assert.Equal(t, []string{"hello"}, output.Messages())
	assert.Equal(t, uint64(1), initiator.Stats().Sent)

	received := readLog(t, respCfg.Store.Path)
	require.Len(t, received, 1)
	assert.Equal(t, store.DirectionReceived, received[0].Direction)
	assert.Equal(t, "hello", received[0].Payload)
	assert.True(t, fixed.Equal(received[0].Timestamp))

	sent := readLog(t, initCfg.Store.Path)
	require.Len(t, sent, 1)
	assert.Equal(t, store.DirectionSent, sent[0].Direction)
	assert.Equal(t, "hello", sent[0].Payload)
	assert.Equal(t, initiator.ID(), sent[0].SessionID)
}

func TestSessionSkipsEmptyLine(t *testing.T) {
	output := &collectOutput{}

	respCfg := tcpConfig(t, transport.RoleResponder, "127.0.0.1", 0)
	port, respDone := startResponder(t, respCfg, WithInput(idleInput{}), WithOutput(output))

	var stdout strings.Builder
	initCfg := tcpConfig(t, transport.RoleInitiator, "127.0.0.1", port)
	initiator, err := New(initCfg, WithStdio(strings.NewReader("\nhello\n"), &stdout))
	require.NoError(t, err)

	require.NoError(t, initiator.Run(context.Background()))
	require.NoError(t, waitErr(t, respDone))

	assert.Equal(t, []string{"hello"}, output.Messages())
	assert.Equal(t, uint64(1), initiator.Stats().Discarded)
	assert.Empty(t, stdout.String(), "quiet sessions print no prompt")

	sent := readLog(t, initCfg.Store.Path)
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].Payload)

	received := readLog(t, respCfg.Store.Path)
	require.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Payload)
}

func TestSessionEndsWhenResponderLeaves(t *testing.T) {
	respCfg := tcpConfig(t, transport.RoleResponder, "127.0.0.1", 0)
	port, respDone := startResponder(t, respCfg,
		WithInput(messaging.NewSliceSource()),
		WithOutput(&collectOutput{}),
	)

	initCfg := tcpConfig(t, transport.RoleInitiator, "127.0.0.1", port)
	initiator, err := New(initCfg, WithInput(idleInput{}), WithOutput(&collectOutput{}))
	require.NoError(t, err)

	require.NoError(t, initiator.Run(context.Background()))
	require.NoError(t, waitErr(t, respDone))

	stats := initiator.Stats()
	assert.ErrorIs(t, stats.InboundEnd, messaging.ErrPeerClosed)
	assert.ErrorIs(t, stats.OutboundEnd, messaging.ErrShutdown)
}

func TestSessionConnectionFailureClosesStore(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	before := testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues("initiator", resultConnectionError))

	st := store.NewMemoryStore()
	cfg := tcpConfig(t, transport.RoleInitiator, "127.0.0.1", port)
	session, err := New(cfg, WithStore(st), WithInput(idleInput{}))
	require.NoError(t, err)

	err = session.Run(context.Background())
	require.Error(t, err)
	assert.True(t, transport.IsConnectionError(err))

	_, err = st.Append(context.Background(), store.DirectionSent, "late")
	assert.ErrorIs(t, err, store.ErrClosed)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues("initiator", resultConnectionError)))
}

func TestSessionCancelWhileListening(t *testing.T) {
	cfg := tcpConfig(t, transport.RoleResponder, "127.0.0.1", 0)

	listening := make(chan struct{})
	session, err := New(cfg,
		WithInput(idleInput{}),
		WithOnListening(func(net.Addr) { close(listening) }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	<-listening
	cancel()

	err = waitErr(t, done)
	require.Error(t, err)
	assert.True(t, transport.IsConnectionError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionRunOnce(t *testing.T) {
	cfg := tcpConfig(t, transport.RoleInitiator, "127.0.0.1", 1)
	session, err := New(cfg, WithStore(store.NewMemoryStore()), WithInput(idleInput{}))
	require.NoError(t, err)

	_ = session.Run(context.Background())
	assert.ErrorIs(t, session.Run(context.Background()), ErrSessionUsed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Role = transport.RoleInitiator
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSessionIDsAreUnique(t *testing.T) {
	a, err := New(config.Default())
	require.NoError(t, err)
	b, err := New(config.Default())
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSessionStoreOpenFailure(t *testing.T) {
	cfg := tcpConfig(t, transport.RoleResponder, "127.0.0.1", 0)
	// A directory cannot be opened as a database file.
	cfg.Store.Path = t.TempDir()

	session, err := New(cfg, WithInput(idleInput{}))
	require.NoError(t, err)

	err = session.Run(context.Background())
	require.Error(t, err)
	assert.False(t, transport.IsConnectionError(err))
}

// serveBadFrame accepts one connection and sends a length prefix far above
// any message limit, then waits for the other side to hang up.
func serveBadFrame(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 1<<30)
		_, _ = conn.Write(header[:])
		var buf [1]byte
		_, _ = conn.Read(buf[:])
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestSessionStreamErrorIsNotFatal(t *testing.T) {
	port := serveBadFrame(t)
	before := testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues("initiator", resultStreamError))

	cfg := tcpConfig(t, transport.RoleInitiator, "127.0.0.1", port)
	session, err := New(cfg, WithInput(idleInput{}), WithOutput(&collectOutput{}))
	require.NoError(t, err)

	require.NoError(t, session.Run(context.Background()))

	var streamErr *messaging.StreamError
	require.True(t, errors.As(session.Stats().InboundEnd, &streamErr))
	assert.Equal(t, "frame", streamErr.Op)
	assert.ErrorIs(t, session.Stats().OutboundEnd, messaging.ErrShutdown)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues("initiator", resultStreamError)))
}
