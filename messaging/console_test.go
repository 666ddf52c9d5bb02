package messaging

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/btchat/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src InputSource) []string {
	t.Helper()
	var lines []string
	for {
		line, err := src.Next(context.Background())
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestLineSourceSplitsLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"unix newlines", "hello\nworld\n", []string{"hello", "world"}},
		{"crlf", "hello\r\nworld\r\n", []string{"hello", "world"}},
		{"empty line kept", "\nafter\n", []string{"", "after"}},
		{"final line without newline", "one\ntwo", []string{"one", "two"}},
		{"no input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewLineSource(strings.NewReader(tt.input))
			defer src.Close()
			assert.Equal(t, tt.want, drain(t, src))
		})
	}
}

func TestLineSourceTruncatesLongLines(t *testing.T) {
	long := strings.Repeat("x", 600)
	src := NewLineSource(strings.NewReader(long+"\nnext\n"), WithMaxLineSize(512))
	defer src.Close()

	lines := drain(t, src)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 513, "cut one byte past the limit")
	assert.Equal(t, "next", lines[1])
}

func TestLineSourceKeepsLinesAboveReadBuffer(t *testing.T) {
	long := strings.Repeat("y", limits.MaxLineBuffer+4464)
	src := NewLineSource(strings.NewReader(long + "\n"))
	defer src.Close()

	lines := drain(t, src)
	require.Len(t, lines, 1)
	assert.Equal(t, long, lines[0])
}

func TestLineSourceDefaultCapExceedsEveryLimit(t *testing.T) {
	long := strings.Repeat("z", limits.MaxProcessingBuffer+100)
	src := NewLineSource(strings.NewReader(long + "\n"))
	defer src.Close()

	lines := drain(t, src)
	require.Len(t, lines, 1)
	assert.Len(t, lines[0], limits.MaxProcessingBuffer+1)
}

func TestLineSourcePrompts(t *testing.T) {
	var out bytes.Buffer
	src := NewLineSource(strings.NewReader("a\nb\n"), WithPrompt(&out, DefaultPrompt))
	defer src.Close()

	assert.Equal(t, []string{"a", "b"}, drain(t, src))
	// One prompt per Next call, including the one that observed EOF.
	assert.Equal(t, strings.Repeat(DefaultPrompt, 3), out.String())
}

func TestLineSourceHonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	src := NewLineSource(pr)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := src.Next(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}

func TestLineSourceClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	src := NewLineSource(pr)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineSourceReportsReadError(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewLineSource(pr)
	defer src.Close()

	go func() {
		_, _ = pw.Write([]byte("first\n"))
		_ = pw.CloseWithError(io.ErrClosedPipe)
	}()

	line, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out)

	require.NoError(t, p.Deliver("hello"))
	require.NoError(t, p.Deliver("world"))
	assert.Equal(t, "Received: hello\nReceived: world\n", out.String())
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource("a", "b")
	assert.Equal(t, []string{"a", "b"}, drain(t, src))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSliceSource("x").Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSinkFunc(t *testing.T) {
	var got string
	sink := SinkFunc(func(payload string) error {
		got = payload
		return nil
	})
	require.NoError(t, sink.Deliver("hi"))
	assert.Equal(t, "hi", got)
}
