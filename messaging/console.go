package messaging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/btchat/limits"
)

// DefaultPrompt is shown before each line when prompting is enabled.
const DefaultPrompt = "Enter message: "

type lineResult struct {
	text string
	err  error
}

// LineSource reads newline-terminated messages from an io.Reader such as
// os.Stdin. Reading happens on a background goroutine so Next can return as
// soon as its context is cancelled, even while the reader is blocked.
type LineSource struct {
	r       io.Reader
	prompt  string
	out     io.Writer
	maxLine int

	start sync.Once
	lines chan lineResult
	done  chan struct{}
	stop  sync.Once
}

// LineSourceOption customizes a LineSource.
type LineSourceOption func(*LineSource)

// WithPrompt writes prompt to w before waiting for each line.
func WithPrompt(w io.Writer, prompt string) LineSourceOption {
	return func(s *LineSource) {
		s.out = w
		s.prompt = prompt
	}
}

// WithMaxLineSize keeps at most n+1 bytes of each line, with n clamped the
// same way as a channel's message limit. Pass the channel's limit so that
// any line the channel would reject still arrives over that limit.
func WithMaxLineSize(n int) LineSourceOption {
	return func(s *LineSource) {
		s.maxLine = limits.EffectiveMax(n)
	}
}

// NewLineSource creates a source reading lines from r. Without
// WithMaxLineSize lines are kept up to limits.MaxProcessingBuffer+1 bytes,
// which exceeds every permitted message limit.
func NewLineSource(r io.Reader, opts ...LineSourceOption) *LineSource {
	s := &LineSource{
		r:       r,
		maxLine: limits.MaxProcessingBuffer,
		lines:   make(chan lineResult),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next line without its trailing "\n" or "\r\n". Lines
// longer than the line limit are cut to limit+1 bytes, so they are never
// mistaken for a message that fits.
func (s *LineSource) Next(ctx context.Context) (string, error) {
	s.start.Do(func() { go s.readLoop() })

	if s.out != nil && s.prompt != "" {
		fmt.Fprint(s.out, s.prompt)
	}

	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", io.EOF
	}
}

// Close stops delivering lines. A reader goroutine blocked in Read is left
// to finish on its own.
func (s *LineSource) Close() error {
	s.stop.Do(func() { close(s.done) })
	return nil
}

func (s *LineSource) readLoop() {
	defer close(s.lines)

	br := bufio.NewReaderSize(s.r, limits.MaxLineBuffer)
	for {
		line, err := readLine(br, s.maxLine)
		if line != nil && !s.send(lineResult{text: string(line)}) {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.send(lineResult{err: err})
			}
			return
		}
	}
}

func (s *LineSource) send(res lineResult) bool {
	select {
	case s.lines <- res:
		return true
	case <-s.done:
		return false
	}
}

// readLine reads one logical line, keeping at most maxLine+1 bytes of it. A
// final line without a newline is returned together with io.EOF.
func readLine(br *bufio.Reader, maxLine int) ([]byte, error) {
	var line []byte
	read := false
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if read {
				return line, io.EOF
			}
			return nil, err
		}
		read = true
		if room := maxLine + 1 - len(line); room > 0 {
			if len(frag) > room {
				frag = frag[:room]
			}
			line = append(line, frag...)
		}
		if !isPrefix {
			if line == nil {
				line = []byte{}
			}
			return line, nil
		}
	}
}

// Printer writes each inbound message to an io.Writer.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

// NewPrinter creates a sink writing "Received: <message>" lines to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, format: "Received: %s\n"}
}

// Deliver implements OutputSink.
func (p *Printer) Deliver(payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, p.format, payload)
	return err
}
