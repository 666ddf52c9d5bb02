package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/btchat/limits"
)

// WriteFrame writes payload as one length-prefixed frame. Header and payload
// go out in a single Write so a frame is never interleaved with another
// writer's bytes. Empty payloads are rejected; they are never transmitted.
func WriteFrame(w io.Writer, payload []byte, maxSize int) error {
	maxSize = limits.EffectiveMax(maxSize)
	if err := limits.ValidateMessageSize(payload, maxSize); err != nil {
		return err
	}

	buf := make([]byte, limits.FrameHeaderSize+len(payload))
	putFrameLength(buf, len(payload))
	copy(buf[limits.FrameHeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

// putFrameLength writes the 4-byte big-endian length prefix.
func putFrameLength(buf []byte, n int) {
	binary.BigEndian.PutUint32(buf[:limits.FrameHeaderSize], uint32(n))
}

// ReadFrame reads exactly one frame. It returns io.EOF only when the stream
// ends cleanly on a frame boundary; a stream that ends inside a frame yields
// io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	maxSize = limits.EffectiveMax(maxSize)

	length, err := readFrameLength(r)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: length %d exceeds limit %d", ErrFrameTooLarge, length, maxSize)
	}

	return readFramePayload(r, length)
}

// readFrameLength reads and parses the length prefix.
func readFrameLength(r io.Reader) (uint32, error) {
	var header [limits.FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(header[:]), nil
}

// readFramePayload reads length bytes of payload.
func readFramePayload(r io.Reader, length uint32) ([]byte, error) {
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
