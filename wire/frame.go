// Package wire implements the length-prefixed framing and tagged-variant
// binary encoding shared by every TCP connection in the overlay (spec
// §4.2): a big-endian uint32 length prefix followed by that many payload
// bytes, and a compact tagged-variant format for the data model types.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameLen caps a single frame's payload to guard against a hostile
// peer claiming a multi-gigabyte length prefix.
const MaxFrameLen = 16 * 1024 * 1024

// ReadFrame reads one length-prefixed frame from r. Any short read of
// the length or payload is treated as a closed connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("frame length %d exceeds max %d", n, MaxFrameLen)
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return payload, nil
}

// WriteFrame writes payload to w, length-prefixed as a big-endian uint32.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// AppendFrame appends payload to dst with the same big-endian uint32
// length prefix WriteFrame uses, for building an in-memory blob of
// multiple frames (e.g. the onion builder's handshake+onion pair)
// rather than writing straight to a connection.
func AppendFrame(dst, payload []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, payload...)
}

// SplitFrame reads one length-prefixed frame off the front of b,
// returning the frame and whatever follows it. The in-memory
// counterpart to ReadFrame, for parsing an already-assembled blob
// instead of streaming from an io.Reader.
func SplitFrame(b []byte) (frame, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("read frame length: truncated")
	}
	n := binary.BigEndian.Uint32(b[:4])
	if n > MaxFrameLen {
		return nil, nil, fmt.Errorf("frame length %d exceeds max %d", n, MaxFrameLen)
	}
	if uint32(len(b)-4) < n {
		return nil, nil, fmt.Errorf("read frame payload: truncated: want %d have %d", n, len(b)-4)
	}
	return b[4 : 4+n], b[4+n:], nil
}
