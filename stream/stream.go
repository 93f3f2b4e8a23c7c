// Package stream implements the browser-facing side of one circuit
// stream as an io.ReadWriteCloser backed by a circuit's channel-based
// dispatch (§4.5).
package stream

import (
	"io"

	"github.com/JGiraldo29/giralnet/circuit"
	"github.com/JGiraldo29/giralnet/errs"
	"github.com/JGiraldo29/giralnet/wire"
)

var _ io.ReadWriteCloser = (*Stream)(nil)

// Stream is one open BeginStream/StreamData*/EndStream exchange over a
// Circuit.
type Stream struct {
	id     uint32
	circ   *circuit.Circuit
	dataCh chan []byte
	buf    []byte
	eof    bool
	closed bool
}

// Begin opens a new stream to destination through circ, sending
// BeginStream and returning once the stream is registered locally —
// there is no CONNECTED acknowledgement in this protocol (§4.5): the
// first StreamData or EndStream the exit sends back is the signal.
func Begin(circ *circuit.Circuit, destination wire.SockAddr) (*Stream, error) {
	id, dataCh, err := circ.OpenStream(destination)
	if err != nil {
		return nil, err
	}
	return &Stream{id: id, circ: circ, dataCh: dataCh}, nil
}

// Write sends p as a single StreamData message.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, &errs.StreamError{Detail: "stream closed"}
	}
	if err := s.circ.SendData(s.id, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns bytes received from the exit, blocking until data or
// EndStream arrives.
func (s *Stream) Read(p []byte) (int, error) {
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		return n, nil
	}
	if s.eof {
		return 0, io.EOF
	}

	data, ok := <-s.dataCh
	if !ok {
		s.eof = true
		return 0, io.EOF
	}
	n := copy(p, data)
	if n < len(data) {
		s.buf = append(s.buf, data[n:]...)
	}
	return n, nil
}

// Close sends EndStream and releases the stream's local bookkeeping.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.circ.EndStream(s.id)
}
