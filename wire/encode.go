package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/JGiraldo29/giralnet/errs"
)

// encoder accumulates a tagged-variant byte stream.
type encoder struct {
	buf []byte
}

func (e *encoder) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putByte(v byte) {
	e.buf = append(e.buf, v)
}

// putBytes writes a length-prefixed (uint32) byte slice.
func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// putString writes a length-prefixed (uint32) UTF-8 string.
func (e *encoder) putString(s string) {
	e.putBytes([]byte(s))
}

func (e *encoder) bytes() []byte { return e.buf }

// decoder consumes a tagged-variant byte stream produced by encoder.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder { return &decoder{buf: buf} }

func (d *decoder) getUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, &errs.ProtocolError{Detail: "truncated uint32"}
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) getUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, &errs.ProtocolError{Detail: "truncated uint16"}
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos : d.pos+2])
	d.pos += 2
	return v, nil
}

func (d *decoder) getByte() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, &errs.ProtocolError{Detail: "truncated byte"}
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) getBytes() ([]byte, error) {
	n, err := d.getUint32()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, &errs.ProtocolError{Detail: fmt.Sprintf("truncated bytes field: want %d have %d", n, len(d.buf)-d.pos)}
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *decoder) getString() (string, error) {
	b, err := d.getBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// requireExhausted fails if the decoder has unconsumed trailing bytes,
// catching truncated-tail or over-long-frame bugs early.
func (d *decoder) requireExhausted() error {
	if d.pos != len(d.buf) {
		return &errs.ProtocolError{Detail: fmt.Sprintf("trailing bytes after decode: %d", len(d.buf)-d.pos)}
	}
	return nil
}
